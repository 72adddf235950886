package model

// Doctor is a worker able to take cases for one hospital.
type Doctor struct {
	ID                 string            `json:"doctor_id" yaml:"doctor_id"`
	Name               string            `json:"name" yaml:"name"`
	Specialty          string            `json:"specialty" yaml:"specialty"`
	HospitalID         string            `json:"hospital_id" yaml:"hospital_id"`
	Available          bool              `json:"availability" yaml:"availability"`
	WorkingHours       map[string]string `json:"working_hours" yaml:"working_hours"`
	CurrentWorkload    int               `json:"current_workload" yaml:"current_workload"`
	MaxDailyCases      int               `json:"max_daily_cases" yaml:"max_daily_cases"`
	ExperienceYears    int               `json:"experience_years" yaml:"experience_years"`
	PatientRating      float64           `json:"patient_rating" yaml:"patient_rating"`
	SpecializationTags []string          `json:"specialization_tags" yaml:"specialization_tags"`
	SuccessRate        *float64          `json:"success_rate,omitempty" yaml:"success_rate"`
}

// Eligible reports whether the doctor can take one more case right now. A
// doctor without a daily limit is never eligible.
func (d Doctor) Eligible() bool {
	return d.Available && d.MaxDailyCases > 0 && d.CurrentWorkload < d.MaxDailyCases
}

// LoadRatio returns current workload over the daily limit. It is zero for a
// doctor without a limit; such doctors are filtered out before scoring.
func (d Doctor) LoadRatio() float64 {
	if d.MaxDailyCases <= 0 {
		return 0
	}
	return float64(d.CurrentWorkload) / float64(d.MaxDailyCases)
}

// DoctorUpdate carries a partial doctor update. Nil fields are left untouched,
// so Available: ptr(false) is different from not touching availability.
type DoctorUpdate struct {
	Name               *string
	Specialty          *string
	Available          *bool
	WorkingHours       map[string]string
	MaxDailyCases      *int
	ExperienceYears    *int
	PatientRating      *float64
	SpecializationTags []string
	SuccessRate        *float64
}

// Apply returns d with the provided fields overwritten. Workload is owned by
// the registry and cannot be changed through an update.
func (u DoctorUpdate) Apply(d Doctor) Doctor {
	if u.Name != nil {
		d.Name = *u.Name
	}
	if u.Specialty != nil {
		d.Specialty = *u.Specialty
	}
	if u.Available != nil {
		d.Available = *u.Available
	}
	if u.WorkingHours != nil {
		d.WorkingHours = u.WorkingHours
	}
	if u.MaxDailyCases != nil {
		d.MaxDailyCases = *u.MaxDailyCases
	}
	if u.ExperienceYears != nil {
		d.ExperienceYears = *u.ExperienceYears
	}
	if u.PatientRating != nil {
		d.PatientRating = *u.PatientRating
	}
	if u.SpecializationTags != nil {
		d.SpecializationTags = append([]string(nil), u.SpecializationTags...)
	}
	if u.SuccessRate != nil {
		v := *u.SuccessRate
		d.SuccessRate = &v
	}
	return d
}
