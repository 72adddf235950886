package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kilianp07/medqueue/core/model"
	"github.com/kilianp07/medqueue/core/store"
)

const hospitalColumns = `id, name, sla_rules, max_cases_per_specialist, max_cases_per_general, working_hours`

func (s *Store) CreateHospital(ctx context.Context, h model.Hospital) error {
	rules, hours, err := hospitalJSON(h)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO hospitals (`+hospitalColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.Name, rules, h.MaxCasesPerSpecialist, h.MaxCasesPerGeneral, hours)
	if err != nil {
		return fmt.Errorf("hospital %s: %w", h.ID, err)
	}
	return nil
}

func (s *Store) GetHospital(ctx context.Context, id string) (model.Hospital, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+hospitalColumns+` FROM hospitals WHERE id = ?`), id)
	h, err := scanHospital(row)
	if err != nil {
		return model.Hospital{}, notFound("hospital", id, err)
	}
	return h, nil
}

func (s *Store) ListHospitals(ctx context.Context) ([]model.Hospital, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+hospitalColumns+` FROM hospitals ORDER BY id`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	var out []model.Hospital
	for rows.Next() {
		h, err := scanHospital(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, mapErr(rows.Err())
}

func (s *Store) UpdateHospital(ctx context.Context, h model.Hospital) error {
	rules, hours, err := hospitalJSON(h)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, `UPDATE hospitals SET name = ?, sla_rules = ?, max_cases_per_specialist = ?,
		max_cases_per_general = ?, working_hours = ? WHERE id = ?`,
		h.Name, rules, h.MaxCasesPerSpecialist, h.MaxCasesPerGeneral, hours, h.ID)
	if err != nil {
		return err
	}
	if n, err := affected(res); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("hospital %s: %w", h.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteHospital(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM hospitals WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := affected(res); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("hospital %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func hospitalJSON(h model.Hospital) (string, string, error) {
	rules, err := toJSON(h.SLARules)
	if err != nil {
		return "", "", err
	}
	hours, err := toJSON(h.WorkingHours)
	if err != nil {
		return "", "", err
	}
	return rules, hours, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHospital(sc scanner) (model.Hospital, error) {
	var h model.Hospital
	var rules, hours string
	if err := sc.Scan(&h.ID, &h.Name, &rules, &h.MaxCasesPerSpecialist, &h.MaxCasesPerGeneral, &hours); err != nil {
		return model.Hospital{}, mapErr(err)
	}
	if err := fromJSON(rules, &h.SLARules); err != nil {
		return model.Hospital{}, err
	}
	if err := fromJSON(hours, &h.WorkingHours); err != nil {
		return model.Hospital{}, err
	}
	return h, nil
}

func (s *Store) UpsertPatient(ctx context.Context, p model.Patient) error {
	history, err := toJSON(p.MedicalHistory)
	if err != nil {
		return err
	}
	symptoms, err := toJSON(p.Symptoms)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO patients (id, age, gender, medical_history, symptoms, urgency_level,
			preferred_doctor, arrival_time, triage_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			age = excluded.age,
			gender = excluded.gender,
			medical_history = excluded.medical_history,
			symptoms = excluded.symptoms,
			urgency_level = excluded.urgency_level,
			preferred_doctor = excluded.preferred_doctor,
			arrival_time = excluded.arrival_time,
			triage_score = excluded.triage_score`,
		p.ID, p.Age, p.Gender, history, symptoms, string(p.Urgency), p.PreferredDoctor, toNanos(p.ArrivalTime), nullFloat(p.TriageScore))
	if err != nil {
		return fmt.Errorf("patient %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) GetPatient(ctx context.Context, id string) (model.Patient, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, age, gender, medical_history, symptoms, urgency_level,
		preferred_doctor, arrival_time, triage_score FROM patients WHERE id = ?`), id)
	var p model.Patient
	var history, symptoms, urgency string
	var arrival int64
	var triage sql.NullFloat64
	if err := row.Scan(&p.ID, &p.Age, &p.Gender, &history, &symptoms, &urgency, &p.PreferredDoctor, &arrival, &triage); err != nil {
		return model.Patient{}, notFound("patient", id, mapErr(err))
	}
	if err := fromJSON(history, &p.MedicalHistory); err != nil {
		return model.Patient{}, err
	}
	if err := fromJSON(symptoms, &p.Symptoms); err != nil {
		return model.Patient{}, err
	}
	p.Urgency = model.Urgency(urgency)
	p.ArrivalTime = fromNanos(arrival)
	p.TriageScore = floatPtr(triage)
	return p, nil
}
