package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kilianp07/medqueue/core/model"
	"github.com/kilianp07/medqueue/core/store"
)

const doctorColumns = `id, name, specialty, hospital_id, availability, working_hours, current_workload,
	max_daily_cases, experience_years, patient_rating, specialization_tags, success_rate`

func (s *Store) CreateDoctor(ctx context.Context, d model.Doctor) error {
	hours, tags, err := doctorJSON(d)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO doctors (`+doctorColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Specialty, d.HospitalID, d.Available, hours, d.CurrentWorkload,
		d.MaxDailyCases, d.ExperienceYears, d.PatientRating, tags, nullFloat(d.SuccessRate))
	if err != nil {
		return fmt.Errorf("doctor %s: %w", d.ID, err)
	}
	return nil
}

func (s *Store) GetDoctor(ctx context.Context, id string) (model.Doctor, error) {
	return s.getDoctor(ctx, s.db, id)
}

func (s *Store) getDoctor(ctx context.Context, q queryer, id string) (model.Doctor, error) {
	row := q.QueryRowContext(ctx, s.rebind(`SELECT `+doctorColumns+` FROM doctors WHERE id = ?`), id)
	d, err := scanDoctor(row)
	if err != nil {
		return model.Doctor{}, notFound("doctor", id, err)
	}
	return d, nil
}

// UpdateDoctor leaves current_workload and hospital_id untouched. The row is
// only written while its workload matches the one the caller read and fits
// under the new limit.
func (s *Store) UpdateDoctor(ctx context.Context, d model.Doctor) error {
	hours, tags, err := doctorJSON(d)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, `UPDATE doctors SET name = ?, specialty = ?,
		availability = CASE WHEN current_workload >= ? THEN FALSE ELSE ? END,
		working_hours = ?, max_daily_cases = ?, experience_years = ?, patient_rating = ?,
		specialization_tags = ?, success_rate = ?
		WHERE id = ? AND current_workload = ? AND current_workload <= ?`,
		d.Name, d.Specialty, d.MaxDailyCases, d.Available, hours, d.MaxDailyCases, d.ExperienceYears,
		d.PatientRating, tags, nullFloat(d.SuccessRate), d.ID, d.CurrentWorkload, d.MaxDailyCases)
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	cur, err := s.GetDoctor(ctx, d.ID)
	if err != nil {
		return err
	}
	return fmt.Errorf("doctor %s limit %d with workload %d (read %d): %w",
		d.ID, d.MaxDailyCases, cur.CurrentWorkload, d.CurrentWorkload, store.ErrConflict)
}

func (s *Store) DeleteDoctor(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM doctors WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := affected(res); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("doctor %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListDoctors(ctx context.Context, hospitalID string) ([]model.Doctor, error) {
	return s.listDoctors(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE hospital_id = ? ORDER BY id`, hospitalID)
}

func (s *Store) ListAvailableDoctors(ctx context.Context, hospitalID string) ([]model.Doctor, error) {
	return s.listDoctors(ctx, `SELECT `+doctorColumns+` FROM doctors
		WHERE hospital_id = ? AND availability = TRUE AND current_workload < max_daily_cases ORDER BY id`, hospitalID)
}

func (s *Store) listDoctors(ctx context.Context, q string, args ...any) ([]model.Doctor, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	var out []model.Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, mapErr(rows.Err())
}

// ClaimCapacity is a single conditional UPDATE: the row only changes while
// the doctor is available and below the limit.
func (s *Store) ClaimCapacity(ctx context.Context, doctorID string) (model.Doctor, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`UPDATE doctors SET
			current_workload = current_workload + 1,
			availability = CASE WHEN current_workload + 1 >= max_daily_cases THEN FALSE ELSE availability END
		WHERE id = ? AND availability = TRUE AND current_workload < max_daily_cases
		RETURNING `+doctorColumns), doctorID)
	d, err := scanDoctor(row)
	if errors.Is(err, store.ErrNotFound) {
		cur, gerr := s.GetDoctor(ctx, doctorID)
		if gerr != nil {
			return model.Doctor{}, gerr
		}
		return cur, fmt.Errorf("doctor %s: %w", doctorID, store.ErrNoCapacity)
	}
	if err != nil {
		return model.Doctor{}, fmt.Errorf("claim doctor %s: %w", doctorID, err)
	}
	return d, nil
}

func (s *Store) ReleaseCapacity(ctx context.Context, doctorID string) (model.Doctor, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`UPDATE doctors SET
			availability = CASE WHEN availability = FALSE AND current_workload >= max_daily_cases THEN TRUE ELSE availability END,
			current_workload = current_workload - 1
		WHERE id = ? AND current_workload > 0
		RETURNING `+doctorColumns), doctorID)
	d, err := scanDoctor(row)
	if errors.Is(err, store.ErrNotFound) {
		return s.GetDoctor(ctx, doctorID)
	}
	if err != nil {
		return model.Doctor{}, fmt.Errorf("release doctor %s: %w", doctorID, err)
	}
	return d, nil
}

func (s *Store) ResetWorkload(ctx context.Context, hospitalID string) (int, error) {
	res, err := s.exec(ctx, `UPDATE doctors SET
			availability = CASE WHEN availability = FALSE AND max_daily_cases > 0 AND current_workload >= max_daily_cases
				THEN TRUE ELSE availability END,
			current_workload = 0
		WHERE CAST(? AS TEXT) = '' OR hospital_id = ?`, hospitalID, hospitalID)
	if err != nil {
		return 0, fmt.Errorf("reset workload: %w", err)
	}
	n, err := affected(res)
	return int(n), err
}

func doctorJSON(d model.Doctor) (string, string, error) {
	hours, err := toJSON(d.WorkingHours)
	if err != nil {
		return "", "", err
	}
	tags, err := toJSON(d.SpecializationTags)
	if err != nil {
		return "", "", err
	}
	return hours, tags, nil
}

func scanDoctor(sc scanner) (model.Doctor, error) {
	var d model.Doctor
	var hours, tags string
	var rate sql.NullFloat64
	err := sc.Scan(&d.ID, &d.Name, &d.Specialty, &d.HospitalID, &d.Available, &hours, &d.CurrentWorkload,
		&d.MaxDailyCases, &d.ExperienceYears, &d.PatientRating, &tags, &rate)
	if err != nil {
		return model.Doctor{}, mapErr(err)
	}
	if err := fromJSON(hours, &d.WorkingHours); err != nil {
		return model.Doctor{}, err
	}
	if err := fromJSON(tags, &d.SpecializationTags); err != nil {
		return model.Doctor{}, err
	}
	d.SuccessRate = floatPtr(rate)
	return d, nil
}
