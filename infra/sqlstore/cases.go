package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/medqueue/core/model"
	"github.com/kilianp07/medqueue/core/queue"
	"github.com/kilianp07/medqueue/core/store"
)

const caseColumns = `id, hospital_id, patient_id, urgency_level, assigned_doctor_id, status, priority_score,
	ml_priority_score, created_at, last_updated, sla_deadline, assignment_history, predicted_duration, complexity_score`

func (s *Store) CreateCase(ctx context.Context, c model.Case) error {
	history, err := toJSON(historyOrEmpty(c.AssignmentHistory))
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO cases (`+caseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.HospitalID, c.PatientID, string(c.Urgency), c.AssignedDoctorID, string(c.Status), c.PriorityScore,
		nullFloat(c.MLPriorityScore), toNanos(c.CreatedAt), toNanos(c.LastUpdated), toNanos(c.SLADeadline),
		history, nullFloat(c.PredictedDuration), nullFloat(c.ComplexityScore))
	if err != nil {
		return fmt.Errorf("case %s: %w", c.ID, err)
	}
	return nil
}

func (s *Store) GetCase(ctx context.Context, id string) (model.Case, error) {
	return s.getCase(ctx, s.db, id)
}

func (s *Store) getCase(ctx context.Context, q queryer, id string) (model.Case, error) {
	row := q.QueryRowContext(ctx, s.rebind(`SELECT `+caseColumns+` FROM cases WHERE id = ?`), id)
	c, err := scanCase(row)
	if err != nil {
		return model.Case{}, notFound("case", id, err)
	}
	return c, nil
}

func (s *Store) DeleteCase(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM cases WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := affected(res); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("case %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListCases(ctx context.Context, f store.CaseFilter) ([]model.Case, error) {
	var where []string
	var args []any
	if f.HospitalID != "" {
		where = append(where, "hospital_id = ?")
		args = append(args, f.HospitalID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	q := `SELECT ` + caseColumns + ` FROM cases`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	var out []model.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, mapErr(rows.Err())
}

func (s *Store) AssignCase(ctx context.Context, caseID string, rec model.AssignmentRecord) (model.Case, error) {
	var out model.Case
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := s.getCase(ctx, tx, caseID)
		if err != nil {
			return err
		}
		if c.Status != model.StatusPending {
			out = c
			return fmt.Errorf("case %s is %s: %w", caseID, c.Status, store.ErrConflict)
		}
		c.Status = model.StatusAssigned
		c.AssignedDoctorID = rec.DoctorID
		c.LastUpdated = rec.AssignedAt
		c.AssignmentHistory = append(c.AssignmentHistory, rec)
		if err := s.writeTransition(ctx, tx, c, model.StatusPending, ""); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

func (s *Store) RevertAssignment(ctx context.Context, caseID, doctorID string, at time.Time) (model.Case, error) {
	var out model.Case
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := s.getCase(ctx, tx, caseID)
		if err != nil {
			return err
		}
		if c.Status != model.StatusAssigned || c.AssignedDoctorID != doctorID {
			out = c
			return fmt.Errorf("case %s not assigned to %s: %w", caseID, doctorID, store.ErrConflict)
		}
		c.Status = model.StatusPending
		c.AssignedDoctorID = ""
		c.LastUpdated = at
		if n := len(c.AssignmentHistory); n > 0 && c.AssignmentHistory[n-1].DoctorID == doctorID {
			c.AssignmentHistory = c.AssignmentHistory[:n-1]
		}
		if err := s.writeTransition(ctx, tx, c, model.StatusAssigned, doctorID); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// writeTransition stores the mutable case fields, guarded by the status and
// doctor the caller read. Zero rows means another writer got there first.
func (s *Store) writeTransition(ctx context.Context, tx *sql.Tx, c model.Case, fromStatus model.CaseStatus, fromDoctor string) error {
	history, err := toJSON(historyOrEmpty(c.AssignmentHistory))
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, s.rebind(`UPDATE cases SET status = ?, assigned_doctor_id = ?, last_updated = ?,
		assignment_history = ? WHERE id = ? AND status = ? AND assigned_doctor_id = ?`),
		string(c.Status), c.AssignedDoctorID, toNanos(c.LastUpdated), history, c.ID, string(fromStatus), fromDoctor)
	if err != nil {
		return mapErr(err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("case %s changed concurrently: %w", c.ID, store.ErrConflict)
	}
	return nil
}

func (s *Store) UpdateDeadlines(ctx context.Context, hospitalID string, deadlines map[string]time.Time) error {
	if len(deadlines) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.rebind(`UPDATE cases SET sla_deadline = ?, priority_score = ?
			WHERE id = ? AND hospital_id = ? AND status = ?`))
		if err != nil {
			return mapErr(err)
		}
		defer func() { _ = stmt.Close() }()
		for id, d := range deadlines {
			if _, err := stmt.ExecContext(ctx, toNanos(d), queue.Score(d), id, hospitalID, string(model.StatusPending)); err != nil {
				return fmt.Errorf("update deadline of %s: %w", id, mapErr(err))
			}
		}
		return nil
	})
}

func (s *Store) CloseCase(ctx context.Context, caseID string, status model.CaseStatus, at time.Time) (model.Case, error) {
	if !status.Terminal() {
		return model.Case{}, fmt.Errorf("close case %s with status %s: %w", caseID, status, store.ErrConflict)
	}
	var out model.Case
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := s.getCase(ctx, tx, caseID)
		if err != nil {
			return err
		}
		if c.Status.Terminal() {
			out = c
			return fmt.Errorf("case %s already %s: %w", caseID, c.Status, store.ErrConflict)
		}
		res, err := tx.ExecContext(ctx, s.rebind(`UPDATE cases SET status = ?, last_updated = ?
			WHERE id = ? AND status = ?`), string(status), toNanos(at), caseID, string(c.Status))
		if err != nil {
			return mapErr(err)
		}
		if n, err := affected(res); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("case %s changed concurrently: %w", caseID, store.ErrConflict)
		}
		c.Status = status
		c.LastUpdated = at
		out = c
		return nil
	})
	return out, err
}

func (s *Store) SaveOutcome(ctx context.Context, o model.CaseOutcome) error {
	_, err := s.exec(ctx, `INSERT INTO case_outcomes (id, case_id, final_status, actual_duration,
			patient_satisfaction, was_reassigned, met_sla, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.CaseID, string(o.FinalStatus), o.ActualDuration, nullFloat(o.PatientSatisfaction),
		o.WasReassigned, o.MetSLA, toNanos(o.CreatedAt))
	if err != nil {
		return fmt.Errorf("outcome for %s: %w", o.CaseID, err)
	}
	return nil
}

func (s *Store) GetOutcome(ctx context.Context, caseID string) (model.CaseOutcome, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, case_id, final_status, actual_duration,
		patient_satisfaction, was_reassigned, met_sla, created_at FROM case_outcomes WHERE case_id = ?`), caseID)
	var o model.CaseOutcome
	var status string
	var sat sql.NullFloat64
	var created int64
	if err := row.Scan(&o.ID, &o.CaseID, &status, &o.ActualDuration, &sat, &o.WasReassigned, &o.MetSLA, &created); err != nil {
		return model.CaseOutcome{}, notFound("outcome for", caseID, mapErr(err))
	}
	o.FinalStatus = model.CaseStatus(status)
	o.PatientSatisfaction = floatPtr(sat)
	o.CreatedAt = fromNanos(created)
	return o, nil
}

func historyOrEmpty(h []model.AssignmentRecord) []model.AssignmentRecord {
	if h == nil {
		return []model.AssignmentRecord{}
	}
	return h
}

func scanCase(sc scanner) (model.Case, error) {
	var c model.Case
	var urgency, status, history string
	var ml, predicted, complexity sql.NullFloat64
	var created, updated, deadline int64
	err := sc.Scan(&c.ID, &c.HospitalID, &c.PatientID, &urgency, &c.AssignedDoctorID, &status, &c.PriorityScore,
		&ml, &created, &updated, &deadline, &history, &predicted, &complexity)
	if err != nil {
		return model.Case{}, mapErr(err)
	}
	if err := fromJSON(history, &c.AssignmentHistory); err != nil {
		return model.Case{}, err
	}
	c.Urgency = model.Urgency(urgency)
	c.Status = model.CaseStatus(status)
	c.MLPriorityScore = floatPtr(ml)
	c.CreatedAt = fromNanos(created)
	c.LastUpdated = fromNanos(updated)
	c.SLADeadline = fromNanos(deadline)
	c.PredictedDuration = floatPtr(predicted)
	c.ComplexityScore = floatPtr(complexity)
	return c, nil
}
