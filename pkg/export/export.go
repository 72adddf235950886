// Package export writes case listings for offline reporting.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/medqueue/core/model"
)

var csvHeader = []string{
	"case_id", "hospital_id", "patient_id", "urgency_level", "status",
	"assigned_doctor_id", "created_at", "sla_deadline", "first_assigned_at", "wait_seconds", "met_sla",
}

// WriteJSON writes the cases to w as a JSON array.
func WriteJSON(w io.Writer, cases []model.Case) error {
	if cases == nil {
		cases = []model.Case{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cases)
}

// WriteCSV writes one row per case. Assignment columns are empty for cases
// that were never assigned.
func WriteCSV(w io.Writer, cases []model.Case) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range cases {
		rec := []string{
			c.ID,
			c.HospitalID,
			c.PatientID,
			string(c.Urgency),
			string(c.Status),
			c.AssignedDoctorID,
			c.CreatedAt.UTC().Format(time.RFC3339),
			c.SLADeadline.UTC().Format(time.RFC3339),
			"", "", "",
		}
		if at, ok := c.FirstAssignedAt(); ok {
			rec[8] = at.UTC().Format(time.RFC3339)
			rec[9] = strconv.FormatFloat(at.Sub(c.CreatedAt).Seconds(), 'f', -1, 64)
			rec[10] = strconv.FormatBool(!at.After(c.SLADeadline))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
