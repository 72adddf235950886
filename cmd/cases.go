package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/medqueue/app"
	"github.com/kilianp07/medqueue/core/dispatch"
	"github.com/kilianp07/medqueue/core/model"
	"github.com/kilianp07/medqueue/pkg/export"
)

func newAdmitCmd(opts *options) *cobra.Command {
	var (
		hospitalID string
		urgency    string
		patient    model.Patient
		triage     float64
	)
	cmd := &cobra.Command{
		Use:   "admit",
		Short: "Admit a case and queue it by SLA deadline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := model.ParseUrgency(urgency)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("triage") {
				patient.TriageScore = &triage
			}
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				id, err := svc.Engine.Admit(ctx, hospitalID, patient, u)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&hospitalID, "hospital", "", "hospital id")
	f.StringVar(&urgency, "urgency", string(model.UrgencyRoutine), "emergency, urgent or routine")
	f.StringVar(&patient.ID, "patient", "", "patient id")
	f.IntVar(&patient.Age, "age", 0, "patient age")
	f.StringVar(&patient.Gender, "gender", "", "patient gender")
	f.StringSliceVar(&patient.Symptoms, "symptom", nil, "symptom tag (repeatable)")
	f.StringSliceVar(&patient.MedicalHistory, "history", nil, "medical history entry (repeatable)")
	f.StringVar(&patient.PreferredDoctor, "preferred-doctor", "", "preferred doctor id")
	f.Float64Var(&triage, "triage", 0, "triage score")
	_ = cmd.MarkFlagRequired("hospital")
	_ = cmd.MarkFlagRequired("patient")
	return cmd
}

func newOutcomeCmd(opts *options) *cobra.Command {
	var (
		caseID       string
		status       string
		duration     float64
		satisfaction float64
	)
	cmd := &cobra.Command{
		Use:   "outcome",
		Short: "Record the outcome of a case and close it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := dispatch.OutcomeInput{Status: model.CaseStatus(status), ActualDuration: duration}
			if cmd.Flags().Changed("satisfaction") {
				in.PatientSatisfaction = &satisfaction
			}
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				o, err := svc.Engine.RecordOutcome(ctx, caseID, in)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s met_sla=%t\n", o.CaseID, o.FinalStatus, o.MetSLA)
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&caseID, "case", "", "case id")
	f.StringVar(&status, "status", string(model.StatusCompleted), "completed or cancelled")
	f.Float64Var(&duration, "duration", 0, "actual duration in minutes")
	f.Float64Var(&satisfaction, "satisfaction", 0, "patient satisfaction")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func newCasesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cases",
		Short: "Inspect cases",
	}
	var (
		hospitalID string
		status     string
		format     string
		out        string
	)
	list := func(cmd *cobra.Command, write func(io.Writer, []model.Case) error) error {
		return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
			cases, err := svc.Engine.ListCases(ctx, hospitalID, model.CaseStatus(status))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if out != "" {
				fh, err := os.Create(out)
				if err != nil {
					return err
				}
				defer fh.Close()
				w = fh
			}
			return write(w, cases)
		})
	}

	ls := &cobra.Command{
		Use:   "ls",
		Short: "List the cases of a hospital",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return list(cmd, func(w io.Writer, cases []model.Case) error {
				for _, c := range cases {
					if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Urgency, c.Status,
						c.SLADeadline.Format("2006-01-02T15:04:05Z07:00"), c.AssignedDoctorID); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	exp := &cobra.Command{
		Use:   "export",
		Short: "Export the cases of a hospital as CSV or JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch format {
			case "csv":
				return list(cmd, export.WriteCSV)
			case "json":
				return list(cmd, export.WriteJSON)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	exp.Flags().StringVar(&format, "format", "csv", "csv or json")
	exp.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")

	cmd.PersistentFlags().StringVar(&hospitalID, "hospital", "", "hospital id")
	cmd.PersistentFlags().StringVar(&status, "status", "", "only cases with this status")
	_ = cmd.MarkPersistentFlagRequired("hospital")
	cmd.AddCommand(ls, exp)
	return cmd
}
