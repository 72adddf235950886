package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/medqueue/infra/prediction"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage the linear priority model",
	}
	var (
		samplesPath string
		out         string
		version     string
		ridge       float64
	)
	fit := &cobra.Command{
		Use:   "fit",
		Short: "Fit a linear model from labelled samples (JSON array)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(samplesPath)
			if err != nil {
				return err
			}
			var samples []prediction.Sample
			if err := json.Unmarshal(data, &samples); err != nil {
				return fmt.Errorf("decode samples: %w", err)
			}
			m, err := prediction.Fit(samples, ridge)
			if err != nil {
				return err
			}
			m.Version = version
			if err := m.Save(out); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "model %q fitted on %d samples, written to %s\n", version, len(samples), out)
			return err
		},
	}
	fit.Flags().StringVar(&samplesPath, "samples", "", "samples file")
	fit.Flags().StringVarP(&out, "output", "o", "model.json", "model file")
	fit.Flags().StringVar(&version, "version", "v1", "model version label")
	fit.Flags().Float64Var(&ridge, "ridge", 1.0, "ridge penalty")
	_ = fit.MarkFlagRequired("samples")
	cmd.AddCommand(fit)
	return cmd
}
