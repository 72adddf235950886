package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/medqueue/app"
	"github.com/kilianp07/medqueue/core/model"
	"github.com/kilianp07/medqueue/core/store"
)

// Fixture is the seed file layout.
type Fixture struct {
	Hospitals []model.Hospital `yaml:"hospitals"`
	Doctors   []model.Doctor   `yaml:"doctors"`
}

// LoadFixture decodes a YAML seed file.
func LoadFixture(path string) (Fixture, error) {
	var fx Fixture
	data, err := os.ReadFile(path)
	if err != nil {
		return fx, err
	}
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return fx, fmt.Errorf("decode %s: %w", path, err)
	}
	return fx, nil
}

func newSeedCmd(opts *options) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load hospitals and doctors from a YAML fixture",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fx, err := LoadFixture(path)
			if err != nil {
				return err
			}
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				created, skipped, err := seed(ctx, svc, fx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d created, %d already present\n", created, skipped)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "fixture file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// seed is idempotent: entities that already exist are counted and left alone.
func seed(ctx context.Context, svc *app.Service, fx Fixture) (created, skipped int, err error) {
	count := func(err error) error {
		switch {
		case err == nil:
			created++
		case errors.Is(err, store.ErrConflict):
			skipped++
		default:
			return err
		}
		return nil
	}
	for _, h := range fx.Hospitals {
		_, err := svc.Engine.CreateHospital(ctx, h)
		if err := count(err); err != nil {
			return created, skipped, fmt.Errorf("hospital %s: %w", h.ID, err)
		}
	}
	for _, d := range fx.Doctors {
		_, err := svc.Engine.RegisterDoctor(ctx, d)
		if err := count(err); err != nil {
			return created, skipped, fmt.Errorf("doctor %s: %w", d.ID, err)
		}
	}
	return created, skipped, nil
}
