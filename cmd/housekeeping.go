package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/medqueue/app"
	"github.com/kilianp07/medqueue/infra/logger"
	"github.com/kilianp07/medqueue/infra/sqlstore"
)

func newReprioritizeCmd(opts *options) *cobra.Command {
	var hospitalID string
	cmd := &cobra.Command{
		Use:   "reprioritize",
		Short: "Rebuild the deadline queue of a hospital, or of every hospital",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				if hospitalID == "" {
					return svc.Reconcile(ctx)
				}
				n, err := svc.Engine.Rebuild(ctx, hospitalID)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pending cases\n", hospitalID, n)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&hospitalID, "hospital", "", "hospital id (default all)")
	return cmd
}

func newResetWorkloadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-workload",
		Short: "Reset doctor workloads now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				n, err := svc.Scheduler.ResetNow(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d doctors reset\n", n)
				return err
			})
		},
	}
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the SQL schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			st, err := sqlstore.Open(cmd.Context(), cfg.Database, logger.New("migrate"))
			if err != nil {
				return err
			}
			defer st.Close()
			n, err := st.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d migrations applied, schema version %d\n", n, sqlstore.SchemaVersion())
			return err
		},
	}
}
