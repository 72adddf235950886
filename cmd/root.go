// Package cmd holds the medqueue command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/medqueue/app"
	"github.com/kilianp07/medqueue/config"
	"github.com/kilianp07/medqueue/infra/logger"
)

type options struct {
	cfgPath string
}

// NewRootCmd builds the command tree. Running it without a subcommand
// serves.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "medqueue",
		Short:         "Case dispatch engine with per-hospital deadline queues",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.serve(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&opts.cfgPath, "config", "c", "config.yaml", "configuration file")

	root.AddCommand(
		newServeCmd(opts),
		newAdmitCmd(opts),
		newOutcomeCmd(opts),
		newCasesCmd(opts),
		newReprioritizeCmd(opts),
		newResetWorkloadCmd(opts),
		newMigrateCmd(opts),
		newSeedCmd(opts),
		newModelCmd(),
	)
	return root
}

// Execute runs the CLI until it completes or SIGINT/SIGTERM is received.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// withService builds the service, hands it to fn and closes it afterwards.
func (o *options) withService(cmd *cobra.Command, fn func(context.Context, *app.Service) error) (err error) {
	cfg, err := o.load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			logger.New("main").Errorf("service close: %v", cerr)
		}
	}()
	return fn(ctx, svc)
}
