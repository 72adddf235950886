package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kilianp07/medqueue/app"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatch loop and housekeeping until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.serve(cmd)
		},
	}
}

func (o *options) serve(cmd *cobra.Command) error {
	return o.withService(cmd, func(ctx context.Context, svc *app.Service) error {
		return svc.Run(ctx)
	})
}
