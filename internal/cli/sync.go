package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/pacer/internal/command"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push pending records to the remote store",
		Long: `Run a sync pass now and report what was pushed.

Exit codes:
  0 - Pass finished with nothing pending
  1 - Records remain pending (offline, unreachable or rejected)
  2 - Command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) error {
				res, err := command.Dispatch(ctx, a.service, command.TriggerSync{})
				if err != nil {
					return classify("sync failed", err)
				}
				report := res.Report
				if err := a.out.Success(report, func(w io.Writer) {
					renderReport(w, *report)
				}); err != nil {
					return err
				}
				if report.Pending > 0 {
					return reported(NewExitError(ExitFailure, "records remain pending"))
				}
				return nil
			})
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sync indicator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) error {
				res, err := command.Dispatch(ctx, a.service, command.SyncStatus{})
				if err != nil {
					return classify("failed to read sync status", err)
				}
				return a.out.Success(res.Status, func(w io.Writer) {
					renderSnapshot(w, *res.Status)
				})
			})
		},
	}
}
