package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/pacer/internal/command"
)

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply [file]",
		Short: "Apply JSON-lines commands",
		Long: `Read one JSON command per line from file (or stdin) and apply each
in order. One JSON response line is written per command. Blank lines and
lines starting with # are skipped.

Each command names its type, e.g.:
  {"type":"start_session"}
  {"type":"append_event","session_id":"...","kind":"positive","weight":1.5}
  {"type":"end_session","session_id":"..."}

Exit codes:
  0 - Every command succeeded
  1 - One or more commands failed
  2 - Command error (unreadable input, local storage failure)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to open input", err)
				}
				defer f.Close()
				in = f
			}

			return run(cmd, rootOpts, func(ctx context.Context, a *app) error {
				stats, err := command.Apply(ctx, in, cmd.OutOrStdout(), a.service)
				a.logger.Debug("apply finished", "applied", stats.Applied, "failed", stats.Failed)
				if err != nil {
					return WrapExitError(ExitCommandError, "apply stopped", err)
				}
				if stats.Failed > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d commands failed\n", stats.Failed, stats.Applied+stats.Failed)
					return reported(NewExitError(ExitFailure, "commands failed"))
				}
				return nil
			})
		},
	}
}

// EraseOptions holds flags for the erase command.
type EraseOptions struct {
	*RootOptions
	Yes    bool
	UserID string
}

// NewEraseCommand creates the erase command.
func NewEraseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EraseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Delete all of a user's data, locally and remotely",
		Long: `Delete every session, event, preset and setting of a user from the
local database, then ask the remote store to delete them too. The local
purge always completes; a remote failure is reported but does not undo it.

Example:
  pacer erase --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Yes {
				return NewExitError(ExitCommandError, "refusing to erase without --yes")
			}
			return run(cmd, rootOpts, func(ctx context.Context, a *app) error {
				userID := opts.UserID
				if userID == "" {
					userID = a.service.UserID()
				}
				result, err := a.service.DeleteAllUserData(ctx, userID)
				if err != nil {
					return classify("failed to erase user data", err)
				}
				return a.out.Success(result, func(w io.Writer) {
					fmtLine(w, "Erased local data for %s", userID)
					if result.RemoteDeleted {
						fmtLine(w, "Remote data deleted")
					} else {
						fmtLine(w, "Remote deletion failed: %s", result.RemoteError)
					}
				})
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm deletion")
	cmd.Flags().StringVar(&opts.UserID, "user", "", "user to erase (default: configured user)")

	return cmd
}
