package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/pacer/internal/command"
	"github.com/roach88/pacer/internal/domain"
)

// NewSessionCommand creates the session command group.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Start, end and list sessions",
	}
	cmd.AddCommand(newSessionStartCommand(rootOpts))
	cmd.AddCommand(newSessionEndCommand(rootOpts))
	cmd.AddCommand(newSessionListCommand(rootOpts))
	cmd.AddCommand(newSessionShowCommand(rootOpts))
	return cmd
}

func newSessionStartCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start a new session",
		Long: `Start a new session. Only one session can be active at a time.

Example:
  pacer session start`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) error {
				res, err := command.Dispatch(ctx, a.service, command.StartSession{})
				if err != nil {
					return classify("failed to start session", err)
				}
				sess := res.Session
				return a.out.Success(sess, func(w io.Writer) {
					fmtLine(w, "Started session %s at %s", sess.ID, formatTime(sess.StartedAt))
				})
			})
		},
	}
}

func newSessionEndCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "end [session-id]",
		Short: "End a session",
		Long: `End a session and print its summary. Without an id the active
session is ended.

Examples:
  pacer session end
  pacer session end 01890a5d-ac96-774b-bcce-b302099a8057`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) error {
				id, err := sessionArg(ctx, a, args)
				if err != nil {
					return err
				}
				res, err := command.Dispatch(ctx, a.service, command.EndSession{SessionID: id})
				if err != nil {
					return classify("failed to end session", err)
				}
				return a.out.Success(res.Summary, func(w io.Writer) {
					renderSummary(w, id, *res.Summary)
				})
			})
		},
	}
}

func newSessionListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) error {
				sessions, err := a.service.Sessions(ctx)
				if err != nil {
					return classify("failed to list sessions", err)
				}
				if sessions == nil {
					sessions = []domain.Session{}
				}
				return a.out.Success(sessions, func(w io.Writer) {
					renderSessions(w, sessions)
				})
			})
		},
	}
}

func newSessionShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [session-id]",
		Short: "Show a session summary",
		Long: `Show a session's summary. Ended sessions report their cached
summary; the active session is summarized up to now.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) error {
				id, err := sessionArg(ctx, a, args)
				if err != nil {
					return err
				}
				summary, err := a.service.Summary(ctx, id)
				if err != nil {
					return classify("failed to summarize session", err)
				}
				return a.out.Success(summary, func(w io.Writer) {
					renderSummary(w, id, summary)
				})
			})
		},
	}
}

// sessionArg returns the session named in args, or the active session.
func sessionArg(ctx context.Context, a *app, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	return activeSessionID(ctx, a)
}

func activeSessionID(ctx context.Context, a *app) (string, error) {
	sess, err := a.service.ActiveSession(ctx)
	if err != nil {
		return "", classify("no session given", err)
	}
	return sess.ID, nil
}
