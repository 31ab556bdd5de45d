package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pacer/internal/command"
	"github.com/roach88/pacer/internal/domain"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Session string
	Preset  string
	Weight  float64
	Volume  float64
	Label   string
	Source  string
	At      string
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log [positive|negative]",
		Short: "Log a drink or a glass of water",
		Long: `Log an event into the active session (or --session).

A positive event adds its weight (default 1) to the running balance. A
negative event subtracts one and resets the break counter. --preset logs
a positive event copied from a saved preset.

Examples:
  pacer log positive
  pacer log positive --weight 1.5 --label "double"
  pacer log negative --volume 330
  pacer log --preset 01890a5d-ac96-774b-bcce-b302099a8057`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) error {
				logCmd, err := opts.command(ctx, cmd, a, args)
				if err != nil {
					return err
				}
				res, err := command.Dispatch(ctx, a.service, logCmd)
				if err != nil {
					return classify("failed to log event", err)
				}
				return a.out.Success(res.Outcome, func(w io.Writer) {
					renderOutcome(w, "Logged", *res.Outcome)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: the active session)")
	cmd.Flags().StringVar(&opts.Preset, "preset", "", "log from a saved preset")
	cmd.Flags().Float64Var(&opts.Weight, "weight", domain.DefaultWeight, "weight of a positive event")
	cmd.Flags().Float64Var(&opts.Volume, "volume", 0, "volume of a negative event (default: settings)")
	cmd.Flags().StringVar(&opts.Label, "label", "", "free-form label")
	cmd.Flags().StringVar(&opts.Source, "source", string(domain.SourcePhone), "source surface")
	cmd.Flags().StringVar(&opts.At, "at", "", "event time, RFC 3339 (default: now)")

	return cmd
}

// command builds the typed command for the flags given. Weight and volume
// are only sent when set, so defaults stay the service's decision.
func (o *LogOptions) command(ctx context.Context, cmd *cobra.Command, a *app, args []string) (command.Command, error) {
	sessionID := o.Session
	if sessionID == "" {
		id, err := activeSessionID(ctx, a)
		if err != nil {
			return nil, err
		}
		sessionID = id
	}

	var c command.Command
	switch {
	case o.Preset != "" && len(args) > 0:
		return nil, NewExitError(ExitCommandError, "--preset and an event kind are mutually exclusive")
	case o.Preset != "":
		c = command.AppendPreset{SessionID: sessionID, PresetID: o.Preset, Source: domain.Source(o.Source)}
	case len(args) == 0:
		return nil, NewExitError(ExitCommandError, "an event kind (positive or negative) or --preset is required")
	default:
		ev := command.AppendEvent{
			SessionID: sessionID,
			Kind:      domain.EventKind(args[0]),
			Label:     o.Label,
			Source:    domain.Source(o.Source),
		}
		if cmd.Flags().Changed("weight") {
			ev.Weight = &o.Weight
		}
		if cmd.Flags().Changed("volume") {
			ev.Volume = &o.Volume
		}
		if o.At != "" {
			at, err := time.Parse(time.RFC3339, o.At)
			if err != nil {
				return nil, WrapExitError(ExitCommandError, "invalid --at", err)
			}
			ev.At = &at
		}
		c = ev
	}

	if err := c.Validate(); err != nil {
		return nil, classify("invalid event", err)
	}
	return c, nil
}

// NewEventCommand creates the event command group.
func NewEventCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "List, delete and replace logged events",
	}
	cmd.AddCommand(newEventListCommand(rootOpts))
	cmd.AddCommand(newEventDeleteCommand(rootOpts))
	cmd.AddCommand(newEventReplaceCommand(rootOpts))
	return cmd
}

func newEventListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [session-id]",
		Short: "List a session's events in time order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) error {
				id, err := sessionArg(ctx, a, args)
				if err != nil {
					return err
				}
				events, err := a.service.Events(ctx, id)
				if err != nil {
					return classify("failed to list events", err)
				}
				if events == nil {
					events = []domain.Event{}
				}
				return a.out.Success(events, func(w io.Writer) {
					renderEvents(w, events)
				})
			})
		},
	}
}

func newEventDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <event-id>",
		Short: "Delete an event and recompute its session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) error {
				res, err := command.Dispatch(ctx, a.service, command.DeleteEvent{EventID: args[0]})
				if err != nil {
					return classify("failed to delete event", err)
				}
				return a.out.Success(res.Outcome, func(w io.Writer) {
					fmtLine(w, "Deleted event %s", args[0])
					renderState(w, res.Outcome.State)
					renderSignals(w, res.Outcome.Signals)
				})
			})
		},
	}
}

// ReplaceOptions holds flags for the event replace command.
type ReplaceOptions struct {
	*RootOptions
	Kind   string
	Weight float64
	Volume float64
	Label  string
}

func newEventReplaceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplaceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replace <event-id>",
		Short: "Replace an event's payload, keeping its id and time",
		Long: `Replace an event's payload. The event keeps its id and timestamp;
kind, weight, volume and label are taken from the flags.

Example:
  pacer event replace 01890a5d-ac96-774b-bcce-b302099a8057 --kind negative --volume 500`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) error {
				payload, err := opts.payload(ctx, cmd, a)
				if err != nil {
					return err
				}
				c := command.ReplaceEvent{EventID: args[0], Payload: payload}
				if err := c.Validate(); err != nil {
					return classify("invalid event", err)
				}
				res, err := command.Dispatch(ctx, a.service, c)
				if err != nil {
					return classify("failed to replace event", err)
				}
				return a.out.Success(res.Outcome, func(w io.Writer) {
					renderOutcome(w, "Replaced", *res.Outcome)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "event kind (positive|negative)")
	cmd.Flags().Float64Var(&opts.Weight, "weight", domain.DefaultWeight, "weight of a positive event")
	cmd.Flags().Float64Var(&opts.Volume, "volume", 0, "volume of a negative event (default: settings)")
	cmd.Flags().StringVar(&opts.Label, "label", "", "free-form label")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

func (o *ReplaceOptions) payload(ctx context.Context, cmd *cobra.Command, a *app) (domain.Payload, error) {
	p := domain.Payload{Kind: domain.EventKind(o.Kind), Label: o.Label}
	switch p.Kind {
	case domain.EventPositive:
		if cmd.Flags().Changed("volume") {
			return p, NewExitError(ExitCommandError, "--volume applies to negative events")
		}
		p.Weight = o.Weight
	case domain.EventNegative:
		if cmd.Flags().Changed("weight") {
			return p, NewExitError(ExitCommandError, "--weight applies to positive events")
		}
		p.Volume = o.Volume
		if !cmd.Flags().Changed("volume") {
			settings, err := a.service.Settings(ctx)
			if err != nil {
				return p, classify("failed to load settings", err)
			}
			p.Volume = settings.DefaultNegativeVolume
		}
	default:
		return p, NewExitError(ExitCommandError, fmt.Sprintf("unknown event kind %q", o.Kind))
	}
	return p, nil
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state [session-id]",
		Short: "Show a session's derived state",
		Long: `Recompute and show a session's derived state from its events.
Without an id the active session is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) error {
				id, err := sessionArg(ctx, a, args)
				if err != nil {
					return err
				}
				res, err := command.Dispatch(ctx, a.service, command.CurrentState{SessionID: id})
				if err != nil {
					return classify("failed to compute state", err)
				}
				return a.out.Success(res.State, func(w io.Writer) {
					fmtLine(w, "Session:        %s", id)
					renderState(w, *res.State)
				})
			})
		},
	}
}
