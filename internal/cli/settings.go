package cli

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pacer/internal/domain"
)

// SettingsOptions holds flags for settings set.
type SettingsOptions struct {
	*RootOptions
	DueEveryN             int
	WarningThreshold      float64
	ReminderInterval      time.Duration
	DefaultNegativeVolume float64
	Units                 string
}

// NewSettingsCommand creates the settings command group.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change reminder settings",
	}
	cmd.AddCommand(newSettingsShowCommand(rootOpts))
	cmd.AddCommand(newSettingsSetCommand(rootOpts))
	return cmd
}

func newSettingsShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) error {
				s, err := a.service.Settings(ctx)
				if err != nil {
					return classify("failed to load settings", err)
				}
				return a.out.Success(s, func(w io.Writer) {
					renderSettings(w, s)
				})
			})
		},
	}
}

func newSettingsSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SettingsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings",
		Long: `Change settings. Only the flags given are changed; the rest keep
their current values. New thresholds apply from the next logged event.

Examples:
  pacer settings set --due-every-n 3
  pacer settings set --warning-threshold 5 --reminder-interval 30m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) error {
				s, err := a.service.Settings(ctx)
				if err != nil {
					return classify("failed to load settings", err)
				}
				opts.apply(cmd, &s)
				if err := a.service.UpdateSettings(ctx, s); err != nil {
					return classify("failed to save settings", err)
				}
				return a.out.Success(s, func(w io.Writer) {
					renderSettings(w, s)
				})
			})
		},
	}

	cmd.Flags().IntVar(&opts.DueEveryN, "due-every-n", 0, "drinks between breaks")
	cmd.Flags().Float64Var(&opts.WarningThreshold, "warning-threshold", 0, "balance that triggers a warning")
	cmd.Flags().DurationVar(&opts.ReminderInterval, "reminder-interval", 0, "time between reminders, 0 disables them")
	cmd.Flags().Float64Var(&opts.DefaultNegativeVolume, "default-volume", 0, "volume of a glass of water")
	cmd.Flags().StringVar(&opts.Units, "units", "", "display units (metric|imperial)")

	return cmd
}

func (o *SettingsOptions) apply(cmd *cobra.Command, s *domain.UserSettings) {
	flags := cmd.Flags()
	if flags.Changed("due-every-n") {
		s.DueEveryN = o.DueEveryN
	}
	if flags.Changed("warning-threshold") {
		s.WarningThreshold = o.WarningThreshold
	}
	if flags.Changed("reminder-interval") {
		s.ReminderInterval = o.ReminderInterval
	}
	if flags.Changed("default-volume") {
		s.DefaultNegativeVolume = o.DefaultNegativeVolume
	}
	if flags.Changed("units") {
		s.Units = domain.Units(o.Units)
	}
}
