package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/pacer/internal/core"
	"github.com/roach88/pacer/internal/domain"
)

// PresetOptions holds flags for preset add and update.
type PresetOptions struct {
	*RootOptions
	DrinkType string
	Size      float64
	Weight    float64
}

// NewPresetCommand creates the preset command group.
func NewPresetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage drink presets",
	}
	cmd.AddCommand(newPresetAddCommand(rootOpts))
	cmd.AddCommand(newPresetUpdateCommand(rootOpts))
	cmd.AddCommand(newPresetListCommand(rootOpts))
	cmd.AddCommand(newPresetDeleteCommand(rootOpts))
	return cmd
}

func (o *PresetOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.DrinkType, "type", "", "drink type, e.g. beer")
	cmd.Flags().Float64Var(&o.Size, "size", 0, "serving size")
	cmd.Flags().Float64Var(&o.Weight, "weight", domain.DefaultWeight, "weight added to the balance")
}

func (o *PresetOptions) input(name string) core.PresetInput {
	return core.PresetInput{Name: name, DrinkType: o.DrinkType, Size: o.Size, Weight: o.Weight}
}

func newPresetAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PresetOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Save a preset",
		Long: `Save a named preset. Events logged from it copy its weight and
name, so later edits or deletion never change them.

Example:
  pacer preset add "Pint of lager" --type beer --size 568 --weight 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) error {
				p, err := a.service.SavePreset(ctx, opts.input(args[0]))
				if err != nil {
					return classify("failed to save preset", err)
				}
				return a.out.Success(p, func(w io.Writer) {
					fmtLine(w, "Saved preset %s (%s)", p.Name, p.ID)
				})
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

func newPresetUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PresetOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "update <preset-id> <name>",
		Short: "Update a preset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) error {
				p, err := a.service.UpdatePreset(ctx, args[0], opts.input(args[1]))
				if err != nil {
					return classify("failed to update preset", err)
				}
				return a.out.Success(p, func(w io.Writer) {
					fmtLine(w, "Updated preset %s (%s)", p.Name, p.ID)
				})
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

func newPresetListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) error {
				presets, err := a.service.Presets(ctx)
				if err != nil {
					return classify("failed to list presets", err)
				}
				if presets == nil {
					presets = []domain.Preset{}
				}
				return a.out.Success(presets, func(w io.Writer) {
					renderPresets(w, presets)
				})
			})
		},
	}
}

func newPresetDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <preset-id>",
		Short: "Delete a preset",
		Long:  `Delete a preset. Events already logged from it are unchanged.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) error {
				if err := a.service.DeletePreset(ctx, args[0]); err != nil {
					return classify("failed to delete preset", err)
				}
				return a.out.Success(map[string]string{"deleted": args[0]}, func(w io.Writer) {
					fmtLine(w, "Deleted preset %s", args[0])
				})
			})
		},
	}
}
