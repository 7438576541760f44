package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacentio/canopy/cascade"
	"github.com/jacentio/canopy/entity"
)

// errBlocked makes the process exit non-zero when validation stopped the
// root. The result is still printed.
var errBlocked = errors.New("blocked by validation")

type cascadeOutput struct {
	Command    string         `json:"command"`
	Root       string         `json:"root"`
	DurationMS int64          `json:"duration_ms"`
	Result     cascade.Result `json:"result"`
}

type cascadeFlags struct {
	actor          string
	force          bool
	skipValidation bool
	maxDepth       int
}

func (f *cascadeFlags) bind(cmd *cobra.Command, withActor, withForce bool) {
	if withActor {
		cmd.Flags().StringVar(&f.actor, "actor", "", "ID of the user performing the deletion (required)")
		_ = cmd.MarkFlagRequired("actor")
	}
	if withForce {
		cmd.Flags().BoolVar(&f.force, "force", false, "Proceed past blocking validation errors")
	}
	cmd.Flags().BoolVar(&f.skipValidation, "skip-validation", false, "Skip precondition checks")
	cmd.Flags().IntVar(&f.maxDepth, "max-depth", 0, "Maximum walk depth (default CANOPY_MAX_DEPTH)")
}

func (f *cascadeFlags) options(a *app) cascade.Options {
	opts := cascade.Options{
		Force:          f.force,
		SkipValidation: f.skipValidation,
		MaxDepth:       a.maxDepth,
	}
	if f.maxDepth > 0 {
		opts.MaxDepth = f.maxDepth
	}
	return opts
}

// parseRoot accepts "kind#id" or "kind id".
func parseRoot(args []string) (entity.Ref, error) {
	if len(args) == 2 {
		kind, err := entity.ParseKind(args[0])
		if err != nil {
			return entity.Ref{}, err
		}
		return entity.NewRef(kind, args[1]), nil
	}
	return entity.ParseRef(args[0])
}

type runner func(cmd *cobra.Command, a *app, root entity.Ref, opts cascade.Options, actor string) (cascade.Result, error)

func newCascadeCmd(current func() *app, use, short, name string, withActor, withForce bool, run runner) *cobra.Command {
	var f cascadeFlags
	cmd := &cobra.Command{
		Use:   use + " <kind#id | kind id>",
		Short: short,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := parseRoot(args)
			if err != nil {
				return err
			}
			a := current()
			start := time.Now()
			res, err := run(cmd, a, root, f.options(a), f.actor)
			if err != nil {
				return fmt.Errorf("%s %s: %w", name, root, err)
			}
			out := cascadeOutput{
				Command:    name,
				Root:       root.String(),
				DurationMS: time.Since(start).Milliseconds(),
				Result:     res,
			}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if !res.Success {
				return errBlocked
			}
			return nil
		},
	}
	f.bind(cmd, withActor, withForce)
	return cmd
}

func newDeleteCmd(current func() *app) *cobra.Command {
	return newCascadeCmd(current, "delete", "Soft-delete a record and its descendants", "delete", true, true,
		func(cmd *cobra.Command, a *app, root entity.Ref, opts cascade.Options, actor string) (cascade.Result, error) {
			return a.engine.CascadeDelete(cmd.Context(), root, actor, opts)
		})
}

func newRestoreCmd(current func() *app) *cobra.Command {
	return newCascadeCmd(current, "restore", "Restore a record and its tombstoned descendants", "restore", false, false,
		func(cmd *cobra.Command, a *app, root entity.Ref, opts cascade.Options, _ string) (cascade.Result, error) {
			return a.engine.CascadeRestore(cmd.Context(), root, opts)
		})
}

func newPreviewCmd(current func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Report what a cascade would change without persisting it",
	}
	cmd.AddCommand(
		newCascadeCmd(current, "delete", "Preview a cascade delete", "preview delete", true, true,
			func(cmd *cobra.Command, a *app, root entity.Ref, opts cascade.Options, actor string) (cascade.Result, error) {
				return a.engine.PreviewDelete(cmd.Context(), root, actor, opts)
			}),
		newCascadeCmd(current, "restore", "Preview a cascade restore", "preview restore", false, false,
			func(cmd *cobra.Command, a *app, root entity.Ref, opts cascade.Options, _ string) (cascade.Result, error) {
				return a.engine.PreviewRestore(cmd.Context(), root, opts)
			}),
	)
	return cmd
}
