package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jacentio/canopy/entity"
	"github.com/jacentio/canopy/store"
	"github.com/jacentio/canopy/validate"
)

type validateOutput struct {
	Command string          `json:"command"`
	Root    string          `json:"root"`
	Report  validate.Report `json:"report"`
}

type check func(ctx context.Context, v *validate.Validator, tx store.Tx, rec entity.Record) (validate.Report, error)

func newValidateCmd(current func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the preconditions of a single record without cascading",
	}
	cmd.AddCommand(
		newCheckCmd(current, "delete", "validate delete",
			func(ctx context.Context, v *validate.Validator, tx store.Tx, rec entity.Record) (validate.Report, error) {
				return v.ValidateDeletion(ctx, tx, rec)
			}),
		newCheckCmd(current, "restore", "validate restore",
			func(ctx context.Context, v *validate.Validator, tx store.Tx, rec entity.Record) (validate.Report, error) {
				return v.ValidateRestoration(ctx, tx, rec)
			}),
	)
	return cmd
}

func newCheckCmd(current func() *app, use, name string, run check) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <kind#id | kind id>",
		Short: "Validate " + use + " preconditions",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := parseRoot(args)
			if err != nil {
				return err
			}
			a := current()
			ctx := cmd.Context()

			tx, err := a.backend.Begin(ctx)
			if err != nil {
				return err
			}
			defer tx.Rollback()

			rec, err := a.records.Load(ctx, tx, root)
			if err != nil {
				return err
			}
			report, err := run(ctx, a.validator, tx, rec)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), validateOutput{Command: name, Root: root.String(), Report: report}); err != nil {
				return err
			}
			if !report.Valid {
				return errBlocked
			}
			return nil
		},
	}
}
