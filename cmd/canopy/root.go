package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jacentio/canopy/cascade"
	"github.com/jacentio/canopy/entity"
	"github.com/jacentio/canopy/internal/config"
	"github.com/jacentio/canopy/metrics"
	"github.com/jacentio/canopy/store"
	"github.com/jacentio/canopy/validate"
)

// app holds the components one command invocation works with.
type app struct {
	backend   store.Backend
	records   *store.Collections
	validator *validate.Validator
	engine    *cascade.Engine
	registry  *prometheus.Registry
	logger    *slog.Logger
	maxDepth  int
}

func newApp(backend store.Backend, logger *slog.Logger, namespace string, maxDepth int) *app {
	records := store.NewCollections(entity.DefaultRegistry(), time.Now)
	validator := validate.New(records, validate.Thresholds{})
	engine := cascade.New(backend, records, validator, logger)

	reg := prometheus.NewRegistry()
	engine.SetMetrics(metrics.New(namespace, reg))

	return &app{
		backend:   backend,
		records:   records,
		validator: validator,
		engine:    engine,
		registry:  reg,
		logger:    logger,
		maxDepth:  maxDepth,
	}
}

// newRootCmd builds the command tree. A nil a is built from the environment
// before the first subcommand runs.
func newRootCmd(a *app) *cobra.Command {
	var (
		envFiles    []string
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:           "canopy",
		Short:         "Cascade soft deletion and restoration of tenant records",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a != nil {
				return nil
			}
			cfg, err := config.Load(envFiles...)
			if err != nil {
				return err
			}
			backend, err := cfg.Backend(cmd.Context())
			if err != nil {
				return err
			}
			a = newApp(backend, cfg.Logger(cmd.ErrOrStderr()), cfg.MetricsNamespace, cfg.MaxDepth)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if metricsFile == "" || a == nil {
				return nil
			}
			if err := prometheus.WriteToTextfile(metricsFile, a.registry); err != nil {
				return fmt.Errorf("write metrics: %w", err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Env files to load (default .env, .env.local)")
	cmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	current := func() *app { return a }
	cmd.AddCommand(
		newDeleteCmd(current),
		newRestoreCmd(current),
		newPreviewCmd(current),
		newValidateCmd(current),
	)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
