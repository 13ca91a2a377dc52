// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/arret/config"
	"github.com/cardinalhq/arret/internal/idgen"
	"github.com/cardinalhq/arret/internal/logctx"
	"github.com/cardinalhq/arret/internal/runner"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "arret",
	Short: "Delete unreferenced objects from a cloud bucket",
	Long: `arret inventories a bucket, resolves which objects are referenced from
workspace tables, plans deletions with a boolean policy over classification
rules, and deletes what the plan marks, never touching referenced or
force-kept objects.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./arret.yaml)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// stageFunc runs one command against a loaded configuration.
type stageFunc func(ctx context.Context, cfg *config.Config, runID string) error

// runStage loads the configuration, lets override adjust it from flags,
// sets up logging and telemetry, and runs fn.
func runStage(stage string, override func(*config.Config), fn stageFunc) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if override != nil {
			override(cfg)
		}

		runID := idgen.NewRunID(time.Now())
		ctx, shutdown, err := setupTelemetry(runID)
		defer func() {
			if err := shutdown(); err != nil {
				slog.Error("Error during shutdown", slog.Any("error", err))
			}
		}()
		if err != nil {
			return err
		}
		ctx = logctx.WithLogger(ctx, slog.Default())

		start := time.Now()
		err = fn(ctx, cfg, runID)
		recordStage(ctx, stage, start, err)
		if err != nil {
			slog.Error("Stage failed", slog.String("stage", stage), slog.Any("error", err))
		}
		return err
	}
}

// withRunner adapts fn to a validated runner built from the configuration.
func withRunner(fn func(ctx context.Context, r *runner.Runner) error) stageFunc {
	return func(ctx context.Context, cfg *config.Config, runID string) error {
		if err := cfg.DuckDB.Validate(); err != nil {
			return err
		}
		r, err := runner.New(cfg.Runner(runID))
		if err != nil {
			return err
		}
		defer func() { _ = r.Close() }()
		return fn(ctx, r)
	}
}

func mustMarkRequired(c *cobra.Command, name string) {
	if err := c.MarkFlagRequired(name); err != nil {
		panic(fmt.Errorf("failed to mark %s flag as required: %w", name, err))
	}
}
