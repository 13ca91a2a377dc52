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
	"os"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/arret/config"
	"github.com/cardinalhq/arret/internal/cleanup"
	"github.com/cardinalhq/arret/internal/runner"
)

type cleanFlags struct {
	dryRun      bool
	failuresOut string
}

func (f *cleanFlags) register(c *cobra.Command) {
	c.Flags().BoolVar(&f.dryRun, "dry-run", false, "report what would be deleted without deleting")
	c.Flags().StringVar(&f.failuresOut, "failures-out", "", "write failed objects to this file as NDJSON")
}

func (f *cleanFlags) apply(c *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		if c.Flags().Changed("dry-run") {
			cfg.Cleanup.DryRun = f.dryRun
		}
		if c.Flags().Changed("failures-out") {
			cfg.Cleanup.FailuresOut = f.failuresOut
		}
	}
}

// reportSummary prints the run report and turns object failures into a
// non-zero exit.
func reportSummary(summary *cleanup.Summary, err error) error {
	if summary != nil {
		if werr := summary.WriteReport(os.Stdout); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d objects could not be deleted: %w", summary.Failed, summary.Err())
	}
	return nil
}

func init() {
	var flags cleanFlags
	c := &cobra.Command{
		Use:   "clean",
		Short: "Delete the objects the plan marks for deletion",
	}
	flags.register(c)
	c.RunE = runStage("clean", flags.apply(c), withRunner(func(ctx context.Context, r *runner.Runner) error {
		return reportSummary(r.RunClean(ctx))
	}))
	rootCmd.AddCommand(c)
}
