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

	"github.com/spf13/cobra"

	"github.com/cardinalhq/arret/internal/runner"
)

func init() {
	var flags cleanFlags
	c := &cobra.Command{
		Use:   "run-all",
		Short: "Inventory, plan and clean in one run",
	}
	flags.register(c)
	c.RunE = runStage("run-all", flags.apply(c), withRunner(func(ctx context.Context, r *runner.Runner) error {
		return reportSummary(r.RunAll(ctx))
	}))
	rootCmd.AddCommand(c)
}
