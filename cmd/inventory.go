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

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/arret/config"
	"github.com/cardinalhq/arret/internal/runner"
)

func init() {
	var prefix string
	c := &cobra.Command{
		Use:   "inventory",
		Short: "List the bucket into the inventory file",
	}
	c.Flags().StringVar(&prefix, "prefix", "", "only list objects whose names start with this prefix")
	c.RunE = runStage("inventory",
		func(cfg *config.Config) {
			if c.Flags().Changed("prefix") {
				cfg.Inventory.Prefix = prefix
			}
		},
		withRunner(func(ctx context.Context, r *runner.Runner) error {
			stats, err := r.RunInventory(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("inventoried %s objects (%s) in %d pages to %s\n",
				humanize.Comma(stats.Records), humanize.Bytes(uint64(stats.Bytes)),
				stats.Pages, r.Config().Inventory.Path)
			return nil
		}))
	rootCmd.AddCommand(c)
}
