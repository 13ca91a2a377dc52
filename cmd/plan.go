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
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/arret/config"
	"github.com/cardinalhq/arret/internal/plan"
	"github.com/cardinalhq/arret/internal/runner"
)

func init() {
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Resolve references and build the deletion plan from the inventory",
	}
	planCmd.RunE = runStage("plan", nil, withRunner(func(ctx context.Context, r *runner.Runner) error {
		counts, err := r.RunPlan(ctx)
		if err != nil {
			return err
		}
		printCounts(r.Config().Plan.Path, counts)
		return nil
	}))

	planCmd.AddCommand(planShowCmd(), planQueryCmd(), planDecideCmd(), planExportCmd())
	rootCmd.AddCommand(planCmd)
}

// openPlan opens the configured plan file without building a runner, so
// plan inspection works without reference sources being reachable.
func openPlan(ctx context.Context, cfg *config.Config, readOnly bool) (*plan.Store, error) {
	if err := cfg.DuckDB.Validate(); err != nil {
		return nil, err
	}
	return plan.Open(ctx, cfg.Plan.Path, readOnly, cfg.DuckDB.Settings())
}

func printCounts(path string, c plan.Counts) {
	fmt.Printf("plan %s\n", path)
	fmt.Printf("  objects:     %s (%s)\n", humanize.Comma(c.Rows), humanize.Bytes(uint64(c.Bytes)))
	fmt.Printf("  referenced:  %s\n", humanize.Comma(c.Referenced))
	fmt.Printf("  force-kept:  %s\n", humanize.Comma(c.ForceKept))
	fmt.Printf("  protected:   %s\n", humanize.Comma(c.Protected))
	fmt.Printf("  to delete:   %s (%s)\n", humanize.Comma(c.Eligible), humanize.Bytes(uint64(c.EligibleBytes)))
}

func planShowCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "show",
		Short: "Show how the plan was built and what it would delete",
	}
	c.RunE = runStage("plan-show", nil, func(ctx context.Context, cfg *config.Config, _ string) error {
		store, err := openPlan(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		m := store.Meta()
		fmt.Printf("run:         %s\n", m.RunID)
		fmt.Printf("bucket:      %s\n", m.URIPrefix)
		fmt.Printf("evaluated:   %s\n", m.EvaluatedAt.Format(time.RFC3339))
		fmt.Printf("decided:     %s\n", m.DecidedAt.Format(time.RFC3339))
		fmt.Printf("expression:  %s\n", m.Policy.Expression)
		fmt.Printf("old after:   %d days\n", m.Policy.DaysConsideredOld)
		fmt.Printf("large above: %s\n", humanize.Bytes(uint64(m.Policy.BytesConsideredLarge)))

		counts, err := store.Counts(ctx)
		if err != nil {
			return err
		}
		printCounts(cfg.Plan.Path, counts)
		return nil
	})
	return c
}

func planQueryCmd() *cobra.Command {
	var (
		expr  string
		limit int
	)
	c := &cobra.Command{
		Use:   "query",
		Short: "List objects an alternate expression would delete, without changing the plan",
	}
	c.Flags().StringVar(&expr, "expr", "", "deletion expression, e.g. \"old AND large\"")
	c.Flags().IntVar(&limit, "limit", 100, "maximum rows to print (0 = all)")
	mustMarkRequired(c, "expr")

	c.RunE = runStage("plan-query", nil, func(ctx context.Context, cfg *config.Config, _ string) error {
		e, err := plan.ParseExpression(expr)
		if err != nil {
			return err
		}
		store, err := openPlan(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		rows, bytes, err := store.QueryCounts(ctx, e)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSIZE\tAGE_DAYS\tRULES")
		err = store.Query(ctx, e, limit, func(r plan.Row) error {
			_, err := fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.Name, humanize.Bytes(uint64(r.SizeBytes)), r.AgeDays, matchedRules(r))
			return err
		})
		if err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("%s would delete %s objects (%s)\n", e, humanize.Comma(rows), humanize.Bytes(uint64(bytes)))
		return nil
	})
	return c
}

func matchedRules(r plan.Row) string {
	var names []string
	for _, n := range plan.RuleNames {
		if r.Flag(n) {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}

func planDecideCmd() *cobra.Command {
	var expr string
	c := &cobra.Command{
		Use:   "decide",
		Short: "Replace the plan's deletion decisions using a new expression",
	}
	c.Flags().StringVar(&expr, "expr", "", "deletion expression")
	mustMarkRequired(c, "expr")

	c.RunE = runStage("plan-decide", nil, func(ctx context.Context, cfg *config.Config, _ string) error {
		e, err := plan.ParseExpression(expr)
		if err != nil {
			return err
		}
		store, err := openPlan(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		counts, err := store.Decide(ctx, e, time.Now())
		if err != nil {
			return err
		}
		printCounts(cfg.Plan.Path, counts)
		return nil
	})
	return c
}

func planExportCmd() *cobra.Command {
	var out string
	c := &cobra.Command{
		Use:   "export",
		Short: "Export the plan rows to a Parquet file",
	}
	c.Flags().StringVar(&out, "out", "", "Parquet file to write")
	mustMarkRequired(c, "out")

	c.RunE = runStage("plan-export", nil, func(ctx context.Context, cfg *config.Config, _ string) error {
		store, err := openPlan(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		n, err := store.Export(ctx, out)
		if err != nil {
			return err
		}
		fmt.Printf("exported %s rows to %s\n", humanize.Comma(n), out)
		return nil
	})
	return c
}
