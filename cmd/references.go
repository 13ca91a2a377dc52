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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/arret/internal/references"
	"github.com/cardinalhq/arret/internal/runner"
)

func init() {
	var out string
	c := &cobra.Command{
		Use:   "references",
		Short: "Resolve the reference set and print it",
	}
	c.Flags().StringVar(&out, "out", "", "write the URIs to this file instead of stdout")
	c.RunE = runStage("references", nil, withRunner(func(ctx context.Context, r *runner.Runner) error {
		refs, stats, err := r.RunReferences(ctx)
		if err != nil {
			return err
		}
		if out == "" {
			return writeURIs(os.Stdout, refs)
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := writeURIs(f, refs); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %d URIs from %d tables to %s\n", refs.Len(), stats.Tables, out)
		return nil
	}))
	rootCmd.AddCommand(c)
}

func writeURIs(w io.Writer, refs *references.Set) error {
	bw := bufio.NewWriter(w)
	for _, u := range refs.Sorted() {
		if _, err := fmt.Fprintln(bw, u); err != nil {
			return err
		}
	}
	return bw.Flush()
}
