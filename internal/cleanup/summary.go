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

package cleanup

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/arret/internal/plan"
)

// Result is the per-object outcome of a delete attempt.
type Result string

const (
	ResultDeleted       Result = "deleted"
	ResultAlreadyAbsent Result = "already-absent"
	ResultFailed        Result = "failed"
)

// Outcome records what happened to one plan target.
type Outcome struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	Result    Result `json:"result"`
	Reason    string `json:"reason,omitempty"`
}

// Summary is the report of one cleanup run.
type Summary struct {
	DryRun bool

	Inventoried   int64
	Protected     int64
	Eligible      int64
	EligibleBytes int64

	Deleted       int64
	AlreadyAbsent int64
	Failed        int64
	DeletedBytes  int64

	// Failures is sorted by name once the run finishes.
	Failures []Outcome
	Duration time.Duration

	mu sync.Mutex
}

func newSummary(counts plan.Counts, dryRun bool) *Summary {
	return &Summary{
		DryRun:        dryRun,
		Inventoried:   counts.Rows,
		Protected:     counts.Protected,
		Eligible:      counts.Eligible,
		EligibleBytes: counts.EligibleBytes,
	}
}

func (s *Summary) record(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch o.Result {
	case ResultDeleted:
		s.Deleted++
		s.DeletedBytes += o.SizeBytes
	case ResultAlreadyAbsent:
		s.AlreadyAbsent++
	case ResultFailed:
		s.Failed++
		s.Failures = append(s.Failures, o)
	}
}

func (s *Summary) finish(start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slices.SortFunc(s.Failures, func(a, b Outcome) int { return strings.Compare(a.Name, b.Name) })
	s.Duration = time.Since(start)
}

// Err returns one error per failed object, or nil when nothing failed.
func (s *Summary) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs *multierror.Error
	for _, f := range s.Failures {
		errs = multierror.Append(errs, fmt.Errorf("%s: %s", f.Name, f.Reason))
	}
	return errs.ErrorOrNil()
}

// Log writes the summary as one structured line.
func (s *Summary) Log(ll *slog.Logger) {
	ll.Info("Cleanup summary",
		slog.Bool("dryRun", s.DryRun),
		slog.Int64("inventoried", s.Inventoried),
		slog.Int64("protected", s.Protected),
		slog.Int64("eligible", s.Eligible),
		slog.String("eligibleBytes", humanize.Bytes(uint64(max(s.EligibleBytes, 0)))),
		slog.Int64("deleted", s.Deleted),
		slog.Int64("alreadyAbsent", s.AlreadyAbsent),
		slog.Int64("failed", s.Failed),
		slog.String("deletedBytes", humanize.Bytes(uint64(max(s.DeletedBytes, 0)))),
		slog.Duration("duration", s.Duration))
}

// WriteReport prints a human-readable report, including every failure.
func (s *Summary) WriteReport(w io.Writer) error {
	var b strings.Builder
	if s.DryRun {
		b.WriteString("DRY RUN: nothing was deleted\n")
	}
	fmt.Fprintf(&b, "inventoried:    %s\n", humanize.Comma(s.Inventoried))
	fmt.Fprintf(&b, "protected:      %s\n", humanize.Comma(s.Protected))
	fmt.Fprintf(&b, "eligible:       %s (%s)\n", humanize.Comma(s.Eligible), humanize.Bytes(uint64(max(s.EligibleBytes, 0))))
	fmt.Fprintf(&b, "deleted:        %s (%s)\n", humanize.Comma(s.Deleted), humanize.Bytes(uint64(max(s.DeletedBytes, 0))))
	fmt.Fprintf(&b, "already-absent: %s\n", humanize.Comma(s.AlreadyAbsent))
	fmt.Fprintf(&b, "failed:         %s\n", humanize.Comma(s.Failed))
	for _, f := range s.Failures {
		fmt.Fprintf(&b, "  %s: %s\n", f.Name, f.Reason)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteFailures writes failed outcomes to path as NDJSON.
func (s *Summary) WriteFailures(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create failures directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create failures file: %w", err)
	}
	enc := json.NewEncoder(f)
	for _, o := range s.Failures {
		if err := enc.Encode(o); err != nil {
			_ = f.Close()
			return fmt.Errorf("write failures file: %w", err)
		}
	}
	return f.Close()
}
