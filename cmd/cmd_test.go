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
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/arret/internal/cleanup"
	"github.com/cardinalhq/arret/internal/plan"
	"github.com/cardinalhq/arret/internal/references"
)

func TestMatchedRules(t *testing.T) {
	assert.Equal(t, "-", matchedRules(plan.Row{}))
	assert.Equal(t, "pipeline_logs,large", matchedRules(plan.Row{PipelineLogs: true, Large: true}))
}

func TestReportSummaryFailsOnObjectFailures(t *testing.T) {
	ok := &cleanup.Summary{Deleted: 2}
	require.NoError(t, reportSummary(ok, nil))

	failed := &cleanup.Summary{
		Failed:   1,
		Failures: []cleanup.Outcome{{Name: "x", Result: cleanup.ResultFailed, Reason: "denied"}},
	}
	err := reportSummary(failed, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 objects could not be deleted")
	assert.Contains(t, err.Error(), "x: denied")

	stageErr := errors.New("interrupted")
	assert.ErrorIs(t, reportSummary(nil, stageErr), stageErr)
}

func TestWriteURIsSorted(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, writeURIs(&b, references.NewSet("gs://b/z", "gs://b/a")))
	assert.Equal(t, "gs://b/a\ngs://b/z\n", b.String())
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"inventory", "references", "plan", "clean", "run-all"} {
		assert.Contains(t, names, want)
	}

	planCmd, _, err := rootCmd.Find([]string{"plan", "query"})
	require.NoError(t, err)
	assert.Equal(t, "query", planCmd.Name())
}
