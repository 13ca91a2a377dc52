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

package policyexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rules = []string{"pipeline_logs", "old", "large"}

func TestParseAndEval(t *testing.T) {
	tests := []struct {
		expr   string
		values map[string]bool
		want   bool
	}{
		{"pipeline_logs OR old OR large", map[string]bool{}, false},
		{"pipeline_logs OR old OR large", map[string]bool{"large": true}, true},
		{"old AND large", map[string]bool{"old": true}, false},
		{"old AND large", map[string]bool{"old": true, "large": true}, true},
		{"NOT old", map[string]bool{}, true},
		{"not not old", map[string]bool{"old": true}, true},
		{"old or large and pipeline_logs", map[string]bool{"old": true}, true},
		{"(old or large) and pipeline_logs", map[string]bool{"old": true}, false},
		{"NOT old AND large", map[string]bool{"large": true}, true},
		{"NOT (old AND large)", map[string]bool{"old": true, "large": true}, false},
		{"true", map[string]bool{}, true},
		{"FALSE or Old", map[string]bool{"old": true}, true},
		{"false", map[string]bool{"old": true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			e, err := Parse(tt.expr, rules)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Eval(func(n string) bool { return tt.values[n] }))
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		expr string
		pos  int
	}{
		{"", 0},
		{"old AND", 7},
		{"old large", 4},
		{"(old OR large", 13},
		{"old OR tiny", 7},
		{"old & large", 4},
		{")", 0},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := Parse(tt.expr, rules)
			require.Error(t, err)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.pos, pe.Pos)
		})
	}
}

func mustParse(t *testing.T, src string, known []string) *Expr {
	t.Helper()
	e, err := Parse(src, known)
	require.NoError(t, err)
	return e
}

func TestSQL(t *testing.T) {
	e := mustParse(t, "pipeline_logs OR NOT (old AND large) or TRUE", rules)
	assert.Equal(t, `(("pipeline_logs" OR (NOT ("old" AND "large"))) OR TRUE)`, e.SQL())
}

func TestString(t *testing.T) {
	e := mustParse(t, "(OLD or Large) and not pipeline_logs", rules)
	assert.Equal(t, "(old OR large) AND NOT pipeline_logs", e.String())
	assert.Equal(t, "(OLD or Large) and not pipeline_logs", e.Source())

	again := mustParse(t, e.String(), rules)
	assert.Equal(t, e.SQL(), again.SQL())
}

func TestIdentifiers(t *testing.T) {
	e := mustParse(t, "old OR large OR old", rules)
	assert.Equal(t, []string{"large", "old"}, e.Identifiers())
	assert.Empty(t, mustParse(t, "true", rules).Identifiers())
}
