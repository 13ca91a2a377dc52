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

package idgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunIDsIncrease(t *testing.T) {
	g := NewRunIDs()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	prev := g.Make(now)
	for range 100 {
		next := g.Make(now)
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestRunTime(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	got, err := RunTime(NewRunID(now))
	require.NoError(t, err)
	assert.True(t, got.Equal(now))

	_, err = RunTime("not-a-ulid")
	assert.Error(t, err)
}
