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

package pgsource

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/cardinalhq/arret/internal/errkind"
)

func TestSelectAsText(t *testing.T) {
	got := selectAsText("public", "Samples", []string{"id", "bam path"})
	assert.Equal(t, `SELECT "id"::text, "bam path"::text FROM "public"."Samples"`, got)
}

func TestClassify(t *testing.T) {
	assert.True(t, errkind.IsTransient(classify(&pgconn.PgError{Code: "08006"})))
	assert.True(t, errkind.IsTransient(classify(&pgconn.PgError{Code: "53300"})))
	assert.True(t, errkind.IsTransient(classify(&pgconn.PgError{Code: "40001"})))
	assert.True(t, errkind.IsPermanent(classify(&pgconn.PgError{Code: "42501"})))
	assert.True(t, errkind.IsPermanent(classify(&pgconn.PgError{Code: "42P01"})))
	assert.False(t, errkind.IsTransient(classify(errors.New("plain"))))
}
