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

package errkind

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", base, KindUnknown},
		{"transient", Transient(base), KindTransient},
		{"permanent", Permanent(base), KindPermanent},
		{"incomplete", IncompleteData("ws/table", base), KindIncompleteData},
		{"wrapped transient", fmt.Errorf("list page: %w", Transient(base)), KindTransient},
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"canceled", context.Canceled, KindPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIncompleteDataMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("resolve: %w", IncompleteData("ns/name", errors.New("403")))
	assert.ErrorIs(t, err, ErrIncompleteData)
	assert.NotErrorIs(t, Permanent(errors.New("x")), ErrIncompleteData)
}

func TestNilStaysNil(t *testing.T) {
	assert.NoError(t, Transient(nil))
	assert.NoError(t, Permanent(nil))
	assert.NoError(t, IncompleteData("x", nil))
}

func TestFromHTTPStatus(t *testing.T) {
	assert.Equal(t, KindTransient, FromHTTPStatus(429))
	assert.Equal(t, KindTransient, FromHTTPStatus(408))
	assert.Equal(t, KindTransient, FromHTTPStatus(503))
	assert.Equal(t, KindPermanent, FromHTTPStatus(403))
	assert.Equal(t, KindPermanent, FromHTTPStatus(404))
	assert.Equal(t, KindUnknown, FromHTTPStatus(200))

	assert.True(t, IsTransient(WrapHTTPStatus(502, errors.New("bad gateway"))))
	assert.True(t, IsPermanent(WrapHTTPStatus(401, errors.New("unauthorized"))))
}
