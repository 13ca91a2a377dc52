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

package retry

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Fibonacci is a backoff.BackOff whose waits follow a fibonacci sequence
// seeded with two equal terms. It grows slower than exponential backoff,
// which suits rate-limited listing and table APIs.
type Fibonacci struct {
	initial time.Duration
	maxWait time.Duration

	prev, cur time.Duration
}

var _ backoff.BackOff = (*Fibonacci)(nil)

// NewFibonacci returns a backoff starting at initial and capped at maxWait.
// A zero maxWait means no cap.
func NewFibonacci(initial, maxWait time.Duration) *Fibonacci {
	if initial <= 0 {
		initial = time.Second
	}
	f := &Fibonacci{initial: initial, maxWait: maxWait}
	f.Reset()
	return f
}

// NextBackOff returns initial, 2*initial, 3*initial, 5*initial, 8*initial, ...
func (f *Fibonacci) NextBackOff() time.Duration {
	next := f.cur
	if f.maxWait > 0 && next >= f.maxWait {
		return f.maxWait
	}
	f.prev, f.cur = f.cur, f.prev+f.cur
	return next
}

func (f *Fibonacci) Reset() {
	// the sequence is seeded with two terms equal to initial
	f.prev = f.initial
	f.cur = f.initial
}
