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

// Package errkind classifies errors raised by storage and table APIs.
//
// Transient errors are retried where they occur. Permanent errors abort the
// enclosing operation immediately. Incomplete-data errors abort a whole run,
// because an incomplete reference set could expose a referenced object to
// deletion.
package errkind

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind is the retry class of an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransient
	KindPermanent
	KindIncompleteData
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindIncompleteData:
		return "incomplete_data"
	default:
		return "unknown"
	}
}

// ErrIncompleteData marks a reference resolution that could not read all of
// its sources.
var ErrIncompleteData = errors.New("incomplete reference data")

// Error attaches a Kind to an underlying error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrIncompleteData) match incomplete-data errors.
func (e *Error) Is(target error) bool {
	return target == ErrIncompleteData && e.Kind == KindIncompleteData
}

// Transient wraps err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransient, Err: err}
}

// Permanent wraps err as not retryable. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindPermanent, Err: err}
}

// IncompleteData wraps err as a failure to read a reference source.
func IncompleteData(source string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindIncompleteData, Err: fmt.Errorf("%s: %w", source, err)}
}

// KindOf returns the outermost Kind attached to err. Errors that carry no
// Kind are inspected for well-known transient causes (timeouts, network
// errors); anything else is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindUnknown
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// IsPermanent reports whether err was explicitly marked permanent.
func IsPermanent(err error) bool {
	return KindOf(err) == KindPermanent
}

// FromHTTPStatus classifies an HTTP response status. 408, 429 and 5xx are
// transient; other 4xx are permanent. 2xx and 3xx return KindUnknown.
func FromHTTPStatus(code int) Kind {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return KindTransient
	case code >= 500:
		return KindTransient
	case code >= 400:
		return KindPermanent
	default:
		return KindUnknown
	}
}

// WrapHTTPStatus wraps err with the kind implied by an HTTP status code.
func WrapHTTPStatus(code int, err error) error {
	switch FromHTTPStatus(code) {
	case KindTransient:
		return Transient(err)
	case KindPermanent:
		return Permanent(err)
	default:
		return err
	}
}
