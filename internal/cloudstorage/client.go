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

package cloudstorage

import (
	"context"
	"errors"
	"time"

	"github.com/cardinalhq/arret/internal/storageprofile"
)

// DefaultPageSize is the number of objects requested per listing page.
const DefaultPageSize = 1000

// ErrObjectNotFound is returned by StatObject and DeleteObject when the
// object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo is the listing metadata kept for every object.
type ObjectInfo struct {
	Name    string
	Size    int64
	Updated time.Time
}

// Page is one page of a bucket listing. NextToken is empty on the last page.
type Page struct {
	Objects   []ObjectInfo
	NextToken string
}

// Client provides a unified interface for cloud storage operations across
// different providers.
type Client interface {
	// ListPage fetches one page of objects under prefix, starting at token
	// (empty for the first page). Fetching the same token twice returns the
	// same page, so a failed page can be retried.
	ListPage(ctx context.Context, bucket, prefix, token string, pageSize int) (Page, error)

	// StatObject returns metadata for one object, or ErrObjectNotFound.
	StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error)

	// DeleteObject deletes one object. It returns ErrObjectNotFound when the
	// object was already absent; the bucket is unchanged in that case.
	DeleteObject(ctx context.Context, bucket, key string) error
}

// ClientProvider creates storage clients for a profile.
type ClientProvider interface {
	NewClient(ctx context.Context, profile storageprofile.StorageProfile) (Client, error)
}
