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
	"fmt"

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/iterator"

	"github.com/cardinalhq/arret/internal/gcpclient"
)

// gcsClient implements the Client interface for Google Cloud Storage.
type gcsClient struct {
	storageClient *gcpclient.StorageClient
}

// ListPage lists one page of live objects, fetching only the name, size and
// update time of each. Soft-deleted objects are excluded.
func (c *gcsClient) ListPage(ctx context.Context, bucket, prefix, token string, pageSize int) (Page, error) {
	ctx, span := c.storageClient.Tracer.Start(ctx, "cloudstorage.gcsListPage",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("prefix", prefix),
		),
	)
	defer span.End()

	q := &storage.Query{Prefix: prefix, SoftDeleted: false}
	if err := q.SetAttrSelection([]string{"Name", "Size", "Updated"}); err != nil {
		return Page{}, fmt.Errorf("set attribute selection: %w", err)
	}

	it := c.storageClient.Bucket(bucket).Objects(ctx, q)
	pager := iterator.NewPager(it, pageSize, token)

	var attrs []*storage.ObjectAttrs
	next, err := pager.NextPage(&attrs)
	if err != nil {
		span.RecordError(err)
		recordListError(ctx, bucket)
		return Page{}, fmt.Errorf("list gs://%s/%s: %w", bucket, prefix, classifyGCS(err))
	}

	page := Page{Objects: make([]ObjectInfo, 0, len(attrs)), NextToken: next}
	for _, a := range attrs {
		page.Objects = append(page.Objects, ObjectInfo{
			Name:    a.Name,
			Size:    a.Size,
			Updated: a.Updated.UTC(),
		})
	}

	recordPage(ctx, bucket, len(page.Objects))
	return page, nil
}

func (c *gcsClient) StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	a, err := c.storageClient.Bucket(bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ObjectInfo{}, ErrObjectNotFound
		}
		return ObjectInfo{}, fmt.Errorf("stat gs://%s/%s: %w", bucket, key, classifyGCS(err))
	}
	return ObjectInfo{Name: a.Name, Size: a.Size, Updated: a.Updated.UTC()}, nil
}

// DeleteObject deletes an object from GCS, returning ErrObjectNotFound when
// the object is already gone.
func (c *gcsClient) DeleteObject(ctx context.Context, bucket, key string) (err error) {
	ctx, span := c.storageClient.Tracer.Start(ctx, "cloudstorage.gcsDeleteObject",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("key", key),
		),
	)
	defer span.End()
	defer func() { recordDelete(ctx, bucket, deleteResult(err)) }()

	if err := c.storageClient.Bucket(bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrObjectNotFound
		}
		span.RecordError(err)
		return fmt.Errorf("failed to delete object %s/%s: %w", bucket, key, classifyGCS(err))
	}
	return nil
}
