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
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/arret/internal/azureclient"
)

// azureClient implements the Client interface for Azure Blob Storage. The
// bucket is the container name.
type azureClient struct {
	blobClient *azureclient.BlobClient
}

func (c *azureClient) ListPage(ctx context.Context, bucket, prefix, token string, pageSize int) (Page, error) {
	ctx, span := c.blobClient.Tracer.Start(ctx, "cloudstorage.azureListPage",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("prefix", prefix),
		),
	)
	defer span.End()

	opts := &azblob.ListBlobsFlatOptions{MaxResults: to.Ptr(int32(pageSize))}
	if prefix != "" {
		opts.Prefix = to.Ptr(prefix)
	}
	if token != "" {
		opts.Marker = to.Ptr(token)
	}

	pager := c.blobClient.Client.NewListBlobsFlatPager(bucket, opts)
	resp, err := pager.NextPage(ctx)
	if err != nil {
		span.RecordError(err)
		recordListError(ctx, bucket)
		return Page{}, fmt.Errorf("list az://%s/%s: %w", bucket, prefix, classifyAzure(err))
	}

	var page Page
	if resp.Segment != nil {
		page.Objects = make([]ObjectInfo, 0, len(resp.Segment.BlobItems))
		for _, item := range resp.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			info := ObjectInfo{Name: *item.Name}
			if item.Properties != nil {
				if item.Properties.ContentLength != nil {
					info.Size = *item.Properties.ContentLength
				}
				if item.Properties.LastModified != nil {
					info.Updated = item.Properties.LastModified.UTC()
				}
			}
			page.Objects = append(page.Objects, info)
		}
	}
	if resp.NextMarker != nil {
		page.NextToken = *resp.NextMarker
	}

	recordPage(ctx, bucket, len(page.Objects))
	return page, nil
}

func (c *azureClient) StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	props, err := c.blobClient.Client.ServiceClient().
		NewContainerClient(bucket).
		NewBlobClient(key).
		GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return ObjectInfo{}, ErrObjectNotFound
		}
		return ObjectInfo{}, fmt.Errorf("stat az://%s/%s: %w", bucket, key, classifyAzure(err))
	}
	info := ObjectInfo{Name: key}
	if props.ContentLength != nil {
		info.Size = *props.ContentLength
	}
	if props.LastModified != nil {
		info.Updated = props.LastModified.UTC()
	}
	return info, nil
}

// DeleteObject deletes a blob, returning ErrObjectNotFound when it is
// already gone.
func (c *azureClient) DeleteObject(ctx context.Context, bucket, key string) (err error) {
	ctx, span := c.blobClient.Tracer.Start(ctx, "cloudstorage.azureDeleteObject",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("key", key),
		),
	)
	defer span.End()
	defer func() { recordDelete(ctx, bucket, deleteResult(err)) }()

	if _, err := c.blobClient.Client.DeleteBlob(ctx, bucket, key, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return ErrObjectNotFound
		}
		span.RecordError(err)
		return fmt.Errorf("failed to delete blob %s/%s: %w", bucket, key, classifyAzure(err))
	}
	return nil
}
