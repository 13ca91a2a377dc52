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
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/arret/internal/awsclient"
)

// s3Client implements Client for Amazon S3 and S3-compatible stores.
type s3Client struct {
	awsS3Client *awsclient.S3Client
}

func s3ErrorIs404(err error) bool {
	var noKeyErr *types.NoSuchKey
	if errors.As(err, &noKeyErr) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var statusErr httpStatusError
	return errors.As(err, &statusErr) && statusErr.HTTPStatusCode() == http.StatusNotFound
}

func (c *s3Client) ListPage(ctx context.Context, bucket, prefix, token string, pageSize int) (Page, error) {
	ctx, span := c.awsS3Client.Tracer.Start(ctx, "cloudstorage.s3ListPage",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("prefix", prefix),
		),
	)
	defer span.End()

	in := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(int32(pageSize)),
	}
	if prefix != "" {
		in.Prefix = aws.String(prefix)
	}
	if token != "" {
		in.ContinuationToken = aws.String(token)
	}

	out, err := c.awsS3Client.Client.ListObjectsV2(ctx, in)
	if err != nil {
		span.RecordError(err)
		recordListError(ctx, bucket)
		return Page{}, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, classifyS3(err))
	}

	page := Page{Objects: make([]ObjectInfo, 0, len(out.Contents))}
	for _, o := range out.Contents {
		page.Objects = append(page.Objects, ObjectInfo{
			Name:    aws.ToString(o.Key),
			Size:    aws.ToInt64(o.Size),
			Updated: aws.ToTime(o.LastModified).UTC(),
		})
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}

	recordPage(ctx, bucket, len(page.Objects))
	return page, nil
}

func (c *s3Client) StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	out, err := c.awsS3Client.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if s3ErrorIs404(err) {
			return ObjectInfo{}, ErrObjectNotFound
		}
		return ObjectInfo{}, fmt.Errorf("head s3://%s/%s: %w", bucket, key, classifyS3(err))
	}
	return ObjectInfo{
		Name:    key,
		Size:    aws.ToInt64(out.ContentLength),
		Updated: aws.ToTime(out.LastModified).UTC(),
	}, nil
}

// DeleteObject deletes an object from S3. S3 reports success for deletes of
// missing keys, so existence is checked first to report ErrObjectNotFound.
func (c *s3Client) DeleteObject(ctx context.Context, bucket, key string) (err error) {
	ctx, span := c.awsS3Client.Tracer.Start(ctx, "cloudstorage.s3DeleteObject",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("key", key),
		),
	)
	defer span.End()
	defer func() { recordDelete(ctx, bucket, deleteResult(err)) }()

	if _, err := c.StatObject(ctx, bucket, key); err != nil {
		return err
	}

	_, err = c.awsS3Client.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		span.RecordError(err)
		if s3ErrorIs404(err) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete S3 object %s/%s: %w", bucket, key, classifyS3(err))
	}
	return nil
}
