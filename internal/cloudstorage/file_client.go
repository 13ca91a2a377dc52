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
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cardinalhq/arret/internal/errkind"
	"github.com/cardinalhq/arret/internal/storageprofile"
)

// FileClientProvider creates clients that operate on the local filesystem.
// Bucket names become subdirectories under the base path.
type FileClientProvider struct {
	base string
}

// NewFileClientProvider returns a new provider rooted at base.
func NewFileClientProvider(base string) ClientProvider {
	return &FileClientProvider{base: base}
}

// NewClient ignores the profile root and uses the provider's base path.
func (p *FileClientProvider) NewClient(_ context.Context, _ storageprofile.StorageProfile) (Client, error) {
	return NewFileClient(p.base), nil
}

// NewFileClient returns a client whose buckets are directories under base.
func NewFileClient(base string) Client {
	return &fileClient{base: base}
}

type fileClient struct {
	base string
}

func (c *fileClient) path(bucket, key string) string {
	return filepath.Join(c.base, bucket, filepath.FromSlash(key))
}

// ListPage walks the bucket directory and returns keys in lexical order.
// The continuation token is the last key of the previous page.
func (c *fileClient) ListPage(ctx context.Context, bucket, prefix, token string, pageSize int) (Page, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	root := filepath.Join(c.base, bucket)

	var objects []ObjectInfo
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) || (token != "" && key <= token) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{Name: key, Size: fi.Size(), Updated: fi.ModTime().UTC()})
		return nil
	})
	if err != nil {
		recordListError(ctx, bucket)
		if errors.Is(err, fs.ErrNotExist) {
			return Page{}, errkind.Permanent(fmt.Errorf("list file://%s: bucket does not exist", bucket))
		}
		return Page{}, fmt.Errorf("list file://%s/%s: %w", bucket, prefix, classifyDefault(err))
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })

	var page Page
	if len(objects) > pageSize {
		objects = objects[:pageSize]
		page.NextToken = objects[pageSize-1].Name
	}
	page.Objects = objects

	recordPage(ctx, bucket, len(page.Objects))
	return page, nil
}

func (c *fileClient) StatObject(_ context.Context, bucket, key string) (ObjectInfo, error) {
	fi, err := os.Stat(c.path(bucket, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ObjectInfo{}, ErrObjectNotFound
		}
		return ObjectInfo{}, classifyDefault(err)
	}
	if fi.IsDir() {
		return ObjectInfo{}, ErrObjectNotFound
	}
	return ObjectInfo{Name: key, Size: fi.Size(), Updated: fi.ModTime().UTC()}, nil
}

// DeleteObject removes the file at bucket/key.
func (c *fileClient) DeleteObject(ctx context.Context, bucket, key string) (err error) {
	defer func() { recordDelete(ctx, bucket, deleteResult(err)) }()

	if err := os.Remove(c.path(bucket, key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete file %s/%s: %w", bucket, key, classifyDefault(err))
	}
	return nil
}
