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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/arret/internal/storageprofile"
)

func writeObject(t *testing.T, base, bucket, key string, size int, mtime time.Time) {
	t.Helper()
	p := filepath.Join(base, bucket, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, make([]byte, size), 0o644))
	require.NoError(t, os.Chtimes(p, mtime, mtime))
}

func TestFileClientLifecycle(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	provider := NewFileClientProvider(base)
	client, err := provider.NewClient(ctx, storageprofile.StorageProfile{})
	require.NoError(t, err)

	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	writeObject(t, base, "bucket", "path/file.txt", 5, mtime)

	info, err := client.StatObject(ctx, "bucket", "path/file.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.True(t, info.Updated.Equal(mtime))

	require.NoError(t, client.DeleteObject(ctx, "bucket", "path/file.txt"))
	assert.ErrorIs(t, client.DeleteObject(ctx, "bucket", "path/file.txt"), ErrObjectNotFound)

	_, err = client.StatObject(ctx, "bucket", "path/file.txt")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestFileClientListPages(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	client := NewFileClient(base)

	mtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	keys := []string{"a.txt", "b/c.txt", "b/d.txt", "e.txt", "logs/x.log"}
	for i, k := range keys {
		writeObject(t, base, "bkt", k, i+1, mtime)
	}

	var got []string
	token := ""
	pages := 0
	for {
		page, err := client.ListPage(ctx, "bkt", "", token, 2)
		require.NoError(t, err)
		pages++
		for _, o := range page.Objects {
			got = append(got, o.Name)
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}
	assert.Equal(t, keys, got)
	assert.Equal(t, 3, pages)
}

func TestFileClientListSameTokenTwice(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	client := NewFileClient(base)
	for _, k := range []string{"1", "2", "3"} {
		writeObject(t, base, "bkt", k, 1, time.Now())
	}

	first, err := client.ListPage(ctx, "bkt", "", "1", 1)
	require.NoError(t, err)
	again, err := client.ListPage(ctx, "bkt", "", "1", 1)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	require.Len(t, first.Objects, 1)
	assert.Equal(t, "2", first.Objects[0].Name)
}

func TestFileClientListPrefix(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	client := NewFileClient(base)
	writeObject(t, base, "bkt", "logs/a", 1, time.Now())
	writeObject(t, base, "bkt", "logs/b", 1, time.Now())
	writeObject(t, base, "bkt", "data/c", 1, time.Now())

	page, err := client.ListPage(ctx, "bkt", "logs/", "", 100)
	require.NoError(t, err)
	require.Len(t, page.Objects, 2)
	assert.Empty(t, page.NextToken)
}

func TestFileClientListMissingBucket(t *testing.T) {
	client := NewFileClient(t.TempDir())
	_, err := client.ListPage(context.Background(), "nope", "", "", 10)
	require.Error(t, err)
}
