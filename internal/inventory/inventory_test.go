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

package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/arret/internal/cloudstorage"
	"github.com/cardinalhq/arret/internal/errkind"
	"github.com/cardinalhq/arret/internal/retry"
)

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "inventory.ndjson")
	cfg.PageSize = 2
	cfg.Workers = 3
	cfg.Jitter = 0
	cfg.ProgressEvery = 2
	cfg.Retry = retry.Policy{MaxRetries: 2, Initial: time.Millisecond, MaxWait: time.Millisecond}
	return cfg
}

func TestBlobRecordJSON(t *testing.T) {
	rec := BlobRecord{
		Name:    "logs/a.txt",
		Size:    123,
		Updated: time.Date(2024, 1, 2, 3, 4, 5, 600, time.FixedZone("x", 3600)),
	}
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"logs/a.txt","size":123,"updated":"2024-01-02T02:04:05Z"}`, string(b))

	var back BlobRecord
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, "logs/a.txt", back.Name)
	assert.Equal(t, time.UTC, back.Updated.Location())
}

func TestBlobRecordRejectsBadLines(t *testing.T) {
	var rec BlobRecord
	assert.Error(t, json.Unmarshal([]byte(`{"size":1,"updated":"2024-01-01T00:00:00Z"}`), &rec))
	assert.Error(t, json.Unmarshal([]byte(`{"name":"a","size":-1,"updated":"2024-01-01T00:00:00Z"}`), &rec))
	assert.Error(t, json.Unmarshal([]byte(`{"name":"a","size":1,"updated":"yesterday"}`), &rec))
}

func TestWriterAbortKeepsPreviousInventory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inv.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"old","size":1,"updated":"2024-01-01T00:00:00Z"}`+"\n"), 0o644))

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Append([]BlobRecord{{Name: "new", Size: 2, Updated: time.Now()}}))
	w.Abort()

	recs, err := ReadAll(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "old", recs[0].Name)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must be removed")
}

func TestWriterCommitReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inv.ndjson")
	require.NoError(t, os.WriteFile(path, []byte("garbage\n"), 0o644))

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Append([]BlobRecord{
		{Name: "a", Size: 1, Updated: time.Now()},
		{Name: "b", Size: 2, Updated: time.Now()},
	}))
	require.NoError(t, w.Commit())
	assert.Error(t, w.Append([]BlobRecord{{Name: "c"}}))

	recs, err := ReadAll(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	n, bytes := w.Count()
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int64(3), bytes)
}

func seedBucket(t *testing.T, base, bucket string, names ...string) {
	t.Helper()
	for i, name := range names {
		p := filepath.Join(base, bucket, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, make([]byte, i+1), 0o644))
	}
}

func TestListWritesEveryObject(t *testing.T) {
	base := t.TempDir()
	names := []string{"a", "b/c", "b/d", "e", "f/g/h"}
	seedBucket(t, base, "bkt", names...)

	cfg := testConfig(t)
	stats, err := List(context.Background(), cloudstorage.NewFileClient(base), "bkt", cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Records)
	assert.Equal(t, int64(3), stats.Pages)
	assert.Equal(t, int64(1+2+3+4+5), stats.Bytes)

	recs, err := ReadAll(context.Background(), cfg.Path)
	require.NoError(t, err)
	var got []string
	for _, r := range recs {
		got = append(got, r.Name)
	}
	assert.ElementsMatch(t, names, got)
}

func TestListEmptyBucket(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "empty"), 0o755))

	cfg := testConfig(t)
	stats, err := List(context.Background(), cloudstorage.NewFileClient(base), "empty", cfg)
	require.NoError(t, err)
	assert.Zero(t, stats.Records)

	info, err := os.Stat(cfg.Path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

// flakyClient fails the first failures calls to ListPage, then delegates.
type flakyClient struct {
	cloudstorage.Client
	failures int32
	err      func() error
	calls    atomic.Int32
}

func (c *flakyClient) ListPage(ctx context.Context, bucket, prefix, token string, pageSize int) (cloudstorage.Page, error) {
	if c.calls.Add(1) <= c.failures {
		return cloudstorage.Page{}, c.err()
	}
	return c.Client.ListPage(ctx, bucket, prefix, token, pageSize)
}

func TestListRetriesTransientPageErrors(t *testing.T) {
	base := t.TempDir()
	seedBucket(t, base, "bkt", "a", "b", "c")

	client := &flakyClient{
		Client:   cloudstorage.NewFileClient(base),
		failures: 2,
		err:      func() error { return errkind.Transient(errors.New("503")) },
	}
	cfg := testConfig(t)
	stats, err := List(context.Background(), client, "bkt", cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Records)
}

func TestListFailureLeavesNoPartialInventory(t *testing.T) {
	base := t.TempDir()
	seedBucket(t, base, "bkt", "a", "b", "c")

	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Path, []byte(`{"name":"prior","size":1,"updated":"2024-01-01T00:00:00Z"}`+"\n"), 0o644))

	client := &flakyClient{
		Client:   cloudstorage.NewFileClient(base),
		failures: 100,
		err:      func() error { return errkind.Transient(errors.New("503")) },
	}
	_, err := List(context.Background(), client, "bkt", cfg)
	require.Error(t, err)
	assert.True(t, errkind.IsTransient(err))
	assert.Equal(t, int32(3), client.calls.Load())

	recs, err := ReadAll(context.Background(), cfg.Path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "prior", recs[0].Name)
}

func TestListPermanentErrorNotRetried(t *testing.T) {
	client := &flakyClient{
		Client:   cloudstorage.NewFileClient(t.TempDir()),
		failures: 100,
		err:      func() error { return errkind.Permanent(errors.New("403")) },
	}
	_, err := List(context.Background(), client, "bkt", testConfig(t))
	require.Error(t, err)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Workers = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.PageSize = -1
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Path = ""
	assert.Error(t, bad.Validate())
}

// pageClient serves a single fixed page.
type pageClient struct {
	cloudstorage.Client
	objects []cloudstorage.ObjectInfo
}

func (c *pageClient) ListPage(context.Context, string, string, string, int) (cloudstorage.Page, error) {
	return cloudstorage.Page{Objects: c.objects}, nil
}

func TestListRejectsNonUTF8Names(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Path, []byte(`{"name":"prior","size":1,"updated":"2024-01-01T00:00:00Z"}`+"\n"), 0o644))

	updated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	client := &pageClient{objects: []cloudstorage.ObjectInfo{
		{Name: "ok.txt", Size: 1, Updated: updated},
		{Name: "bad-\xff.txt", Size: 1, Updated: updated},
	}}
	_, err := List(context.Background(), client, "bkt", cfg)
	require.ErrorIs(t, err, ErrInvalidName)
	assert.True(t, errkind.IsPermanent(err))
	assert.Contains(t, err.Error(), `bad-\xff.txt`)

	recs, err := ReadAll(context.Background(), cfg.Path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "prior", recs[0].Name)
}

func TestBlobRecordMarshalRejectsNonUTF8(t *testing.T) {
	_, err := json.Marshal(BlobRecord{Name: "a\xfe\xfe", Updated: time.Now()})
	assert.ErrorIs(t, err, ErrInvalidName)
}
