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

package terra

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/arret/internal/errkind"
	"github.com/cardinalhq/arret/internal/retry"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.PageSize = 2
	cfg.Retry = retry.Policy{MaxRetries: 2, Initial: time.Millisecond, MaxWait: time.Millisecond}
	c, err := NewClientWithHTTP(cfg, srv.Client())
	require.NoError(t, err)
	return c
}

func TestBucketNameCached(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/workspaces/ns/ws", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "workspace.bucketName", r.URL.Query().Get("fields"))
		_, _ = w.Write([]byte(`{"workspace":{"bucketName":"fc-1234"}}`))
	})
	c := newTestClient(t, mux)

	for range 3 {
		b, err := c.BucketName(context.Background(), "ns", "ws")
		require.NoError(t, err)
		assert.Equal(t, "fc-1234", b)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestListTables(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/workspaces/ns/ws/entities", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"sample": {"count": 3, "idName": "sample_id", "attributeNames": ["bam"]},
			"participant": {"count": 1, "idName": "participant_id", "attributeNames": []}
		}`))
	})
	c := newTestClient(t, mux)

	tables, err := c.ListTables(context.Background(), "ns", "ws")
	require.NoError(t, err)
	assert.Equal(t, []string{"participant", "sample"}, tables)
}

func TestScanTablePages(t *testing.T) {
	entities := []Entity{
		{Name: "s1", EntityType: "sample", Attributes: map[string]any{"bam": "gs://b/1.bam"}},
		{Name: "s2", EntityType: "sample", Attributes: map[string]any{"bam": "gs://b/2.bam"}},
		{Name: "s3", EntityType: "sample", Attributes: map[string]any{
			"files": map[string]any{"itemsType": "AttributeValue", "items": []any{"gs://b/3a", "gs://b/3b"}},
		}},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/workspaces/ns/ws/entityQuery/sample", func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
		start := (page - 1) * size
		end := min(start+size, len(entities))
		var resp entityQueryResponse
		resp.ResultMetadata.FilteredCount = int64(len(entities))
		resp.ResultMetadata.FilteredPageCount = (len(entities) + size - 1) / size
		resp.Results = entities[start:end]
		_ = json.NewEncoder(w).Encode(resp)
	})
	c := newTestClient(t, mux)

	var cells []any
	require.NoError(t, c.ScanTable(context.Background(), "ns", "ws", "sample", func(cell any) {
		cells = append(cells, cell)
	}))
	assert.Len(t, cells, 6)
	assert.Contains(t, cells, "s3")
	assert.Contains(t, cells, "gs://b/2.bam")
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/workspaces/ns/ws/entities", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"sample":{"count":0}}`))
	})
	c := newTestClient(t, mux)

	tables, err := c.ListTables(context.Background(), "ns", "ws")
	require.NoError(t, err)
	assert.Equal(t, []string{"sample"}, tables)
	assert.Equal(t, int32(3), calls.Load())
}

func TestForbiddenIsPermanent(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/workspaces/ns/ws/entities", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"message":"no access"}`, http.StatusForbidden)
	})
	c := newTestClient(t, mux)

	_, err := c.ListTables(context.Background(), "ns", "ws")
	require.Error(t, err)
	assert.True(t, errkind.IsPermanent(err))
	assert.Contains(t, err.Error(), "HTTP 403")
	assert.Equal(t, int32(1), calls.Load())
}
