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

// Package terra reads workspace metadata and entity tables from the
// Terra (FireCloud) orchestration API.
package terra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/cardinalhq/arret/internal/errkind"
	"github.com/cardinalhq/arret/internal/logctx"
	"github.com/cardinalhq/arret/internal/retry"
)

const (
	DefaultBaseURL  = "https://api.firecloud.org"
	DefaultTimeout  = 60 * time.Second
	DefaultPageSize = 1000

	maxErrorBody = 4 * 1024
)

// Scopes are the OAuth2 scopes requested for application-default
// credentials.
var Scopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

type Config struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	PageSize int           `mapstructure:"page_size"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Retry    retry.Policy  `mapstructure:"retry"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:  DefaultBaseURL,
		Timeout:  DefaultTimeout,
		PageSize: DefaultPageSize,
		CacheTTL: 10 * time.Minute,
		Retry:    retry.DefaultPolicy(),
	}
}

// Client talks to the orchestration API. It implements the references
// Source contract with entity types as tables and entities as rows.
type Client struct {
	cfg     Config
	baseURL *url.URL
	http    *http.Client

	buckets *ttlcache.Cache[string, bucketCacheValue]
}

type bucketCacheValue struct {
	bucket string
	err    error
}

// NewClient returns a client authenticated with Google application-default
// credentials.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	ts, err := google.DefaultTokenSource(ctx, Scopes...)
	if err != nil {
		return nil, errkind.Permanent(fmt.Errorf("find google default credentials: %w", err))
	}
	hc := oauth2.NewClient(ctx, ts)
	return NewClientWithHTTP(cfg, hc)
}

// NewClientWithHTTP returns a client that sends requests with hc as-is.
func NewClientWithHTTP(cfg Config, hc *http.Client) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse terra base url: %w", err)
	}
	if cfg.Timeout > 0 {
		c := *hc
		c.Timeout = cfg.Timeout
		hc = &c
	}
	return &Client{
		cfg:     cfg,
		baseURL: u,
		http:    hc,
		buckets: ttlcache.New(ttlcache.WithTTL[string, bucketCacheValue](cfg.CacheTTL)),
	}, nil
}

func (c *Client) Kind() string { return "terra" }

type workspaceResponse struct {
	Workspace struct {
		BucketName string `json:"bucketName"`
	} `json:"workspace"`
}

// BucketName returns the storage bucket that backs a workspace. Results,
// including failures, are cached for the configured TTL.
func (c *Client) BucketName(ctx context.Context, namespace, name string) (string, error) {
	key := namespace + "/" + name
	loader := ttlcache.LoaderFunc[string, bucketCacheValue](
		func(cache *ttlcache.Cache[string, bucketCacheValue], key string) *ttlcache.Item[string, bucketCacheValue] {
			bucket, err := c.bucketNameUncached(ctx, namespace, name)
			return cache.Set(key, bucketCacheValue{bucket: bucket, err: err}, ttlcache.DefaultTTL)
		},
	)
	v := c.buckets.Get(key, ttlcache.WithLoader(loader))
	if v == nil {
		return "", errors.New("failed to get workspace bucket from cache")
	}
	return v.Value().bucket, v.Value().err
}

func (c *Client) bucketNameUncached(ctx context.Context, namespace, name string) (string, error) {
	var resp workspaceResponse
	q := url.Values{"fields": {"workspace.bucketName"}}
	if err := c.getJSON(ctx, q, &resp, "api", "workspaces", namespace, name); err != nil {
		return "", err
	}
	if resp.Workspace.BucketName == "" {
		return "", errkind.Permanent(fmt.Errorf("workspace %s/%s has no bucket", namespace, name))
	}
	return resp.Workspace.BucketName, nil
}

type entityTypeMetadata struct {
	Count          int64    `json:"count"`
	IDName         string   `json:"idName"`
	AttributeNames []string `json:"attributeNames"`
}

// ListTables returns the entity types of a workspace, sorted.
func (c *Client) ListTables(ctx context.Context, namespace, name string) ([]string, error) {
	var types map[string]entityTypeMetadata
	if err := c.getJSON(ctx, nil, &types, "api", "workspaces", namespace, name, "entities"); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(types))
	for t := range types {
		out = append(out, t)
	}
	slices.Sort(out)
	return out, nil
}

// Entity is one row of an entity table.
type Entity struct {
	Name       string         `json:"name"`
	EntityType string         `json:"entityType"`
	Attributes map[string]any `json:"attributes"`
}

type entityQueryResponse struct {
	ResultMetadata struct {
		FilteredCount     int64 `json:"filteredCount"`
		FilteredPageCount int   `json:"filteredPageCount"`
	} `json:"resultMetadata"`
	Results []Entity `json:"results"`
}

// Entities streams the entities of one type, a page at a time.
func (c *Client) Entities(ctx context.Context, namespace, name, entityType string, fn func(Entity) error) error {
	ll := logctx.FromContext(ctx)
	for page := 1; ; page++ {
		q := url.Values{
			"page":     {strconv.Itoa(page)},
			"pageSize": {strconv.Itoa(c.cfg.PageSize)},
		}
		var resp entityQueryResponse
		if err := c.getJSON(ctx, q, &resp, "api", "workspaces", namespace, name, "entityQuery", entityType); err != nil {
			return err
		}
		for _, e := range resp.Results {
			if err := fn(e); err != nil {
				return err
			}
		}
		ll.Debug("Fetched entity page",
			slog.String("workspace", namespace+"/"+name),
			slog.String("entityType", entityType),
			slog.Int("page", page),
			slog.Int("pages", resp.ResultMetadata.FilteredPageCount))
		if page >= resp.ResultMetadata.FilteredPageCount || len(resp.Results) == 0 {
			return nil
		}
	}
}

// ScanTable emits the entity name column, named <type>_id, and every
// attribute value of every entity of the given type.
func (c *Client) ScanTable(ctx context.Context, namespace, name, table string, fn func(cell any)) error {
	return c.Entities(ctx, namespace, name, table, func(e Entity) error {
		fn(e.Name)
		for _, v := range e.Attributes {
			fn(v)
		}
		return nil
	})
}

// getJSON issues a GET for the escaped path segments and decodes the JSON
// response into out, retrying transient failures.
func (c *Client) getJSON(ctx context.Context, q url.Values, out any, segments ...string) error {
	u := c.baseURL.JoinPath(segments...)
	if q != nil {
		u.RawQuery = q.Encode()
	}
	target := u.String()

	return retry.Run(ctx, c.cfg.Retry, "terra GET "+u.Path, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return errkind.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if errkind.KindOf(err) == errkind.KindUnknown {
				err = errkind.Transient(err)
			}
			return fmt.Errorf("GET %s: %w", u.Path, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return errkind.WrapHTTPStatus(resp.StatusCode,
				fmt.Errorf("GET %s: HTTP %d: %s", u.Path, resp.StatusCode, body))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errkind.Permanent(fmt.Errorf("decode %s: %w", u.Path, err))
		}
		return nil
	})
}
