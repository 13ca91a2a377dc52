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

package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// SchemaVersion is stored in plan_meta and checked when a plan is opened.
const SchemaVersion = 1

const createSchemaSQL = `
CREATE TABLE plan (
	name          VARCHAR PRIMARY KEY,
	size_bytes    BIGINT NOT NULL,
	updated_at    TIMESTAMP NOT NULL,
	age_days      BIGINT NOT NULL,
	pipeline_logs BOOLEAN NOT NULL,
	old           BOOLEAN NOT NULL,
	large         BOOLEAN NOT NULL,
	is_referenced BOOLEAN NOT NULL,
	is_force_kept BOOLEAN NOT NULL,
	is_protected  BOOLEAN NOT NULL,
	should_delete BOOLEAN NOT NULL
);
CREATE TABLE refs (
	uri VARCHAR PRIMARY KEY
);
CREATE TABLE plan_meta (
	key   VARCHAR PRIMARY KEY,
	value VARCHAR NOT NULL
);`

const rowColumns = `name, size_bytes, updated_at, age_days, pipeline_logs, old, large,
	is_referenced, is_force_kept, is_protected, should_delete`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(s rowScanner) (Row, error) {
	var r Row
	err := s.Scan(&r.Name, &r.SizeBytes, &r.UpdatedAt, &r.AgeDays,
		&r.PipelineLogs, &r.Old, &r.Large,
		&r.IsReferenced, &r.IsForceKept, &r.IsProtected, &r.ShouldDelete)
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, err
}

// Meta describes how a plan was built.
type Meta struct {
	SchemaVersion int
	RunID         string
	URIPrefix     string
	Policy        Policy
	EvaluatedAt   time.Time
	// DecidedAt is when should_delete was last rewritten; it equals
	// EvaluatedAt for a plan that was never re-decided.
	DecidedAt time.Time
}

const (
	metaSchemaVersion      = "schema_version"
	metaRunID              = "run_id"
	metaURIPrefix          = "uri_prefix"
	metaDaysConsideredOld  = "days_considered_old"
	metaBytesConsideredLrg = "bytes_considered_large"
	metaPipelineLogSegment = "pipeline_log_segment"
	metaExpression         = "expression"
	metaForceKeep          = "force_keep"
	metaEvaluatedAt        = "evaluated_at"
	metaDecidedAt          = "decided_at"
)

func (m Meta) pairs() (map[string]string, error) {
	fk, err := json.Marshal(m.Policy.ForceKeep)
	if err != nil {
		return nil, fmt.Errorf("encode force-keep rules: %w", err)
	}
	return map[string]string{
		metaSchemaVersion:      strconv.Itoa(m.SchemaVersion),
		metaRunID:              m.RunID,
		metaURIPrefix:          m.URIPrefix,
		metaDaysConsideredOld:  strconv.FormatInt(m.Policy.DaysConsideredOld, 10),
		metaBytesConsideredLrg: strconv.FormatInt(m.Policy.BytesConsideredLarge, 10),
		metaPipelineLogSegment: m.Policy.PipelineLogSegment,
		metaExpression:         m.Policy.Expression,
		metaForceKeep:          string(fk),
		metaEvaluatedAt:        m.EvaluatedAt.UTC().Format(time.RFC3339Nano),
		metaDecidedAt:          m.DecidedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeMeta(ctx context.Context, db execer, values map[string]string) error {
	for k, v := range values {
		if _, err := db.ExecContext(ctx,
			`INSERT OR REPLACE INTO plan_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("write plan meta %s: %w", k, err)
		}
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func readMeta(ctx context.Context, db querier) (Meta, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM plan_meta`)
	if err != nil {
		return Meta{}, fmt.Errorf("read plan meta: %w", err)
	}
	defer func() { _ = rows.Close() }()

	kv := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Meta{}, err
		}
		kv[k] = v
	}
	if err := rows.Err(); err != nil {
		return Meta{}, err
	}

	var m Meta
	if m.SchemaVersion, err = strconv.Atoi(kv[metaSchemaVersion]); err != nil {
		return Meta{}, fmt.Errorf("plan meta: bad schema version %q", kv[metaSchemaVersion])
	}
	if m.SchemaVersion != SchemaVersion {
		return Meta{}, fmt.Errorf("plan schema version %d is not supported (want %d)", m.SchemaVersion, SchemaVersion)
	}
	m.RunID = kv[metaRunID]
	m.URIPrefix = kv[metaURIPrefix]
	m.Policy.Expression = kv[metaExpression]
	m.Policy.PipelineLogSegment = kv[metaPipelineLogSegment]
	if m.Policy.DaysConsideredOld, err = strconv.ParseInt(kv[metaDaysConsideredOld], 10, 64); err != nil {
		return Meta{}, fmt.Errorf("plan meta: %s: %w", metaDaysConsideredOld, err)
	}
	if m.Policy.BytesConsideredLarge, err = strconv.ParseInt(kv[metaBytesConsideredLrg], 10, 64); err != nil {
		return Meta{}, fmt.Errorf("plan meta: %s: %w", metaBytesConsideredLrg, err)
	}
	if err := json.Unmarshal([]byte(kv[metaForceKeep]), &m.Policy.ForceKeep); err != nil {
		return Meta{}, fmt.Errorf("plan meta: %s: %w", metaForceKeep, err)
	}
	if m.EvaluatedAt, err = time.Parse(time.RFC3339Nano, kv[metaEvaluatedAt]); err != nil {
		return Meta{}, fmt.Errorf("plan meta: %s: %w", metaEvaluatedAt, err)
	}
	if m.DecidedAt, err = time.Parse(time.RFC3339Nano, kv[metaDecidedAt]); err != nil {
		return Meta{}, fmt.Errorf("plan meta: %s: %w", metaDecidedAt, err)
	}
	return m, nil
}

// Counts summarises a plan.
type Counts struct {
	Rows          int64
	Referenced    int64
	ForceKept     int64
	Protected     int64
	Eligible      int64
	Bytes         int64
	EligibleBytes int64
}

const countsSQL = `
SELECT
	count(*),
	count(*) FILTER (WHERE is_referenced),
	count(*) FILTER (WHERE is_force_kept),
	count(*) FILTER (WHERE is_protected),
	count(*) FILTER (WHERE should_delete),
	coalesce(sum(size_bytes), 0)::BIGINT,
	coalesce(sum(size_bytes) FILTER (WHERE should_delete), 0)::BIGINT
FROM plan`

func readCounts(ctx context.Context, db interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}) (Counts, error) {
	var c Counts
	err := db.QueryRowContext(ctx, countsSQL).Scan(
		&c.Rows, &c.Referenced, &c.ForceKept, &c.Protected, &c.Eligible, &c.Bytes, &c.EligibleBytes)
	if err != nil {
		return Counts{}, fmt.Errorf("count plan rows: %w", err)
	}
	return c, nil
}
