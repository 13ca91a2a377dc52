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
	"errors"
	"fmt"
	"time"

	"github.com/cardinalhq/arret/internal/duckdbx"
	"github.com/cardinalhq/arret/internal/policyexpr"
	"github.com/cardinalhq/arret/internal/references"
)

// ErrRowNotFound is returned by Get for names not in the plan.
var ErrRowNotFound = errors.New("plan row not found")

// Store is an opened plan file.
type Store struct {
	db   *duckdbx.DB
	meta Meta
}

// Open opens an existing plan. Read-only stores reject Decide.
func Open(ctx context.Context, path string, readOnly bool, settings duckdbx.Settings) (*Store, error) {
	opts := []duckdbx.Option{duckdbx.WithSettings(settings)}
	if readOnly {
		opts = append(opts, duckdbx.WithReadOnly())
	}
	db, err := duckdbx.Open(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("open plan: %w", err)
	}
	meta, err := readMeta(ctx, db.SQL())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, meta: meta}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Meta returns the plan metadata as of opening or the last Decide.
func (s *Store) Meta() Meta { return s.meta }

func (s *Store) Counts(ctx context.Context) (Counts, error) {
	return readCounts(ctx, s.db.SQL())
}

// Get returns the row for one object name.
func (s *Store) Get(ctx context.Context, name string) (Row, error) {
	r, err := scanRow(s.db.SQL().QueryRowContext(ctx,
		`SELECT `+rowColumns+` FROM plan WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, ErrRowNotFound
	}
	return r, err
}

// Rows streams every row in name order.
func (s *Store) Rows(ctx context.Context, fn func(Row) error) error {
	return s.eachRow(ctx, `SELECT `+rowColumns+` FROM plan ORDER BY name`, fn)
}

// Query streams, in name order, the unprotected rows that expr selects,
// without changing the plan. A limit of zero means no limit.
func (s *Store) Query(ctx context.Context, expr *policyexpr.Expr, limit int, fn func(Row) error) error {
	q := `SELECT ` + rowColumns + ` FROM plan WHERE ` + expr.SQL() + ` AND NOT is_protected ORDER BY name`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.eachRow(ctx, q, fn)
}

// QueryCounts returns how many unprotected rows expr selects and their
// total size.
func (s *Store) QueryCounts(ctx context.Context, expr *policyexpr.Expr) (rows, bytes int64, err error) {
	err = s.db.SQL().QueryRowContext(ctx,
		`SELECT count(*), coalesce(sum(size_bytes), 0)::BIGINT FROM plan WHERE `+expr.SQL()+` AND NOT is_protected`,
	).Scan(&rows, &bytes)
	return rows, bytes, err
}

// Decide rewrites should_delete for every row from expr and the stored
// protection flags. Classification columns are left untouched.
func (s *Store) Decide(ctx context.Context, expr *policyexpr.Expr, now time.Time) (Counts, error) {
	if s.db.ReadOnly() {
		return Counts{}, errors.New("plan is open read-only")
	}
	tx, err := s.db.SQL().BeginTx(ctx, nil)
	if err != nil {
		return Counts{}, fmt.Errorf("begin decide: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE plan SET should_delete = (`+expr.SQL()+`) AND NOT is_protected`); err != nil {
		return Counts{}, fmt.Errorf("rewrite should_delete: %w", err)
	}
	meta := s.meta
	meta.Policy.Expression = expr.Source()
	meta.DecidedAt = now.UTC()
	pairs, err := meta.pairs()
	if err != nil {
		return Counts{}, err
	}
	if err := writeMeta(ctx, tx, map[string]string{
		metaExpression: pairs[metaExpression],
		metaDecidedAt:  pairs[metaDecidedAt],
	}); err != nil {
		return Counts{}, err
	}
	counts, err := readCounts(ctx, tx)
	if err != nil {
		return Counts{}, err
	}
	if err := tx.Commit(); err != nil {
		return Counts{}, fmt.Errorf("commit decide: %w", err)
	}
	s.meta = meta
	return counts, nil
}

// Candidate is one object selected for deletion.
type Candidate struct {
	Name      string
	SizeBytes int64
}

// Candidates streams, in name order, every row with should_delete set that
// is not protected.
func (s *Store) Candidates(ctx context.Context, fn func(Candidate) error) error {
	rows, err := s.db.SQL().QueryContext(ctx,
		`SELECT name, size_bytes FROM plan WHERE should_delete AND NOT is_protected ORDER BY name`)
	if err != nil {
		return fmt.Errorf("select candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.Name, &c.SizeBytes); err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ReferencedCandidates returns deletion candidates whose URI is in the
// stored reference set. A consistent plan returns none.
func (s *Store) ReferencedCandidates(ctx context.Context) ([]string, error) {
	rows, err := s.db.SQL().QueryContext(ctx, `
SELECT p.name
FROM plan p
JOIN refs r ON r.uri = ? || p.name
WHERE p.should_delete
ORDER BY p.name`, s.meta.URIPrefix)
	if err != nil {
		return nil, fmt.Errorf("check candidates against references: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// References loads the stored reference set.
func (s *Store) References(ctx context.Context) (*references.Set, error) {
	rows, err := s.db.SQL().QueryContext(ctx, `SELECT uri FROM refs`)
	if err != nil {
		return nil, fmt.Errorf("read references: %w", err)
	}
	defer func() { _ = rows.Close() }()
	set := references.NewSet()
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, err
		}
		set.Add(uri)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return set.Freeze(), nil
}

func (s *Store) eachRow(ctx context.Context, q string, fn func(Row) error) error {
	rows, err := s.db.SQL().QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("query plan: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}
