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

// Package runner sequences the inventory, reference, plan and cleanup
// stages of one bucket cleanup run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cardinalhq/arret/internal/cleanup"
	"github.com/cardinalhq/arret/internal/cloudstorage"
	"github.com/cardinalhq/arret/internal/errkind"
	"github.com/cardinalhq/arret/internal/idgen"
	"github.com/cardinalhq/arret/internal/inventory"
	"github.com/cardinalhq/arret/internal/logctx"
	"github.com/cardinalhq/arret/internal/plan"
	"github.com/cardinalhq/arret/internal/references"
	"github.com/cardinalhq/arret/internal/references/pgsource"
	"github.com/cardinalhq/arret/internal/storageprofile"
	"github.com/cardinalhq/arret/internal/terra"
)

// ErrPlanBucketMismatch is returned when a plan built for one bucket is
// cleaned against another.
var ErrPlanBucketMismatch = errors.New("plan was built for a different bucket")

type Option func(*Runner)

// WithClientProvider replaces the cloud storage managers.
func WithClientProvider(p cloudstorage.ClientProvider) Option {
	return func(r *Runner) { r.storage = p }
}

// WithTerraClient replaces the Terra client built from the config.
func WithTerraClient(c *terra.Client) Option {
	return func(r *Runner) { r.terra = c }
}

// WithWorkspaces adds reference workspaces to the configured ones.
func WithWorkspaces(ws ...references.Workspace) Option {
	return func(r *Runner) { r.extra = append(r.extra, ws...) }
}

// WithClock sets the time source used for run ids and age evaluation.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

type Runner struct {
	cfg   Config
	extra []references.Workspace
	now   func() time.Time

	mu       sync.Mutex
	storage  cloudstorage.ClientProvider
	managers *cloudstorage.CloudManagers
	terra    *terra.Client
}

// New validates cfg and returns a runner holding a private copy of it.
// An empty RunID is filled in with a fresh one.
func New(cfg Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	r := &Runner{cfg: cfg.clone(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	if r.cfg.RunID == "" {
		r.cfg.RunID = idgen.NewRunID(r.now())
	}
	return r, nil
}

// Config returns a copy of the run configuration.
func (r *Runner) Config() Config { return r.cfg.clone() }

func (r *Runner) RunID() string { return r.cfg.RunID }

// Close releases cloud clients created by the runner.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.managers != nil {
		return r.managers.Close()
	}
	return nil
}

func (r *Runner) stage(ctx context.Context, name string) (context.Context, *slog.Logger) {
	return logctx.With(ctx, slog.String("runID", r.cfg.RunID), slog.String("stage", name))
}

func (r *Runner) terraClient(ctx context.Context) (*terra.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terra == nil {
		c, err := terra.NewClient(ctx, r.cfg.References.Terra.Client)
		if err != nil {
			return nil, fmt.Errorf("create terra client: %w", err)
		}
		r.terra = c
	}
	return r.terra, nil
}

func (r *Runner) clientProvider(ctx context.Context) (cloudstorage.ClientProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.storage == nil {
		m, err := cloudstorage.NewCloudManagers(ctx)
		if err != nil {
			return nil, err
		}
		r.managers = m
		r.storage = m
	}
	return r.storage, nil
}

// Profile returns the storage profile, asking the Terra workspace for its
// bucket when none is configured.
func (r *Runner) Profile(ctx context.Context) (storageprofile.StorageProfile, error) {
	p := r.cfg.Storage
	if p.Bucket != "" {
		return p, nil
	}
	t := r.cfg.References.Terra
	tc, err := r.terraClient(ctx)
	if err != nil {
		return p, err
	}
	bucket, err := tc.BucketName(ctx, t.Namespace, t.Name)
	if err != nil {
		return p, fmt.Errorf("discover bucket of workspace %s/%s: %w", t.Namespace, t.Name, err)
	}
	logctx.FromContext(ctx).Info("Discovered workspace bucket",
		slog.String("workspace", t.Namespace+"/"+t.Name),
		slog.String("bucket", bucket))
	return p.WithBucket(bucket), nil
}

func (r *Runner) storageClient(ctx context.Context) (cloudstorage.Client, storageprofile.StorageProfile, error) {
	p, err := r.Profile(ctx)
	if err != nil {
		return nil, p, err
	}
	provider, err := r.clientProvider(ctx)
	if err != nil {
		return nil, p, err
	}
	client, err := provider.NewClient(ctx, p)
	if err != nil {
		return nil, p, err
	}
	return client, p, nil
}

// RunInventory lists the bucket into the inventory file.
func (r *Runner) RunInventory(ctx context.Context) (inventory.Stats, error) {
	ctx, ll := r.stage(ctx, "inventory")
	client, p, err := r.storageClient(ctx)
	if err != nil {
		return inventory.Stats{}, err
	}
	stats, err := inventory.List(ctx, client, p.Bucket, r.cfg.Inventory)
	if err != nil {
		return stats, err
	}
	ll.Info("Inventory complete",
		slog.String("bucket", p.Bucket),
		slog.Int64("records", stats.Records),
		slog.Int64("bytes", stats.Bytes),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// workspaces opens every configured reference source. The returned func
// closes the database pools.
func (r *Runner) workspaces(ctx context.Context) ([]references.Workspace, func(), error) {
	var (
		out     []references.Workspace
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	rc := r.cfg.References

	if rc.Terra.Enabled() {
		tc, err := r.terraClient(ctx)
		if err != nil {
			return nil, closeAll, err
		}
		out = append(out, references.Workspace{
			Namespace: rc.Terra.Namespace,
			Name:      rc.Terra.Name,
			Source:    tc,
		})
		for _, aux := range rc.Terra.Auxiliary {
			ns, name, err := splitWorkspace(aux)
			if err != nil {
				return nil, closeAll, err
			}
			out = append(out, references.Workspace{
				Namespace:  ns,
				Name:       name,
				Source:     tc,
				BestEffort: rc.Terra.BestEffort,
			})
		}
	}

	for _, pg := range rc.Postgres {
		src, err := pgsource.Open(ctx, pg, rc.Retry)
		if err != nil {
			if pg.BestEffort {
				logctx.FromContext(ctx).Warn("Skipping unreachable postgres source",
					slog.String("source", pg.Name), slog.Any("error", err))
				continue
			}
			closeAll()
			return nil, func() {}, errkind.IncompleteData("postgres:"+pg.Name, err)
		}
		closers = append(closers, src.Close)
		schemas := pg.Schemas
		if len(schemas) == 0 {
			schemas = []string{"public"}
		}
		for _, schema := range schemas {
			out = append(out, references.Workspace{
				Namespace:  pg.Name,
				Name:       schema,
				Source:     src,
				BestEffort: pg.BestEffort,
			})
		}
	}

	for _, path := range rc.StaticFiles {
		out = append(out, references.StaticWorkspace(path))
	}
	out = append(out, r.extra...)
	return out, closeAll, nil
}

// RunReferences resolves the reference set from every configured source.
func (r *Runner) RunReferences(ctx context.Context) (*references.Set, references.Stats, error) {
	ctx, ll := r.stage(ctx, "references")
	ws, closeAll, err := r.workspaces(ctx)
	defer closeAll()
	if err != nil {
		return nil, references.Stats{}, err
	}
	if len(ws) == 0 {
		ll.Warn("No reference sources configured; only force-keep rules protect objects")
	}
	refs, stats, err := references.Resolve(ctx, ws, r.cfg.References.Workers)
	if err != nil {
		return nil, stats, err
	}
	ll.Info("References resolved",
		slog.Int("workspaces", stats.Workspaces),
		slog.Int("tables", stats.Tables),
		slog.Int64("cells", stats.Cells),
		slog.Int("uris", refs.Len()),
		slog.Duration("duration", stats.Duration))
	return refs, stats, nil
}

// RunPlan resolves references and evaluates every inventoried object.
func (r *Runner) RunPlan(ctx context.Context) (plan.Counts, error) {
	if _, err := os.Stat(r.cfg.Inventory.Path); err != nil {
		return plan.Counts{}, fmt.Errorf("inventory %s not available, run the inventory stage first: %w", r.cfg.Inventory.Path, err)
	}
	p, err := r.Profile(ctx)
	if err != nil {
		return plan.Counts{}, err
	}
	refs, _, err := r.RunReferences(ctx)
	if err != nil {
		return plan.Counts{}, err
	}

	ctx, ll := r.stage(ctx, "plan")
	counts, err := plan.Build(ctx, plan.BuildInput{
		RunID:         r.cfg.RunID,
		InventoryPath: r.cfg.Inventory.Path,
		PlanPath:      r.cfg.Plan.Path,
		URIPrefix:     p.URIPrefix(),
		Policy:        r.cfg.Plan.Policy,
		Refs:          refs,
		Now:           r.now(),
		DuckDB:        r.cfg.DuckDB,
	})
	if err != nil {
		return counts, err
	}
	ll.Info("Plan built",
		slog.String("path", r.cfg.Plan.Path),
		slog.Int64("rows", counts.Rows),
		slog.Int64("protected", counts.Protected),
		slog.Int64("eligible", counts.Eligible),
		slog.Int64("eligibleBytes", counts.EligibleBytes))
	return counts, nil
}

// OpenPlan opens the plan file of this run.
func (r *Runner) OpenPlan(ctx context.Context, readOnly bool) (*plan.Store, error) {
	return plan.Open(ctx, r.cfg.Plan.Path, readOnly, r.cfg.DuckDB)
}

// RunClean deletes what the plan marks for deletion. The summary is
// returned even when some objects failed; the error is set only when the
// stage could not run to completion.
func (r *Runner) RunClean(ctx context.Context) (*cleanup.Summary, error) {
	ctx, ll := r.stage(ctx, "clean")
	client, p, err := r.storageClient(ctx)
	if err != nil {
		return nil, err
	}
	store, err := r.OpenPlan(ctx, true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	meta := store.Meta()
	if meta.URIPrefix != p.URIPrefix() {
		return nil, fmt.Errorf("%w: plan %s, bucket %s", ErrPlanBucketMismatch, meta.URIPrefix, p.URIPrefix())
	}
	ll.Info("Cleaning from plan",
		slog.String("planRunID", meta.RunID),
		slog.String("expression", meta.Policy.Expression),
		slog.Time("evaluatedAt", meta.EvaluatedAt))

	summary, err := cleanup.Execute(ctx, client, p.Bucket, store, r.cfg.Cleanup)
	if summary != nil {
		summary.Log(ll)
	}
	return summary, err
}

// RunAll runs inventory, plan and clean in order. A stage starts only
// after the previous one has fully persisted its artifact.
func (r *Runner) RunAll(ctx context.Context) (*cleanup.Summary, error) {
	if _, err := r.RunInventory(ctx); err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	if _, err := r.RunPlan(ctx); err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	return r.RunClean(ctx)
}
