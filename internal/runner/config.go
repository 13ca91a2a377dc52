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

package runner

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/cardinalhq/arret/internal/cleanup"
	"github.com/cardinalhq/arret/internal/duckdbx"
	"github.com/cardinalhq/arret/internal/inventory"
	"github.com/cardinalhq/arret/internal/plan"
	"github.com/cardinalhq/arret/internal/references/pgsource"
	"github.com/cardinalhq/arret/internal/retry"
	"github.com/cardinalhq/arret/internal/storageprofile"
	"github.com/cardinalhq/arret/internal/terra"
)

// TerraConfig names the workspace whose tables are scanned for references.
// Auxiliary workspaces are "namespace/name" strings whose tables are
// scanned as well.
type TerraConfig struct {
	Namespace  string       `mapstructure:"namespace"`
	Name       string       `mapstructure:"name"`
	Auxiliary  []string     `mapstructure:"auxiliary"`
	BestEffort bool         `mapstructure:"best_effort"`
	Client     terra.Config `mapstructure:"client"`
}

func (t TerraConfig) Enabled() bool { return t.Namespace != "" || t.Name != "" }

type ReferencesConfig struct {
	Workers int `mapstructure:"workers"`
	// Retry applies to database sources; terra has its own policy.
	Retry    retry.Policy      `mapstructure:"retry"`
	Terra    TerraConfig       `mapstructure:"terra"`
	Postgres []pgsource.Config `mapstructure:"postgres"`
	// StaticFiles are keep lists with one URI per line.
	StaticFiles []string `mapstructure:"static_files"`
	// AllowEmpty permits a run with no reference source at all, which
	// protects nothing except force-kept objects.
	AllowEmpty bool `mapstructure:"allow_empty"`
}

type PlanConfig struct {
	Path   string      `mapstructure:"path"`
	Policy plan.Policy `mapstructure:"policy"`
}

// Config is everything one run needs. A Runner copies it on creation and
// never changes it afterwards.
type Config struct {
	RunID      string                        `mapstructure:"-"`
	Storage    storageprofile.StorageProfile `mapstructure:"storage"`
	Inventory  inventory.Config              `mapstructure:"inventory"`
	References ReferencesConfig              `mapstructure:"references"`
	Plan       PlanConfig                    `mapstructure:"plan"`
	Cleanup    cleanup.Config                `mapstructure:"cleanup"`
	DuckDB     duckdbx.Settings              `mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		Storage:   storageprofile.StorageProfile{CloudProvider: storageprofile.ProviderGCP},
		Inventory: inventory.DefaultConfig(),
		References: ReferencesConfig{
			Workers: 8,
			Retry:   retry.DefaultPolicy(),
			Terra:   TerraConfig{Client: terra.DefaultConfig()},
		},
		Plan: PlanConfig{
			Path:   "plan.duckdb",
			Policy: plan.DefaultPolicy(),
		},
		Cleanup: cleanup.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	var errs []error
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	if c.Storage.Bucket == "" && !c.References.Terra.Enabled() {
		errs = append(errs, errors.New("storage.bucket is required unless a terra workspace is configured"))
	}
	if err := c.Inventory.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.References.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Plan.Path == "" {
		errs = append(errs, errors.New("plan.path must be set"))
	}
	if err := c.Plan.Policy.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("plan.policy: %w", err))
	}
	if err := c.Cleanup.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r ReferencesConfig) Validate() error {
	var errs []error
	if r.Workers <= 0 {
		errs = append(errs, fmt.Errorf("references.workers must be positive, got %d", r.Workers))
	}
	t := r.Terra
	if t.Enabled() && (t.Namespace == "" || t.Name == "") {
		errs = append(errs, errors.New("references.terra needs both namespace and name"))
	}
	for _, aux := range t.Auxiliary {
		if _, _, err := splitWorkspace(aux); err != nil {
			errs = append(errs, err)
		}
	}
	for i, pg := range r.Postgres {
		if pg.Name == "" {
			errs = append(errs, fmt.Errorf("references.postgres[%d].name must be set", i))
		}
	}
	if !r.AllowEmpty && !t.Enabled() && len(r.Postgres) == 0 && len(r.StaticFiles) == 0 {
		errs = append(errs, errors.New("no reference source configured; set references.allow_empty to run without one"))
	}
	return errors.Join(errs...)
}

// splitWorkspace parses "namespace/name".
func splitWorkspace(s string) (string, string, error) {
	ns, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || ns == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("workspace %q must look like namespace/name", s)
	}
	return ns, name, nil
}

// clone copies the slices so a caller cannot change a running config.
func (c Config) clone() Config {
	c.References.Terra.Auxiliary = slices.Clone(c.References.Terra.Auxiliary)
	c.References.Postgres = slices.Clone(c.References.Postgres)
	for i := range c.References.Postgres {
		c.References.Postgres[i].Schemas = slices.Clone(c.References.Postgres[i].Schemas)
	}
	c.References.StaticFiles = slices.Clone(c.References.StaticFiles)
	fk := &c.Plan.Policy.ForceKeep
	fk.Suffixes = slices.Clone(fk.Suffixes)
	fk.Prefixes = slices.Clone(fk.Prefixes)
	fk.Segments = slices.Clone(fk.Segments)
	return c
}
