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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/arret/internal/storageprofile"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, int64(30), cfg.Plan.Policy.DaysConsideredOld)
	assert.Equal(t, int64(1_000_000_000), cfg.Plan.Policy.BytesConsideredLarge)
	assert.Equal(t, "pipeline_logs OR old OR large", cfg.Plan.Policy.Expression)
	assert.Equal(t, []string{".ipynb"}, cfg.Plan.Policy.ForceKeep.Suffixes)
	assert.Equal(t, storageprofile.ProviderGCP, cfg.Storage.CloudProvider)
	assert.Equal(t, 16, cfg.Cleanup.Workers)
}

func TestLoadExplicitFileMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "arret.yaml", `
storage:
  cloud_provider: aws
  bucket: lab-data
  region: us-east-2
inventory:
  path: /var/lib/arret/inventory.ndjson
  page_size: 500
references:
  workers: 4
  terra:
    namespace: broad
    name: analysis
    auxiliary: ["broad/reference-data"]
  static_files: ["/etc/arret/keep.txt"]
plan:
  path: /var/lib/arret/plan.duckdb
  policy:
    days_considered_old: 0
    bytes_considered_large: 0
    expression: "old AND NOT large"
    force_keep:
      prefixes: ["archive/"]
cleanup:
  workers: 32
  call_timeout: 10s
duckdb:
  memory_limit: 2048
  threads: 2
  temp_directory: /scratch
  max_temp_directory_size: 10GB
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "lab-data", cfg.Storage.Bucket)
	assert.Equal(t, "us-east-2", cfg.Storage.Region)
	assert.Equal(t, 500, cfg.Inventory.PageSize)
	assert.Equal(t, 8, cfg.Inventory.Workers, "unset keys keep defaults")
	assert.Equal(t, []string{"broad/reference-data"}, cfg.References.Terra.Auxiliary)
	assert.Equal(t, int64(0), cfg.Plan.Policy.DaysConsideredOld)
	assert.Equal(t, "old AND NOT large", cfg.Plan.Policy.Expression)
	assert.Equal(t, []string{"archive/"}, cfg.Plan.Policy.ForceKeep.Prefixes)
	assert.Equal(t, 10*time.Second, cfg.Cleanup.CallTimeout)
	require.NoError(t, cfg.Validate())

	rc := cfg.Runner("01RUN")
	assert.Equal(t, "01RUN", rc.RunID)
	assert.Equal(t, int64(2048), rc.DuckDB.MemoryLimitMB)
	assert.Equal(t, 2, rc.DuckDB.Threads)
	assert.Equal(t, "/scratch", rc.DuckDB.TempDirectory)
	assert.Equal(t, "10GB", rc.DuckDB.MaxTempDirectorySize)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ARRET_STORAGE_BUCKET", "env-bucket")
	t.Setenv("ARRET_PLAN_POLICY_DAYS_CONSIDERED_OLD", "90")
	t.Setenv("ARRET_PLAN_POLICY_EXPRESSION", "old")
	t.Setenv("ARRET_CLEANUP_DRY_RUN", "true")
	t.Setenv("ARRET_REFERENCES_STATIC_FILES", "/a.txt,/b.txt")
	t.Setenv("ARRET_CLEANUP_RETRY_MAX_RETRIES", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-bucket", cfg.Storage.Bucket)
	assert.Equal(t, int64(90), cfg.Plan.Policy.DaysConsideredOld)
	assert.Equal(t, "old", cfg.Plan.Policy.Expression)
	assert.True(t, cfg.Cleanup.DryRun)
	assert.Equal(t, []string{"/a.txt", "/b.txt"}, cfg.References.StaticFiles)
	assert.Equal(t, 7, cfg.Cleanup.Retry.MaxRetries)
}

func TestStorageProfileFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PROFILE_YAML", "cloud_provider: azure\nbucket: container\nstorage_account: acct\n")
	t.Setenv("ARRET_STORAGE_PROFILE_FILE", "env:PROFILE_YAML")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, storageprofile.ProviderAzure, cfg.Storage.CloudProvider)
	assert.Equal(t, "container", cfg.Storage.Bucket)
	assert.Equal(t, "acct", cfg.Storage.StorageAccount)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Bucket = "b"
	assert.ErrorContains(t, cfg.Validate(), "no reference source")

	cfg.References.AllowEmpty = true
	assert.NoError(t, cfg.Validate())

	cfg.Plan.Policy.DaysConsideredOld = -1
	cfg.DuckDB.Threads = -2
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "days_considered_old")
	assert.ErrorContains(t, err, "duckdb.threads")
}
