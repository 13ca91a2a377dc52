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
	"fmt"
	"os"

	"github.com/cardinalhq/arret/internal/duckdbx"
	"github.com/cardinalhq/arret/internal/helpers"
)

// DuckDBConfig holds DuckDB-specific configuration
type DuckDBConfig struct {
	MemoryLimit          int64  `mapstructure:"memory_limit"`            // Memory limit in MB (0 = unlimited)
	TempDirectory        string `mapstructure:"temp_directory"`          // Directory for spill files
	MaxTempDirectorySize string `mapstructure:"max_temp_directory_size"` // Max size for temp directory
	Threads              int    `mapstructure:"threads"`                 // 0 means DuckDB's default
	PoolSize             int    `mapstructure:"pool_size"`               // Connection pool size
}

func DefaultDuckDBConfig() DuckDBConfig {
	return DuckDBConfig{}
}

func (c DuckDBConfig) Validate() error {
	if c.MemoryLimit < 0 {
		return fmt.Errorf("duckdb.memory_limit must not be negative")
	}
	if c.Threads < 0 {
		return fmt.Errorf("duckdb.threads must not be negative")
	}
	return nil
}

// GetTempDirectory returns the configured temp directory
// Defaults to TMPDIR environment variable if not configured
func (c DuckDBConfig) GetTempDirectory() string {
	if c.TempDirectory != "" {
		return c.TempDirectory
	}
	if tmpdir := os.Getenv("TMPDIR"); tmpdir != "" {
		return tmpdir
	}
	return "/tmp"
}

// GetMaxTempDirectorySize returns the configured max temp directory size
// Defaults to 90% of the temp directory's volume size if not configured
func (c DuckDBConfig) GetMaxTempDirectorySize() string {
	if c.MaxTempDirectorySize != "" {
		return c.MaxTempDirectorySize
	}
	if usage, err := helpers.DiskUsage(c.GetTempDirectory()); err == nil {
		maxSizeGB := uint64(float64(usage.TotalBytes) * 0.9 / (1024 * 1024 * 1024))
		if maxSizeGB > 0 {
			return fmt.Sprintf("%dGB", maxSizeGB)
		}
	}
	return ""
}

// Settings converts the configuration into per-connection settings.
func (c DuckDBConfig) Settings() duckdbx.Settings {
	return duckdbx.Settings{
		MemoryLimitMB:        c.MemoryLimit,
		Threads:              c.Threads,
		TempDirectory:        c.GetTempDirectory(),
		MaxTempDirectorySize: c.GetMaxTempDirectorySize(),
		PoolSize:             c.PoolSize,
	}
}
