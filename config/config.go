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
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/cardinalhq/arret/internal/runner"
	"github.com/cardinalhq/arret/internal/storageprofile"
)

// DefaultConfigName is looked up in the working directory when no config
// file is given.
const DefaultConfigName = "arret"

// Config aggregates configuration for the application.
// Each field is owned by its respective package.
type Config struct {
	runner.Config `mapstructure:",squash"`

	// StorageProfileFile, when set, replaces the storage section with a
	// profile read from a YAML file, or from an environment variable when
	// written as "env:NAME".
	StorageProfileFile string       `mapstructure:"storage_profile_file"`
	DuckDB             DuckDBConfig `mapstructure:"duckdb"`
}

func DefaultConfig() *Config {
	return &Config{
		Config: runner.DefaultConfig(),
		DuckDB: DefaultDuckDBConfig(),
	}
}

// Load reads configuration from a file and environment variables.
// Environment variables use the prefix "ARRET" and the dot character in
// keys is replaced by an underscore. For example,
// "plan.policy.days_considered_old" becomes
// "ARRET_PLAN_POLICY_DAYS_CONSIDERED_OLD". An empty path looks for
// arret.yaml (or .toml, .json) in the working directory and tolerates its
// absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("ARRET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.StorageProfileFile != "" {
		p, err := storageprofile.LoadFile(cfg.StorageProfileFile)
		if err != nil {
			return nil, err
		}
		cfg.Storage = p
	}
	return cfg, nil
}

// Runner returns the immutable run configuration for one run.
func (c *Config) Runner(runID string) runner.Config {
	rc := c.Config
	rc.RunID = runID
	rc.DuckDB = c.DuckDB.Settings()
	return rc
}

func (c *Config) Validate() error {
	return errors.Join(c.Config.Validate(), c.DuckDB.Validate())
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("mapstructure")
		if tag == "-" {
			continue
		}
		if strings.HasSuffix(tag, ",squash") {
			bindEnvs(v, val.Field(i).Interface(), parts...)
			continue
		}
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct && f.Type.NumField() > 0 && f.Type.PkgPath() != "time" {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
