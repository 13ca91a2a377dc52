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

package storageprofile

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a single StorageProfile from a YAML file. A filename of
// the form "env:NAME" reads the YAML from environment variable NAME.
func LoadFile(filename string) (StorageProfile, error) {
	if after, ok := strings.CutPrefix(filename, "env:"); ok {
		contents := os.Getenv(after)
		if contents == "" {
			return StorageProfile{}, fmt.Errorf("environment variable %s is not set", after)
		}
		return parseProfile(filename, []byte(contents))
	}

	contents, err := os.ReadFile(filename)
	if err != nil {
		return StorageProfile{}, fmt.Errorf("failed to read storage profile from file %s: %w", filename, err)
	}
	return parseProfile(filename, contents)
}

func parseProfile(filename string, contents []byte) (StorageProfile, error) {
	var p StorageProfile
	dec := yaml.NewDecoder(bytes.NewReader(contents))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return StorageProfile{}, fmt.Errorf("failed to unmarshal storage profile from file %s: %w", filename, err)
	}
	if err := p.Validate(); err != nil {
		return StorageProfile{}, fmt.Errorf("invalid storage profile in %s: %w", filename, err)
	}
	return p, nil
}
