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

// Package helpers holds small process-level utilities.
package helpers

import (
	"os"
	"strings"
)

// GetBoolEnv reads a boolean environment variable. "true", "1", "yes",
// "on", "enable" and "enabled" are true; "false", "0", "no", "off",
// "disable" and "disabled" are false (all case insensitive). An unset or
// blank variable yields defaultValue, and any other non-empty value is
// treated as true.
func GetBoolEnv(envVar string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envVar))) {
	case "":
		return defaultValue
	case "false", "0", "no", "off", "disable", "disabled":
		return false
	default:
		return true
	}
}
