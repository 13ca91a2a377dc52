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

package references

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StaticSource reads operator-maintained keep lists. The workspace name is
// the path of a text file; each non-blank line not starting with '#' is one
// cell. The file is its own single table.
type StaticSource struct{}

var _ Source = StaticSource{}

// StaticWorkspace returns a workspace that reads the keep list at path.
func StaticWorkspace(path string) Workspace {
	return Workspace{Namespace: "file", Name: path, Source: StaticSource{}}
}

func (StaticSource) Kind() string { return "static" }

func (StaticSource) ListTables(_ context.Context, _, name string) ([]string, error) {
	if _, err := os.Stat(name); err != nil {
		return nil, fmt.Errorf("keep list: %w", err)
	}
	return []string{filepath.Base(name)}, nil
}

func (StaticSource) ScanTable(ctx context.Context, _, name, _ string, fn func(cell any)) error {
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("open keep list: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fn(line)
	}
	return sc.Err()
}
