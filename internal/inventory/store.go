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

package inventory

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Writer appends records to a temporary sibling of the inventory path.
// Commit renames it into place; Abort removes it. Until Commit the
// previous inventory, if any, is untouched.
type Writer struct {
	path string

	mu    sync.Mutex
	tmp   *os.File
	buf   *bufio.Writer
	count int64
	bytes int64
	done  bool
}

// Create starts a new inventory that will replace the file at path.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create inventory directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temporary inventory: %w", err)
	}
	return &Writer{
		path: path,
		tmp:  tmp,
		buf:  bufio.NewWriterSize(tmp, 1<<20),
	}, nil
}

// Append encodes a batch of records as one contiguous block of lines. It is
// safe for concurrent use; each batch is written atomically with respect
// to other batches.
func (w *Writer) Append(records []BlobRecord) error {
	if len(records) == 0 {
		return nil
	}
	block := make([]byte, 0, len(records)*96)
	var total int64
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode %q: %w", r.Name, err)
		}
		block = append(block, line...)
		block = append(block, '\n')
		total += r.Size
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return errors.New("inventory writer is closed")
	}
	if _, err := w.buf.Write(block); err != nil {
		return fmt.Errorf("write inventory: %w", err)
	}
	w.count += int64(len(records))
	w.bytes += total
	return nil
}

// Count returns the number of records appended so far and their total size.
func (w *Writer) Count() (records, bytes int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count, w.bytes
}

// Commit flushes, syncs and renames the temporary file over the inventory.
func (w *Writer) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return errors.New("inventory writer is closed")
	}
	w.done = true

	if err := w.buf.Flush(); err != nil {
		w.discard()
		return fmt.Errorf("flush inventory: %w", err)
	}
	if err := w.tmp.Sync(); err != nil {
		w.discard()
		return fmt.Errorf("sync inventory: %w", err)
	}
	if err := w.tmp.Close(); err != nil {
		_ = os.Remove(w.tmp.Name())
		return fmt.Errorf("close inventory: %w", err)
	}
	if err := os.Rename(w.tmp.Name(), w.path); err != nil {
		_ = os.Remove(w.tmp.Name())
		return fmt.Errorf("replace inventory: %w", err)
	}
	return nil
}

// Abort discards everything written. It is a no-op after Commit.
func (w *Writer) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	w.done = true
	w.discard()
}

func (w *Writer) discard() {
	_ = w.tmp.Close()
	_ = os.Remove(w.tmp.Name())
}

// Scan streams every record of the inventory at path to fn, in file order.
// Reading stops at the first error returned by fn.
func Scan(ctx context.Context, path string, fn func(BlobRecord) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open inventory: %w", err)
	}
	defer func() { _ = f.Close() }()
	return scan(ctx, f, fn)
}

func scan(ctx context.Context, r io.Reader, fn func(BlobRecord) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if lineNo%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec BlobRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("inventory line %d: %w", lineNo, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read inventory: %w", err)
	}
	return nil
}

// ReadAll loads the whole inventory. Intended for tests and small buckets.
func ReadAll(ctx context.Context, path string) ([]BlobRecord, error) {
	var out []BlobRecord
	err := Scan(ctx, path, func(r BlobRecord) error {
		out = append(out, r)
		return nil
	})
	return out, err
}
