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

// Package inventory snapshots the objects of a bucket into an NDJSON file.
package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/cardinalhq/arret/internal/cloudstorage"
	"github.com/cardinalhq/arret/internal/errkind"
)

// ErrInvalidName is returned for object names that are not valid UTF-8.
// Such names cannot round-trip through the inventory file unchanged.
var ErrInvalidName = errors.New("object name is not valid UTF-8")

// BlobRecord is the captured metadata of one object. Records are never
// modified after listing.
type BlobRecord struct {
	Name    string
	Size    int64
	Updated time.Time
}

type wireRecord struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	Updated string `json:"updated"`
}

// MarshalJSON writes the record as {"name","size","updated"} with the
// timestamp in RFC 3339, UTC, second precision.
func (r BlobRecord) MarshalJSON() ([]byte, error) {
	if !utf8.ValidString(r.Name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, r.Name)
	}
	return json.Marshal(wireRecord{
		Name:    r.Name,
		Size:    r.Size,
		Updated: r.Updated.UTC().Format(time.RFC3339),
	})
}

func (r *BlobRecord) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Name == "" {
		return fmt.Errorf("record has no name")
	}
	if w.Size < 0 {
		return fmt.Errorf("record %q has negative size %d", w.Name, w.Size)
	}
	t, err := time.Parse(time.RFC3339Nano, w.Updated)
	if err != nil {
		return fmt.Errorf("record %q: bad updated time: %w", w.Name, err)
	}
	*r = BlobRecord{Name: w.Name, Size: w.Size, Updated: t.UTC()}
	return nil
}

func fromObject(o cloudstorage.ObjectInfo) (BlobRecord, error) {
	if !utf8.ValidString(o.Name) {
		return BlobRecord{}, errkind.Permanent(fmt.Errorf("%w: %q", ErrInvalidName, o.Name))
	}
	return BlobRecord{Name: o.Name, Size: o.Size, Updated: o.Updated.UTC()}, nil
}

func fromPage(objects []cloudstorage.ObjectInfo) ([]BlobRecord, error) {
	records := make([]BlobRecord, len(objects))
	for i, o := range objects {
		rec, err := fromObject(o)
		if err != nil {
			return nil, err
		}
		records[i] = rec
	}
	return records, nil
}
