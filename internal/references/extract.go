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
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// schemePattern is a storage scheme and bucket. A bucket name is followed
// by at least one path character.
const schemePattern = `(?:gs|s3|az|file)://[A-Za-z0-9][A-Za-z0-9._\-]*/`

// uriPattern matches storage URIs embedded anywhere in a text value.
// tightPattern additionally stops at list and bracket punctuation, so
// Postgres array text and comma separated values yield their elements.
var (
	uriPattern    = regexp.MustCompile(`\b` + schemePattern + `[^\s"'<>\\\x60]+`)
	tightPattern  = regexp.MustCompile(`\b` + schemePattern + `[^\s"'<>\\\x60,{}\[\]()]+`)
	wholePattern  = regexp.MustCompile(`^` + schemePattern + `.`)
	quotedPattern = regexp.MustCompile(`"(` + schemePattern + `(?:[^"\\]|\\.)+)"`)
)

// ExtractURIs returns every storage URI candidate found in text, without
// duplicates. A value that is itself a URI is kept whole, so object names
// containing spaces, quotes or commas survive. Double quoted URIs (JSON
// text, quoted Postgres array elements) are kept whole as well. Embedded
// URIs are returned both up to the next delimiter and up to the next list
// punctuation. Extra candidates only protect more objects.
func ExtractURIs(text string) []string {
	if !strings.Contains(text, "://") {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	add := func(uri string) {
		if _, ok := seen[uri]; ok || uri == "" {
			return
		}
		seen[uri] = struct{}{}
		out = append(out, uri)
	}

	if whole := strings.TrimSpace(text); wholePattern.MatchString(whole) {
		add(whole)
	}
	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		if unq, err := strconv.Unquote(`"` + m[1] + `"`); err == nil {
			add(unq)
		} else {
			add(m[1])
		}
	}
	for _, uri := range uriPattern.FindAllString(text, -1) {
		add(uri)
		add(strings.TrimRight(uri, ",;.)]}"))
	}
	for _, uri := range tightPattern.FindAllString(text, -1) {
		add(uri)
	}
	return out
}

// Flatten walks a decoded cell value depth-first and calls fn with every
// leaf rendered as text. Lists and maps are descended into; nil leaves are
// skipped.
func Flatten(v any, fn func(text string)) {
	switch x := v.(type) {
	case nil:
	case string:
		fn(x)
	case []byte:
		fn(string(x))
	case []any:
		for _, item := range x {
			Flatten(item, fn)
		}
	case []string:
		for _, item := range x {
			fn(item)
		}
	case map[string]any:
		for _, item := range x {
			Flatten(item, fn)
		}
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(x, &decoded); err != nil {
			fn(string(x))
			return
		}
		Flatten(decoded, fn)
	case fmt.Stringer:
		fn(x.String())
	default:
		fn(fmt.Sprint(x))
	}
}

// collect adds every URI found in cell to set and returns how many were
// found, counting repeats.
func collect(set *Set, cell any) int {
	n := 0
	Flatten(cell, func(text string) {
		if uris := ExtractURIs(text); len(uris) > 0 {
			set.Add(uris...)
			n += len(uris)
		}
	})
	return n
}
