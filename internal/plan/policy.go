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

// Package plan classifies inventoried objects and stores the per-object
// deletion decisions in a DuckDB file that stays queryable after the run.
package plan

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cardinalhq/arret/internal/policyexpr"
)

// Rule names, which are also the classification column names.
const (
	RulePipelineLogs = "pipeline_logs"
	RuleOld          = "old"
	RuleLarge        = "large"
)

// RuleNames lists every classification rule in column order.
var RuleNames = []string{RulePipelineLogs, RuleOld, RuleLarge}

const DefaultExpression = "pipeline_logs OR old OR large"

// ForceKeep protects objects by name regardless of classification. Any
// single match is enough.
type ForceKeep struct {
	Suffixes []string `mapstructure:"suffixes" json:"suffixes"`
	Prefixes []string `mapstructure:"prefixes" json:"prefixes"`
	// Segments match whole directory components of the object name.
	Segments []string `mapstructure:"segments" json:"segments"`
}

// Match reports whether name is force-kept.
func (f ForceKeep) Match(name string) bool {
	for _, s := range f.Suffixes {
		if s != "" && strings.HasSuffix(name, s) {
			return true
		}
	}
	for _, p := range f.Prefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return len(f.Segments) > 0 && hasDirSegment(name, f.Segments...)
}

// Policy holds the static parameters of classification and decision.
type Policy struct {
	// DaysConsideredOld: an object is old when more whole days than this
	// have passed since it was updated. Zero is a valid threshold.
	DaysConsideredOld int64 `mapstructure:"days_considered_old"`
	// BytesConsideredLarge: an object is large when its size is strictly
	// greater than this. Zero is a valid threshold.
	BytesConsideredLarge int64 `mapstructure:"bytes_considered_large"`
	// PipelineLogSegment is the directory name that marks pipeline logs.
	PipelineLogSegment string    `mapstructure:"pipeline_log_segment"`
	Expression         string    `mapstructure:"expression"`
	ForceKeep          ForceKeep `mapstructure:"force_keep"`
}

func DefaultPolicy() Policy {
	return Policy{
		DaysConsideredOld:    30,
		BytesConsideredLarge: 1_000_000_000,
		PipelineLogSegment:   "pipeline-logs",
		Expression:           DefaultExpression,
		ForceKeep: ForceKeep{
			Suffixes: []string{".ipynb"},
			Segments: []string{"notebooks"},
		},
	}
}

// Validate checks thresholds and parses the expression.
func (p Policy) Validate() error {
	var errs []error
	if p.DaysConsideredOld < 0 {
		errs = append(errs, fmt.Errorf("days_considered_old must not be negative, got %d", p.DaysConsideredOld))
	}
	if p.BytesConsideredLarge < 0 {
		errs = append(errs, fmt.Errorf("bytes_considered_large must not be negative, got %d", p.BytesConsideredLarge))
	}
	if p.PipelineLogSegment == "" || strings.Contains(p.PipelineLogSegment, "/") {
		errs = append(errs, fmt.Errorf("pipeline_log_segment must be a single path component, got %q", p.PipelineLogSegment))
	}
	if _, err := ParseExpression(p.Expression); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseExpression parses a decision expression over the rule names.
func ParseExpression(src string) (*policyexpr.Expr, error) {
	return policyexpr.Parse(src, RuleNames)
}

// Rule is a named, deterministic predicate over one object.
type Rule struct {
	Name  string
	Match func(name string, size int64, ageDays int64) bool
}

// Rules returns the classification rules for p, in RuleNames order.
func (p Policy) Rules() []Rule {
	return []Rule{
		{
			Name: RulePipelineLogs,
			Match: func(name string, _, _ int64) bool {
				return hasDirSegment(name, p.PipelineLogSegment)
			},
		},
		{
			Name: RuleOld,
			Match: func(_ string, _, ageDays int64) bool {
				return ageDays > p.DaysConsideredOld
			},
		},
		{
			Name: RuleLarge,
			Match: func(_ string, size, _ int64) bool {
				return size > p.BytesConsideredLarge
			},
		},
	}
}

// AgeDays returns the whole days elapsed from updated to now, rounded
// down. Objects updated after now have a negative age.
func AgeDays(updated, now time.Time) int64 {
	d := now.Sub(updated)
	days := int64(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}

// hasDirSegment reports whether any directory component of name, excluding
// the final element, equals one of segments.
func hasDirSegment(name string, segments ...string) bool {
	dirs := strings.Split(name, "/")
	dirs = dirs[:len(dirs)-1]
	for _, d := range dirs {
		for _, s := range segments {
			if d == s {
				return true
			}
		}
	}
	return false
}
