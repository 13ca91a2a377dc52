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

package plan

import (
	"fmt"
	"time"

	"github.com/cardinalhq/arret/internal/inventory"
	"github.com/cardinalhq/arret/internal/policyexpr"
	"github.com/cardinalhq/arret/internal/references"
)

// Row is the decision record for one object.
type Row struct {
	Name         string
	SizeBytes    int64
	UpdatedAt    time.Time
	AgeDays      int64
	PipelineLogs bool
	Old          bool
	Large        bool
	IsReferenced bool
	IsForceKept  bool
	IsProtected  bool
	ShouldDelete bool
}

// Flag returns the classification column called name.
func (r Row) Flag(name string) bool {
	switch name {
	case RulePipelineLogs:
		return r.PipelineLogs
	case RuleOld:
		return r.Old
	case RuleLarge:
		return r.Large
	default:
		return false
	}
}

// Evaluator turns inventory records into plan rows for one run. It is
// immutable and safe for concurrent use.
type Evaluator struct {
	policy    Policy
	rules     []Rule
	expr      *policyexpr.Expr
	uriPrefix string
	refs      *references.Set
	now       time.Time
}

// NewEvaluator prepares the rules and expression of p. uriPrefix is the
// scheme://bucket/ prefix under which object names appear in refs.
func NewEvaluator(p Policy, uriPrefix string, refs *references.Set, now time.Time) (*Evaluator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	expr, err := ParseExpression(p.Expression)
	if err != nil {
		return nil, err
	}
	if refs == nil {
		return nil, fmt.Errorf("reference set is required")
	}
	return &Evaluator{
		policy:    p,
		rules:     p.Rules(),
		expr:      expr,
		uriPrefix: uriPrefix,
		refs:      refs,
		now:       now.UTC(),
	}, nil
}

func (e *Evaluator) Now() time.Time { return e.now }

func (e *Evaluator) Expression() *policyexpr.Expr { return e.expr }

// Evaluate classifies rec and decides whether it should be deleted.
func (e *Evaluator) Evaluate(rec inventory.BlobRecord) Row {
	row := Row{
		Name:      rec.Name,
		SizeBytes: rec.Size,
		UpdatedAt: rec.Updated.UTC(),
		AgeDays:   AgeDays(rec.Updated, e.now),
	}
	for _, r := range e.rules {
		hit := r.Match(rec.Name, rec.Size, row.AgeDays)
		switch r.Name {
		case RulePipelineLogs:
			row.PipelineLogs = hit
		case RuleOld:
			row.Old = hit
		case RuleLarge:
			row.Large = hit
		}
	}
	row.IsReferenced = e.refs.Contains(e.uriPrefix + rec.Name)
	row.IsForceKept = e.policy.ForceKeep.Match(rec.Name)
	row.IsProtected = row.IsReferenced || row.IsForceKept
	row.ShouldDelete = e.expr.Eval(row.Flag) && !row.IsProtected
	return row
}
