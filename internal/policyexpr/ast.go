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

package policyexpr

import "strings"

// node is one element of a parsed expression. The set of node types is
// closed: identifiers, boolean literals, NOT, AND and OR.
type node interface {
	eval(lookup func(string) bool) bool
	writeSQL(b *strings.Builder)
	writeString(b *strings.Builder)
}

type identNode struct{ name string }

type litNode struct{ value bool }

type notNode struct{ x node }

type binaryNode struct {
	and  bool
	l, r node
}

func (n identNode) eval(lookup func(string) bool) bool { return lookup(n.name) }
func (n litNode) eval(func(string) bool) bool          { return n.value }
func (n notNode) eval(lookup func(string) bool) bool   { return !n.x.eval(lookup) }

func (n binaryNode) eval(lookup func(string) bool) bool {
	if n.and {
		return n.l.eval(lookup) && n.r.eval(lookup)
	}
	return n.l.eval(lookup) || n.r.eval(lookup)
}

func (n identNode) writeSQL(b *strings.Builder) {
	b.WriteByte('"')
	b.WriteString(n.name)
	b.WriteByte('"')
}

func (n litNode) writeSQL(b *strings.Builder) {
	if n.value {
		b.WriteString("TRUE")
	} else {
		b.WriteString("FALSE")
	}
}

func (n notNode) writeSQL(b *strings.Builder) {
	b.WriteString("(NOT ")
	n.x.writeSQL(b)
	b.WriteByte(')')
}

func (n binaryNode) writeSQL(b *strings.Builder) {
	b.WriteByte('(')
	n.l.writeSQL(b)
	if n.and {
		b.WriteString(" AND ")
	} else {
		b.WriteString(" OR ")
	}
	n.r.writeSQL(b)
	b.WriteByte(')')
}

func (n identNode) writeString(b *strings.Builder) { b.WriteString(n.name) }

func (n litNode) writeString(b *strings.Builder) {
	if n.value {
		b.WriteString("true")
	} else {
		b.WriteString("false")
	}
}

func (n notNode) writeString(b *strings.Builder) {
	b.WriteString("NOT ")
	if _, compound := n.x.(binaryNode); compound {
		b.WriteByte('(')
		n.x.writeString(b)
		b.WriteByte(')')
		return
	}
	n.x.writeString(b)
}

func (n binaryNode) writeString(b *strings.Builder) {
	writeOperand(b, n.l, n.and)
	if n.and {
		b.WriteString(" AND ")
	} else {
		b.WriteString(" OR ")
	}
	writeOperand(b, n.r, n.and)
}

// writeOperand parenthesises an OR nested under an AND.
func writeOperand(b *strings.Builder, x node, parentAnd bool) {
	if bn, ok := x.(binaryNode); ok && parentAnd && !bn.and {
		b.WriteByte('(')
		x.writeString(b)
		b.WriteByte(')')
		return
	}
	x.writeString(b)
}
