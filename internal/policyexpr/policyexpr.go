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

// Package policyexpr parses deletion policy expressions.
//
// An expression combines identifiers with AND, OR, NOT, parentheses and the
// literals true and false. Keywords and identifiers are case-insensitive.
// NOT binds tighter than AND, which binds tighter than OR. Identifiers are
// checked against a fixed vocabulary when the expression is parsed, so a
// parsed Expr can be evaluated in Go or rendered as a SQL predicate over
// columns of the same names.
package policyexpr

import (
	"fmt"
	"slices"
	"strings"
)

// ParseError reports where an expression could not be parsed.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("policy expression: %s at position %d", e.Msg, e.Pos)
}

// Expr is a parsed, validated expression. It is immutable and safe for
// concurrent use.
type Expr struct {
	src    string
	root   node
	idents []string
}

// Parse parses src and checks that every identifier is one of known.
func Parse(src string, known []string) (*Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	vocab := make(map[string]bool, len(known))
	for _, k := range known {
		vocab[strings.ToLower(k)] = true
	}
	p := &parser{toks: toks, vocab: vocab, seen: map[string]bool{}}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, &ParseError{Pos: t.pos, Msg: fmt.Sprintf("unexpected %s", describe(t))}
	}

	idents := make([]string, 0, len(p.seen))
	for id := range p.seen {
		idents = append(idents, id)
	}
	slices.Sort(idents)
	return &Expr{src: src, root: root, idents: idents}, nil
}

// Eval evaluates the expression, looking up each identifier with lookup.
func (e *Expr) Eval(lookup func(name string) bool) bool {
	return e.root.eval(lookup)
}

// SQL renders the expression as a fully parenthesised SQL boolean
// predicate. Identifiers become double-quoted column names.
func (e *Expr) SQL() string {
	var b strings.Builder
	e.root.writeSQL(&b)
	return b.String()
}

// String returns a normalised form of the expression.
func (e *Expr) String() string {
	var b strings.Builder
	e.root.writeString(&b)
	return b.String()
}

// Source returns the text the expression was parsed from.
func (e *Expr) Source() string { return e.src }

// Identifiers returns the distinct identifiers used, sorted.
func (e *Expr) Identifiers() []string { return slices.Clone(e.idents) }

type parser struct {
	toks  []token
	i     int
	vocab map[string]bool
	seen  map[string]bool
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binaryNode{and: false, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = binaryNode{and: true, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.peek().kind == tokNot {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notNode{x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokIdent:
		if !p.vocab[t.text] {
			return nil, &ParseError{Pos: t.pos, Msg: fmt.Sprintf("unknown identifier %q", t.text)}
		}
		p.seen[t.text] = true
		return identNode{name: t.text}, nil
	case tokTrue:
		return litNode{value: true}, nil
	case tokFalse:
		return litNode{value: false}, nil
	case tokLParen:
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != tokRParen {
			return nil, &ParseError{Pos: c.pos, Msg: fmt.Sprintf("expected ')' but found %s", describe(c))}
		}
		return x, nil
	default:
		return nil, &ParseError{Pos: t.pos, Msg: fmt.Sprintf("expected identifier, literal or '(' but found %s", describe(t))}
	}
}

func describe(t token) string {
	if t.kind == tokIdent {
		return fmt.Sprintf("identifier %q", t.text)
	}
	return t.kind.String()
}
