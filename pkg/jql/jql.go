// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

// Package jql validates user-supplied JQL against a closed whitelist of
// fields, operators, functions, and keywords.
//
// The grammar of the recursive-descent parser IS the whitelist: anything the
// parser cannot derive is rejected with a ValidationError naming the first
// offending token, so arbitrary field probing and query splicing never reach
// the upstream. Accepted input is returned in a normalized form (canonical
// field casing, lowered keywords, single-space joins); string literals pass
// through byte for byte. Validation is pure: no I/O, no allocation beyond
// the token stream, and normalizing an already-normalized string is a no-op.
package jql

import (
	"strings"
	"unicode/utf8"

	"github.com/xraymcp/core/pkg/errdefs"
)

// MaxLength is the hard cap on JQL input, enforced before tokenization.
const MaxLength = 4096

// fieldCase maps a lowercased field name to its canonical spelling. Only
// these fields may be queried, ordered by, or changed-checked.
var fieldCase = map[string]string{
	"project":         "project",
	"issuetype":       "issueType",
	"status":          "status",
	"summary":         "summary",
	"description":     "description",
	"assignee":        "assignee",
	"reporter":        "reporter",
	"created":         "created",
	"updated":         "updated",
	"resolved":        "resolved",
	"resolution":      "resolution",
	"priority":        "priority",
	"labels":          "labels",
	"fixversion":      "fixVersion",
	"affectedversion": "affectedVersion",
	"component":       "component",
	"key":             "key",
	"id":              "id",
	"text":            "text",
}

// functionCase maps a lowercased function name to its canonical spelling.
// currentUser and now take no argument; the date helpers take an optional
// duration or string.
var functionCase = map[string]string{
	"currentuser":  "currentUser",
	"now":          "now",
	"startofday":   "startOfDay",
	"endofday":     "endOfDay",
	"startofweek":  "startOfWeek",
	"endofweek":    "endOfWeek",
	"startofmonth": "startOfMonth",
	"endofmonth":   "endOfMonth",
	"startofyear":  "startOfYear",
	"endofyear":    "endOfYear",
}

var reservedWords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "is": true,
	"was": true, "changed": true, "order": true, "by": true,
	"asc": true, "desc": true,
}

// Validate checks jql against the whitelist grammar and returns its
// normalized form. Any disallowed construct yields a ValidationError naming
// the first offending token; nothing is dispatched upstream on failure.
func Validate(jql string) (string, error) {
	if utf8.RuneCountInString(jql) > MaxLength {
		return "", errdefs.Validationf("JQL exceeds the maximum length of %d characters", MaxLength)
	}
	if strings.TrimSpace(jql) == "" {
		return "", errdefs.Validationf("JQL must not be empty")
	}

	p := &parser{lex: &lexer{src: jql}}
	if err := p.advance(); err != nil {
		return "", err
	}
	if err := p.parseQuery(); err != nil {
		return "", err
	}
	return render(p.out), nil
}

type parser struct {
	lex *lexer
	tok token
	out []string
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) emit(atoms ...string) {
	p.out = append(p.out, atoms...)
}

// keyword returns the lowercased text of an identifier token, or "" for any
// other token kind.
func (p *parser) keyword() string {
	if p.tok.kind != tokIdent {
		return ""
	}
	return strings.ToLower(p.tok.text)
}

func (p *parser) parseQuery() error {
	if err := p.parseOr(); err != nil {
		return err
	}
	if p.keyword() == "order" {
		if err := p.parseOrderBy(); err != nil {
			return err
		}
	}
	return p.expectEnd()
}

// expectEnd accepts only the end of input after a complete query. Semicolons
// are the classic splice vector; whatever follows one is reported the way a
// spliced statement head reads: as a field that is not allowed.
func (p *parser) expectEnd() error {
	sawSemicolon := false
	for p.tok.kind == tokSemicolon {
		sawSemicolon = true
		if err := p.advance(); err != nil {
			return err
		}
	}
	if p.tok.kind == tokEOF {
		if sawSemicolon {
			return errdefs.Validationf("Unexpected token: ;")
		}
		return nil
	}
	if p.tok.kind == tokIdent && !reservedWords[p.keyword()] {
		if _, ok := fieldCase[p.keyword()]; !ok {
			return errdefs.Validationf("Unknown or disallowed field: %s", p.tok.text)
		}
	}
	return errdefs.Validationf("Unexpected token: %s", p.tok.text)
}

func (p *parser) parseOr() error {
	if err := p.parseAnd(); err != nil {
		return err
	}
	for p.keyword() == "or" {
		p.emit("or")
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseAnd(); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseAnd() error {
	if err := p.parseNot(); err != nil {
		return err
	}
	for p.keyword() == "and" {
		p.emit("and")
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseNot(); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseNot() error {
	if p.keyword() == "not" {
		p.emit("not")
		if err := p.advance(); err != nil {
			return err
		}
		return p.parseNot()
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() error {
	if p.tok.kind == tokLParen {
		p.emit("(")
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseOr(); err != nil {
			return err
		}
		if p.tok.kind != tokRParen {
			return errdefs.Validationf("Expected ')', got: %s", p.tok.text)
		}
		p.emit(")")
		return p.advance()
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() error {
	if p.tok.kind != tokIdent {
		return errdefs.Validationf("Expected a field, got: %s", p.tok.text)
	}
	canon, ok := fieldCase[p.keyword()]
	if !ok {
		return errdefs.Validationf("Unknown or disallowed field: %s", p.tok.text)
	}
	p.emit(canon)
	if err := p.advance(); err != nil {
		return err
	}

	switch {
	case p.tok.kind == tokOp:
		p.emit(p.tok.text)
		if err := p.advance(); err != nil {
			return err
		}
		return p.parseValue()
	case p.keyword() == "in":
		p.emit("in")
		if err := p.advance(); err != nil {
			return err
		}
		return p.parseValueList()
	case p.keyword() == "not":
		if err := p.advance(); err != nil {
			return err
		}
		if p.keyword() != "in" {
			return errdefs.Validationf("Expected 'in' after 'not', got: %s", p.tok.text)
		}
		p.emit("not in")
		if err := p.advance(); err != nil {
			return err
		}
		return p.parseValueList()
	case p.keyword() == "is":
		if err := p.advance(); err != nil {
			return err
		}
		op := "is"
		if p.keyword() == "not" {
			op = "is not"
			if err := p.advance(); err != nil {
				return err
			}
		}
		kw := p.keyword()
		if kw != "empty" && kw != "null" {
			return errdefs.Validationf("Expected 'empty' or 'null' after '%s', got: %s", op, p.tok.text)
		}
		p.emit(op, kw)
		return p.advance()
	case p.keyword() == "was":
		if err := p.advance(); err != nil {
			return err
		}
		if p.keyword() == "not" {
			p.emit("was not")
			if err := p.advance(); err != nil {
				return err
			}
		} else {
			p.emit("was")
		}
		return p.parseValue()
	case p.keyword() == "changed":
		p.emit("changed")
		return p.advance()
	default:
		return errdefs.Validationf("Expected an operator after %s, got: %s", canon, p.tok.text)
	}
}

func (p *parser) parseValue() error {
	switch p.tok.kind {
	case tokString, tokNumber, tokDuration:
		p.emit(p.tok.text)
		return p.advance()
	case tokIdent:
		kw := p.keyword()
		if kw == "empty" || kw == "null" {
			p.emit(kw)
			return p.advance()
		}
		if reservedWords[kw] {
			return errdefs.Validationf("Expected a value, got: %s", p.tok.text)
		}
		name := p.tok.text
		if err := p.advance(); err != nil {
			return err
		}
		if p.tok.kind == tokLParen {
			return p.parseFunction(name)
		}
		p.emit(name)
		return nil
	default:
		return errdefs.Validationf("Expected a value, got: %s", p.tok.text)
	}
}

// parseFunction is entered with the lookahead on '(' and name holding the
// raw function identifier. The whole call renders as one atom so the
// argument never gains surrounding whitespace.
func (p *parser) parseFunction(name string) error {
	canon, ok := functionCase[strings.ToLower(name)]
	if !ok {
		return errdefs.Validationf("Unknown or disallowed function: %s", name)
	}
	if err := p.advance(); err != nil {
		return err
	}

	arg := ""
	if p.tok.kind != tokRParen {
		if canon == "currentUser" || canon == "now" {
			return errdefs.Validationf("Function %s takes no arguments, got: %s", canon, p.tok.text)
		}
		switch p.tok.kind {
		case tokString, tokDuration, tokNumber:
			arg = p.tok.text
		default:
			return errdefs.Validationf("Expected a duration or string in %s, got: %s", canon, p.tok.text)
		}
		if err := p.advance(); err != nil {
			return err
		}
	}
	if p.tok.kind != tokRParen {
		return errdefs.Validationf("Expected ')' in %s, got: %s", canon, p.tok.text)
	}
	p.emit(canon + "(" + arg + ")")
	return p.advance()
}

func (p *parser) parseValueList() error {
	if p.tok.kind != tokLParen {
		return errdefs.Validationf("Expected '(' after 'in', got: %s", p.tok.text)
	}
	p.emit("(")
	if err := p.advance(); err != nil {
		return err
	}
	for {
		if err := p.parseValue(); err != nil {
			return err
		}
		if p.tok.kind != tokComma {
			break
		}
		p.emit(",")
		if err := p.advance(); err != nil {
			return err
		}
	}
	if p.tok.kind != tokRParen {
		return errdefs.Validationf("Expected ')', got: %s", p.tok.text)
	}
	p.emit(")")
	return p.advance()
}

func (p *parser) parseOrderBy() error {
	if err := p.advance(); err != nil {
		return err
	}
	if p.keyword() != "by" {
		return errdefs.Validationf("Expected 'by' after 'order', got: %s", p.tok.text)
	}
	p.emit("order by")
	if err := p.advance(); err != nil {
		return err
	}
	for {
		if p.tok.kind != tokIdent {
			return errdefs.Validationf("Expected a field, got: %s", p.tok.text)
		}
		canon, ok := fieldCase[p.keyword()]
		if !ok {
			return errdefs.Validationf("Unknown or disallowed field: %s", p.tok.text)
		}
		p.emit(canon)
		if err := p.advance(); err != nil {
			return err
		}
		if kw := p.keyword(); kw == "asc" || kw == "desc" {
			p.emit(kw)
			if err := p.advance(); err != nil {
				return err
			}
		}
		if p.tok.kind != tokComma {
			return nil
		}
		p.emit(",")
		if err := p.advance(); err != nil {
			return err
		}
	}
}

// render joins atoms with single spaces, keeping punctuation tight: nothing
// after '(', nothing before ')' or ','.
func render(atoms []string) string {
	var b strings.Builder
	prev := ""
	for i, atom := range atoms {
		if i > 0 && prev != "(" && atom != ")" && atom != "," {
			b.WriteByte(' ')
		}
		b.WriteString(atom)
		prev = atom
	}
	return b.String()
}
