// Copyright 2025 Author(s) of Xray MCP
// SPDX-License-Identifier: Apache-2.0

package jql

import (
	"unicode/utf8"

	"github.com/xraymcp/core/pkg/errdefs"
)

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokString
	tokNumber
	tokDuration
	tokOp
	tokLParen
	tokRParen
	tokComma
	tokSemicolon
)

type token struct {
	kind tokKind
	text string
}

var eofToken = token{kind: tokEOF, text: "end of JQL"}

// lexer scans one token at a time. String literals keep their raw lexeme,
// quotes and escapes included, so normalization never rewrites literal
// content. Everything outside the token alphabet is rejected here.
type lexer struct {
	src string
	pos int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return eofToken, nil
	}

	c := l.src[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{tokLParen, "("}, nil
	case c == ')':
		l.pos++
		return token{tokRParen, ")"}, nil
	case c == ',':
		l.pos++
		return token{tokComma, ","}, nil
	case c == ';':
		l.pos++
		return token{tokSemicolon, ";"}, nil
	case c == '\'' || c == '"':
		return l.quoted(c)
	case c == '=':
		l.pos++
		return token{tokOp, "="}, nil
	case c == '~':
		l.pos++
		return token{tokOp, "~"}, nil
	case c == '!':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '=' {
			l.pos += 2
			return token{tokOp, "!="}, nil
		}
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '~' {
			l.pos += 2
			return token{tokOp, "!~"}, nil
		}
		return token{}, errdefs.Validationf("Unexpected character: !")
	case c == '<' || c == '>':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '=' {
			l.pos += 2
			return token{tokOp, string(c) + "="}, nil
		}
		l.pos++
		return token{tokOp, string(c)}, nil
	case c == '+' || c == '-':
		return l.signedDuration()
	case isDigit(c):
		return l.numberOrDuration(l.pos), nil
	case isIdentStart(c):
		return l.ident(), nil
	default:
		r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
		return token{}, errdefs.Validationf("Unexpected character: %s", string(r))
	}
}

func (l *lexer) quoted(quote byte) (token, error) {
	start := l.pos
	l.pos++
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case '\\':
			l.pos += 2
		case quote:
			l.pos++
			return token{tokString, l.src[start:l.pos]}, nil
		default:
			l.pos++
		}
	}
	return token{}, errdefs.Validationf("Unterminated string literal")
}

// signedDuration scans `+`/`-` forms like -30d. A sign requires digits and a
// unit; a bare signed number has no place in the grammar.
func (l *lexer) signedDuration() (token, error) {
	start := l.pos
	l.pos++
	if l.pos >= len(l.src) || !isDigit(l.src[l.pos]) {
		return token{}, errdefs.Validationf("Unexpected character: %s", l.src[start:start+1])
	}
	tok := l.numberOrDuration(start)
	if tok.kind != tokDuration {
		return token{}, errdefs.Validationf("Invalid duration: %s", tok.text)
	}
	return tok, nil
}

func (l *lexer) numberOrDuration(start int) token {
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.src) && isDurationUnit(l.src[l.pos]) &&
		(l.pos+1 >= len(l.src) || !isIdentPart(l.src[l.pos+1])) {
		unit := lowerByte(l.src[l.pos])
		l.pos++
		return token{tokDuration, l.src[start:l.pos-1] + string(unit)}
	}
	return token{tokNumber, l.src[start:l.pos]}
}

func (l *lexer) ident() token {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	return token{tokIdent, l.src[start:l.pos]}
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isDurationUnit(c byte) bool {
	switch lowerByte(c) {
	case 'm', 'h', 'd', 'w':
		return true
	}
	return false
}

func lowerByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
