package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"mercator-hq/meridian/pkg/dsl/ast"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokFloat
	tokString
	tokRegex
	tokSymbol
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokAssign
)

// symbolChars are the characters operator spellings may be built from.
const symbolChars = "+-*/%&=!<>~|^"

var structural = map[string]struct{}{"=": {}}

type token struct {
	kind  tokenKind
	text  string // source text
	value string // decoded payload of string and regex literals
	pos   ast.Span
}

// describe renders the token for "found ..." in error messages.
func (t token) describe() string {
	if t.kind == tokEOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", t.text)
}

type lexer struct {
	src     string
	off     int
	grammar *Grammar
	toks    []token
}

// tokenize splits src into tokens. Whether a '/' starts a regex literal or is
// the division operator depends on whether the previous token ends an operand.
func tokenize(src string, g *Grammar) ([]token, error) {
	l := &lexer{src: src, grammar: g}
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.toks = append(l.toks, tok)
		if tok.kind == tokEOF {
			return l.toks, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpaceAndComments()
	start := l.off
	if l.off >= len(l.src) {
		return token{kind: tokEOF, pos: ast.Span{Start: start, End: start}}, nil
	}

	c := l.src[l.off]
	switch {
	case c == 'r' && l.off+1 < len(l.src) && l.src[l.off+1] == '"':
		l.off++
		body, err := l.quoted('"', true)
		if err != nil {
			return token{}, err
		}
		return l.emit(tokRegex, start, body), nil
	case isIdentStart(c):
		for l.off < len(l.src) && isIdentPart(l.src[l.off]) {
			l.off++
		}
		return l.emit(tokIdent, start, ""), nil
	case isDigit(c):
		return l.number(start)
	case c == '"' || c == '\'':
		body, err := l.quoted(c, false)
		if err != nil {
			return token{}, err
		}
		return l.emit(tokString, start, body), nil
	case c == '/' && l.operandExpected():
		return l.regex(start)
	case c == '(':
		l.off++
		return l.emit(tokLParen, start, ""), nil
	case c == ')':
		l.off++
		return l.emit(tokRParen, start, ""), nil
	case c == '[':
		l.off++
		return l.emit(tokLBracket, start, ""), nil
	case c == ']':
		l.off++
		return l.emit(tokRBracket, start, ""), nil
	case c == ',':
		l.off++
		return l.emit(tokComma, start, ""), nil
	}

	for _, sym := range l.grammar.symbols {
		if strings.HasPrefix(l.src[l.off:], sym) {
			l.off += len(sym)
			return l.emit(tokSymbol, start, ""), nil
		}
	}
	if c == '=' {
		l.off++
		return l.emit(tokAssign, start, ""), nil
	}

	r, size := utf8.DecodeRuneInString(l.src[l.off:])
	return token{}, &ParseError{
		Offset:   start,
		End:      start + size,
		Expected: []string{"expression"},
		Found:    fmt.Sprintf("%q", r),
		Message:  fmt.Sprintf("unexpected character %q", r),
	}
}

func (l *lexer) emit(kind tokenKind, start int, value string) token {
	return token{kind: kind, text: l.src[start:l.off], value: value, pos: ast.Span{Start: start, End: l.off}}
}

func (l *lexer) skipSpaceAndComments() {
	for l.off < len(l.src) {
		switch c := l.src[l.off]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.off++
		case c == '#':
			for l.off < len(l.src) && l.src[l.off] != '\n' {
				l.off++
			}
		default:
			return
		}
	}
}

// operandExpected reports whether the previous token leaves the parser
// waiting for an operand.
func (l *lexer) operandExpected() bool {
	if len(l.toks) == 0 {
		return true
	}
	prev := l.toks[len(l.toks)-1]
	switch prev.kind {
	case tokInt, tokFloat, tokString, tokRegex, tokRParen, tokRBracket:
		return false
	case tokIdent:
		kw, ok := l.grammar.keyword(prev.text)
		if ok {
			return kw != KeywordTrue && kw != KeywordFalse && kw != KeywordNull
		}
		return l.grammar.IsReserved(prev.text)
	}
	return true
}

func (l *lexer) number(start int) (token, error) {
	for l.off < len(l.src) && isDigit(l.src[l.off]) {
		l.off++
	}
	kind := tokInt
	if l.off+1 < len(l.src) && l.src[l.off] == '.' && isDigit(l.src[l.off+1]) {
		kind = tokFloat
		l.off++
		for l.off < len(l.src) && isDigit(l.src[l.off]) {
			l.off++
		}
	}
	if l.off < len(l.src) && isIdentStart(l.src[l.off]) {
		end := l.off
		for end < len(l.src) && isIdentPart(l.src[end]) {
			end++
		}
		return token{}, &ParseError{
			Offset:   start,
			End:      end,
			Expected: []string{"number"},
			Found:    fmt.Sprintf("%q", l.src[start:end]),
			Message:  fmt.Sprintf("malformed number %q", l.src[start:end]),
		}
	}
	return l.emit(kind, start, ""), nil
}

// quoted reads a literal delimited by quote starting at the opening quote.
// Recognised escapes are \" \' \\ \n \t \r; any other backslash sequence is
// kept verbatim so regex patterns survive inside strings. In raw mode only the
// escaped quote is decoded.
func (l *lexer) quoted(quote byte, raw bool) (string, error) {
	start := l.off
	l.off++ // opening quote
	var sb strings.Builder
	for l.off < len(l.src) {
		c := l.src[l.off]
		switch {
		case c == quote:
			l.off++
			return sb.String(), nil
		case raw && c == '\\' && l.off+1 < len(l.src) && l.src[l.off+1] == quote:
			sb.WriteByte(quote)
			l.off += 2
		case raw && c == '\\' && l.off+1 < len(l.src):
			sb.WriteString(l.src[l.off : l.off+2])
			l.off += 2
		case c == '\\' && l.off+1 < len(l.src):
			esc := l.src[l.off+1]
			switch esc {
			case '"', '\'', '\\':
				sb.WriteByte(esc)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				sb.WriteByte('\\')
				sb.WriteByte(esc)
			}
			l.off += 2
		default:
			sb.WriteByte(c)
			l.off++
		}
	}
	return "", &ParseError{
		Offset:   start,
		End:      len(l.src),
		Expected: []string{string(quote)},
		Found:    "end of input",
		Message:  "unterminated string literal",
	}
}

// regex reads /pattern/. Only \/ is unescaped; other escapes reach the regex
// engine unchanged.
func (l *lexer) regex(start int) (token, error) {
	l.off++ // opening slash
	var sb strings.Builder
	for l.off < len(l.src) {
		c := l.src[l.off]
		switch {
		case c == '/':
			l.off++
			return l.emit(tokRegex, start, sb.String()), nil
		case c == '\n':
			l.off = len(l.src)
		case c == '\\' && l.off+1 < len(l.src) && l.src[l.off+1] == '/':
			sb.WriteByte('/')
			l.off += 2
		case c == '\\' && l.off+1 < len(l.src):
			sb.WriteString(l.src[l.off : l.off+2])
			l.off += 2
		default:
			sb.WriteByte(c)
			l.off++
		}
	}
	return token{}, &ParseError{
		Offset:   start,
		End:      len(l.src),
		Expected: []string{"/"},
		Found:    "end of input",
		Message:  "unterminated regex literal",
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) || c == '.' }
