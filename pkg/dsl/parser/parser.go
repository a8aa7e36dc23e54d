package parser

import (
	"fmt"
	"strconv"
	"strings"

	"mercator-hq/meridian/pkg/dsl/ast"
)

// DefaultMaxDepth bounds expression nesting so hostile input cannot exhaust the stack.
const DefaultMaxDepth = 256

// Parser turns rule source into an expression tree. A configured Parser holds
// no per-call state and is safe for concurrent use.
type Parser struct {
	grammar  *Grammar
	maxDepth int
}

// NewParser creates a parser with the built-in grammar.
func NewParser() *Parser {
	return &Parser{
		grammar:  DefaultGrammar(),
		maxDepth: DefaultMaxDepth,
	}
}

// WithGrammar replaces the vocabulary used for keywords and operators.
func (p *Parser) WithGrammar(g *Grammar) *Parser {
	if g != nil {
		p.grammar = g
	}
	return p
}

// WithMaxDepth sets the maximum expression nesting depth.
func (p *Parser) WithMaxDepth(depth int) *Parser {
	if depth > 0 {
		p.maxDepth = depth
	}
	return p
}

// Grammar returns the vocabulary the parser was configured with.
func (p *Parser) Grammar() *Grammar { return p.grammar }

var defaultParser = NewParser()

// Parse parses source with the built-in grammar.
func Parse(source string) (ast.Expression, error) {
	return defaultParser.Parse(source)
}

// Parse parses a single rule expression. On failure the error is a *ParseError.
func (p *Parser) Parse(source string) (ast.Expression, error) {
	toks, err := tokenize(source, p.grammar)
	if err != nil {
		return nil, err
	}
	s := &state{toks: toks, g: p.grammar, maxDepth: p.maxDepth}

	if s.peek().kind == tokEOF {
		return nil, errorAt(s.peek(), "expression")
	}
	expr, err := s.parseExpression()
	if err != nil {
		return nil, err
	}
	if tok := s.peek(); tok.kind != tokEOF {
		expected := []string{"end of input"}
		if tok.kind == tokIdent || tok.kind == tokInt || tok.kind == tokFloat || tok.kind == tokString {
			expected = append(expected, "operator")
		}
		return nil, errorAt(tok, expected...)
	}
	return expr, nil
}

type state struct {
	toks     []token
	pos      int
	depth    int
	maxDepth int
	g        *Grammar
}

func (s *state) peek() token { return s.toks[s.pos] }

func (s *state) peekAt(n int) token {
	if s.pos+n < len(s.toks) {
		return s.toks[s.pos+n]
	}
	return s.toks[len(s.toks)-1]
}

func (s *state) advance() token {
	tok := s.toks[s.pos]
	if tok.kind != tokEOF {
		s.pos++
	}
	return tok
}

func (s *state) enter() error {
	s.depth++
	if s.depth > s.maxDepth {
		tok := s.peek()
		return &ParseError{
			Offset:  tok.pos.Start,
			End:     tok.pos.End,
			Found:   tok.describe(),
			Message: fmt.Sprintf("expression nesting exceeds maximum depth of %d", s.maxDepth),
		}
	}
	return nil
}

func (s *state) leave() { s.depth-- }

func (s *state) isKeyword(tok token, kw Keyword) bool {
	if tok.kind != tokIdent {
		return false
	}
	k, ok := s.g.keyword(tok.text)
	return ok && k == kw
}

func (s *state) expectKeyword(kw Keyword) (token, error) {
	tok := s.peek()
	if !s.isKeyword(tok, kw) {
		return tok, errorAt(tok, s.g.spellings(kw)...)
	}
	return s.advance(), nil
}

func (s *state) expect(kind tokenKind, text string) (token, error) {
	tok := s.peek()
	if tok.kind != kind {
		return tok, errorAt(tok, strconv.Quote(text))
	}
	return s.advance(), nil
}

// parseExpression parses the lowest precedence level: assignment.
func (s *state) parseExpression() (ast.Expression, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.leave()

	if tok := s.peek(); tok.kind == tokIdent && s.peekAt(1).kind == tokAssign && !s.g.IsReserved(tok.text) {
		s.advance()
		s.advance()
		value, err := s.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.Assignment{
			Target: tok.text,
			Value:  value,
			Pos:    tok.pos.Join(value.Span()),
		}, nil
	}
	return s.parseBinary(ast.PrecOr)
}

// binaryOperator reports the infix operator at the current token, if any.
func (s *state) binaryOperator() (ast.BinaryOperator, bool) {
	tok := s.peek()
	switch tok.kind {
	case tokSymbol:
		op, ok := s.g.binary[tok.text]
		return op, ok
	case tokIdent:
		op, ok := s.g.binary[strings.ToUpper(tok.text)]
		return op, ok
	}
	return 0, false
}

func (s *state) isNot(tok token) bool {
	switch tok.kind {
	case tokSymbol:
		_, ok := s.g.not[tok.text]
		return ok
	case tokIdent:
		_, ok := s.g.not[strings.ToUpper(tok.text)]
		return ok
	}
	return false
}

// parseBinary parses a left-associative chain of operators at level and above.
func (s *state) parseBinary(level ast.Precedence) (ast.Expression, error) {
	switch {
	case level == ast.PrecNot:
		return s.parseNot()
	case level > ast.PrecMultiplicative:
		return s.parseUnary()
	}

	left, err := s.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		op, ok := s.binaryOperator()
		if !ok || op.Precedence() != level {
			return left, nil
		}
		s.advance()
		right, err := s.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryOp{
			Op:    op,
			Left:  left,
			Right: right,
			Pos:   left.Span().Join(right.Span()),
		}
	}
}

func (s *state) parseNot() (ast.Expression, error) {
	tok := s.peek()
	if !s.isNot(tok) {
		return s.parseBinary(ast.PrecComparison)
	}
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.leave()

	s.advance()
	operand, err := s.parseNot()
	if err != nil {
		return nil, err
	}
	return &ast.UnaryOp{Op: ast.OpNot, Operand: operand, Pos: tok.pos.Join(operand.Span())}, nil
}

func (s *state) parseUnary() (ast.Expression, error) {
	tok := s.peek()
	if tok.kind != tokSymbol || (tok.text != "-" && tok.text != "+") {
		return s.parsePrimary()
	}
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.leave()

	s.advance()
	operand, err := s.parseUnary()
	if err != nil {
		return nil, err
	}
	if tok.text == "+" {
		return operand, nil
	}
	return &ast.UnaryOp{Op: ast.OpNeg, Operand: operand, Pos: tok.pos.Join(operand.Span())}, nil
}

func (s *state) parsePrimary() (ast.Expression, error) {
	tok := s.peek()
	switch tok.kind {
	case tokInt:
		s.advance()
		n, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return nil, &ParseError{
				Offset:  tok.pos.Start,
				End:     tok.pos.End,
				Found:   tok.describe(),
				Message: fmt.Sprintf("integer literal %s is out of range", tok.text),
			}
		}
		return &ast.Literal{Value: ast.Int(n), Pos: tok.pos}, nil
	case tokFloat:
		s.advance()
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, &ParseError{
				Offset:  tok.pos.Start,
				End:     tok.pos.End,
				Found:   tok.describe(),
				Message: fmt.Sprintf("float literal %s is out of range", tok.text),
			}
		}
		return &ast.Literal{Value: ast.Float(f), Pos: tok.pos}, nil
	case tokString:
		s.advance()
		return &ast.Literal{Value: ast.String(tok.value), Pos: tok.pos}, nil
	case tokRegex:
		s.advance()
		return &ast.Literal{Value: ast.Regex(tok.value), Pos: tok.pos}, nil
	case tokLParen:
		s.advance()
		inner, err := s.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := s.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokLBracket:
		return s.parseList()
	case tokIdent:
		return s.parseWord()
	}
	return nil, errorAt(tok, "expression")
}

func (s *state) parseWord() (ast.Expression, error) {
	tok := s.peek()
	if kw, ok := s.g.keyword(tok.text); ok {
		switch kw {
		case KeywordIf:
			return s.parseConditional()
		case KeywordTrue:
			s.advance()
			return &ast.Literal{Value: ast.Bool(true), Pos: tok.pos}, nil
		case KeywordFalse:
			s.advance()
			return &ast.Literal{Value: ast.Bool(false), Pos: tok.pos}, nil
		case KeywordNull:
			s.advance()
			return &ast.Literal{Value: ast.Null(), Pos: tok.pos}, nil
		case KeywordCast:
			if s.peekAt(1).kind == tokLParen {
				return s.parseCast()
			}
		}
		return nil, errorAt(tok, "expression")
	}
	if s.g.IsReserved(tok.text) {
		return nil, errorAt(tok, "expression")
	}

	s.advance()
	if s.peek().kind == tokLParen {
		return s.parseCall(tok)
	}
	return &ast.Identifier{Name: tok.text, Pos: tok.pos}, nil
}

func (s *state) parseCall(name token) (ast.Expression, error) {
	s.advance() // (
	var args []ast.Expression
	if s.peek().kind != tokRParen {
		for {
			arg, err := s.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if s.peek().kind != tokComma {
				break
			}
			s.advance()
		}
	}
	closing := s.peek()
	if closing.kind != tokRParen {
		return nil, errorAt(closing, `","`, `")"`)
	}
	s.advance()
	return &ast.FunctionCall{
		Name: strings.ToUpper(name.text),
		Args: args,
		Pos:  name.pos.Join(closing.pos),
	}, nil
}

func (s *state) parseList() (ast.Expression, error) {
	open := s.advance()
	elems := []ast.Expression{}
	if s.peek().kind != tokRBracket {
		for {
			elem, err := s.parseExpression()
			if err != nil {
				return nil, err
			}
			elems = append(elems, elem)
			if s.peek().kind != tokComma {
				break
			}
			s.advance()
		}
	}
	closing := s.peek()
	if closing.kind != tokRBracket {
		return nil, errorAt(closing, `","`, `"]"`)
	}
	s.advance()
	return &ast.ListLiteral{Elements: elems, Pos: open.pos.Join(closing.pos)}, nil
}

func (s *state) parseConditional() (ast.Expression, error) {
	ifTok := s.advance()
	cond, err := s.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := s.expectKeyword(KeywordThen); err != nil {
		return nil, err
	}
	then, err := s.parseExpression()
	if err != nil {
		return nil, err
	}
	node := &ast.Conditional{Condition: cond, Then: then, Pos: ifTok.pos.Join(then.Span())}
	if s.isKeyword(s.peek(), KeywordElse) {
		s.advance()
		els, err := s.parseExpression()
		if err != nil {
			return nil, err
		}
		node.Else = els
		node.Pos = node.Pos.Join(els.Span())
	}
	return node, nil
}

func (s *state) parseCast() (ast.Expression, error) {
	castTok := s.advance()
	s.advance() // (
	value, err := s.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := s.expectKeyword(KeywordAs); err != nil {
		return nil, err
	}
	typeTok := s.peek()
	target, ok := s.g.castTypes[strings.ToUpper(typeTok.text)]
	if typeTok.kind != tokIdent || !ok {
		return nil, errorAt(typeTok, "type name")
	}
	s.advance()
	closing, err := s.expect(tokRParen, ")")
	if err != nil {
		return nil, err
	}
	return &ast.Cast{Value: value, Target: target, Pos: castTok.pos.Join(closing.pos)}, nil
}
