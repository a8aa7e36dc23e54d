package ast

import (
	"strconv"
	"strings"
)

// Expression is a node of a parsed rule. The set of implementations is closed:
// Literal, Identifier, Assignment, BinaryOp, UnaryOp, FunctionCall,
// Conditional, ListLiteral and Cast.
type Expression interface {
	// Span returns the byte range of source the node was parsed from.
	Span() Span
	// String renders the node back to rule syntax with explicit grouping.
	String() string

	expressionNode()
}

// Literal is a constant value written in the source.
type Literal struct {
	// Value is the constant, including regex patterns written as /.../.
	Value Value

	// Pos is the source range of the literal.
	Pos Span
}

// Identifier references an attribute by name. Names may contain dots.
type Identifier struct {
	// Name is the attribute name as written, e.g. "customer.age".
	Name string

	// Pos is the source range of the name.
	Pos Span
}

// Assignment binds the value of Value to Target in the fact set and yields it.
type Assignment struct {
	// Target is the attribute receiving the value.
	Target string

	// Value is the right-hand side.
	Value Expression

	// Pos covers the whole assignment.
	Pos Span
}

// BinaryOp applies an infix operator.
type BinaryOp struct {
	// Op is the operator.
	Op BinaryOperator

	// Left is the left operand. For AND and OR it is evaluated first and
	// may short-circuit Right.
	Left Expression

	// Right is the right operand.
	Right Expression

	// Pos covers both operands.
	Pos Span
}

// UnaryOp applies a prefix operator.
type UnaryOp struct {
	Op      UnaryOperator
	Operand Expression
	Pos     Span
}

// FunctionCall invokes a registered function. Name is stored upper-case.
type FunctionCall struct {
	// Name is the upper-cased function name used for registry lookup.
	Name string

	// Args are the argument expressions in call order. They are all
	// evaluated before the function runs.
	Args []Expression

	// Pos covers the name through the closing parenthesis.
	Pos Span
}

// Conditional is IF cond THEN a ELSE b. Else is nil when the ELSE branch is omitted.
type Conditional struct {
	// Condition must evaluate to a boolean or null. Null selects Else.
	Condition Expression

	// Then is evaluated when Condition is true.
	Then Expression

	// Else is evaluated otherwise. A nil Else yields null.
	Else Expression

	// Pos covers IF through the end of the last branch.
	Pos Span
}

// ListLiteral is a bracketed list of expressions.
type ListLiteral struct {
	Elements []Expression
	Pos      Span
}

// Cast converts the value of Value to Target.
type Cast struct {
	// Value is the expression being converted.
	Value Expression

	// Target is the declared type named after AS.
	Target DeclaredType

	// Pos covers the operand and the type name.
	Pos Span
}

func (*Literal) expressionNode()      {}
func (*Identifier) expressionNode()   {}
func (*Assignment) expressionNode()   {}
func (*BinaryOp) expressionNode()     {}
func (*UnaryOp) expressionNode()      {}
func (*FunctionCall) expressionNode() {}
func (*Conditional) expressionNode()  {}
func (*ListLiteral) expressionNode()  {}
func (*Cast) expressionNode()         {}

func (n *Literal) Span() Span      { return n.Pos }
func (n *Identifier) Span() Span   { return n.Pos }
func (n *Assignment) Span() Span   { return n.Pos }
func (n *BinaryOp) Span() Span     { return n.Pos }
func (n *UnaryOp) Span() Span      { return n.Pos }
func (n *FunctionCall) Span() Span { return n.Pos }
func (n *Conditional) Span() Span  { return n.Pos }
func (n *ListLiteral) Span() Span  { return n.Pos }
func (n *Cast) Span() Span         { return n.Pos }

func (n *Literal) String() string {
	if p, ok := n.Value.Pattern(); ok {
		return "/" + strings.ReplaceAll(p, "/", `\/`) + "/"
	}
	if s, ok := n.Value.AsString(); ok {
		return strconv.Quote(s)
	}
	return n.Value.String()
}

func (n *Identifier) String() string { return n.Name }

func (n *Assignment) String() string { return n.Target + " = " + n.Value.String() }

func (n *BinaryOp) String() string {
	return "(" + n.Left.String() + " " + n.Op.String() + " " + n.Right.String() + ")"
}

func (n *UnaryOp) String() string {
	if n.Op == OpNot {
		return "(NOT " + n.Operand.String() + ")"
	}
	return "(" + n.Op.String() + n.Operand.String() + ")"
}

func (n *FunctionCall) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return n.Name + "(" + strings.Join(args, ", ") + ")"
}

func (n *Conditional) String() string {
	var sb strings.Builder
	sb.WriteString("IF ")
	sb.WriteString(n.Condition.String())
	sb.WriteString(" THEN ")
	sb.WriteString(n.Then.String())
	if n.Else != nil {
		sb.WriteString(" ELSE ")
		sb.WriteString(n.Else.String())
	}
	return sb.String()
}

func (n *ListLiteral) String() string {
	elems := make([]string, len(n.Elements))
	for i, e := range n.Elements {
		elems[i] = e.String()
	}
	return "[" + strings.Join(elems, ", ") + "]"
}

func (n *Cast) String() string {
	return "CAST(" + n.Value.String() + " AS " + strings.ToUpper(string(n.Target)) + ")"
}
