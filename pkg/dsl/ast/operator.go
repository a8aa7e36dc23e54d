package ast

// Precedence is the binding strength of an operator; higher binds tighter.
type Precedence int

const (
	PrecLowest Precedence = iota
	PrecAssign
	PrecOr
	PrecAnd
	PrecNot
	PrecComparison
	PrecAdditive
	PrecMultiplicative
	PrecUnary
)

// BinaryOperator enumerates the infix operators.
type BinaryOperator int

const (
	OpAdd BinaryOperator = iota + 1
	OpSub
	OpMul
	OpDiv
	OpMod
	OpConcat
	OpEq
	OpNotEq
	OpLt
	OpGt
	OpLtEq
	OpGtEq
	OpAnd
	OpOr
	OpMatch
	OpIn
	OpNotIn
	OpContains
	OpStartsWith
	OpEndsWith
)

var binaryNames = map[BinaryOperator]string{
	OpAdd:        "+",
	OpSub:        "-",
	OpMul:        "*",
	OpDiv:        "/",
	OpMod:        "%",
	OpConcat:     "&",
	OpEq:         "==",
	OpNotEq:      "!=",
	OpLt:         "<",
	OpGt:         ">",
	OpLtEq:       "<=",
	OpGtEq:       ">=",
	OpAnd:        "AND",
	OpOr:         "OR",
	OpMatch:      "~",
	OpIn:         "IN",
	OpNotIn:      "NOT_IN",
	OpContains:   "CONTAINS",
	OpStartsWith: "STARTS_WITH",
	OpEndsWith:   "ENDS_WITH",
}

// String returns the canonical spelling of the operator.
func (op BinaryOperator) String() string {
	if s, ok := binaryNames[op]; ok {
		return s
	}
	return "?"
}

// Valid reports whether op is a known operator.
func (op BinaryOperator) Valid() bool {
	_, ok := binaryNames[op]
	return ok
}

// Precedence returns the binding level of the operator.
func (op BinaryOperator) Precedence() Precedence {
	switch op {
	case OpOr:
		return PrecOr
	case OpAnd:
		return PrecAnd
	case OpEq, OpNotEq, OpLt, OpGt, OpLtEq, OpGtEq,
		OpMatch, OpIn, OpNotIn, OpContains, OpStartsWith, OpEndsWith:
		return PrecComparison
	case OpAdd, OpSub, OpConcat:
		return PrecAdditive
	case OpMul, OpDiv, OpMod:
		return PrecMultiplicative
	}
	return PrecLowest
}

// IsLogical reports whether op is AND or OR.
func (op BinaryOperator) IsLogical() bool { return op == OpAnd || op == OpOr }

// BinaryOperators returns every binary operator in declaration order.
func BinaryOperators() []BinaryOperator {
	ops := make([]BinaryOperator, 0, len(binaryNames))
	for op := OpAdd; op <= OpEndsWith; op++ {
		ops = append(ops, op)
	}
	return ops
}

// UnaryOperator enumerates the prefix operators.
type UnaryOperator int

const (
	OpNot UnaryOperator = iota + 1
	OpNeg
)

// String returns the canonical spelling of the operator.
func (op UnaryOperator) String() string {
	switch op {
	case OpNot:
		return "NOT"
	case OpNeg:
		return "-"
	}
	return "?"
}

// Precedence returns the binding level of the operator.
func (op UnaryOperator) Precedence() Precedence {
	if op == OpNot {
		return PrecNot
	}
	return PrecUnary
}
