package parser

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"mercator-hq/meridian/pkg/dsl/ast"
)

// Keyword is a reserved word with structural meaning in the rule language.
type Keyword string

const (
	KeywordIf    Keyword = "IF"
	KeywordThen  Keyword = "THEN"
	KeywordElse  Keyword = "ELSE"
	KeywordCast  Keyword = "CAST"
	KeywordAs    Keyword = "AS"
	KeywordTrue  Keyword = "TRUE"
	KeywordFalse Keyword = "FALSE"
	KeywordNull  Keyword = "NULL"
)

var canonicalKeywords = map[Keyword]struct{}{
	KeywordIf: {}, KeywordThen: {}, KeywordElse: {}, KeywordCast: {},
	KeywordAs: {}, KeywordTrue: {}, KeywordFalse: {}, KeywordNull: {},
}

// unaryNot is the canonical operator name for logical negation in a GrammarSpec.
const unaryNot = "NOT"

// GrammarSpec is the declarative form of the grammar's vocabulary. It maps
// alternative spellings onto canonical keywords and operators. Operator
// precedence is fixed by the canonical operator and cannot be changed here.
type GrammarSpec struct {
	// Keywords maps a spelling (for example WHEN) to a canonical keyword (IF).
	Keywords map[string]string `yaml:"keywords"`
	// Operators maps a spelling (for example && or MATCHES) to a canonical
	// operator (AND, ~) or to NOT for logical negation.
	Operators map[string]string `yaml:"operators"`
	// CastTypes maps a spelling accepted after AS to a declared type name.
	CastTypes map[string]string `yaml:"cast_types"`
}

// DefaultGrammarSpec returns the built-in vocabulary.
func DefaultGrammarSpec() GrammarSpec {
	spec := GrammarSpec{
		Keywords: map[string]string{
			"IF": "IF", "WHEN": "IF", "THEN": "THEN", "ELSE": "ELSE",
			"CAST": "CAST", "AS": "AS", "TRUE": "TRUE", "FALSE": "FALSE", "NULL": "NULL",
		},
		Operators: map[string]string{
			"<>": "!=", "&&": "AND", "||": "OR", "MATCHES": "~", "!": unaryNot, "NOT": unaryNot,
		},
		CastTypes: map[string]string{
			"STRING": "string", "INTEGER": "integer", "FLOAT": "float", "BOOLEAN": "boolean",
		},
	}
	for _, op := range ast.BinaryOperators() {
		spec.Operators[op.String()] = op.String()
	}
	return spec
}

// Grammar is a compiled, immutable vocabulary. It is safe for concurrent use.
type Grammar struct {
	keywords  map[string]Keyword
	binary    map[string]ast.BinaryOperator
	not       map[string]struct{}
	castTypes map[string]ast.DeclaredType
	symbols   []string // symbolic spellings, longest first
}

var defaultGrammar = mustCompile(DefaultGrammarSpec())

// DefaultGrammar returns the built-in grammar.
func DefaultGrammar() *Grammar { return defaultGrammar }

func mustCompile(spec GrammarSpec) *Grammar {
	g, err := CompileGrammar(spec)
	if err != nil {
		panic("parser: invalid built-in grammar: " + err.Error())
	}
	return g
}

// CompileGrammar validates spec and builds the lookup tables used by the lexer
// and parser.
func CompileGrammar(spec GrammarSpec) (*Grammar, error) {
	canonicalOps := make(map[string]ast.BinaryOperator)
	for _, op := range ast.BinaryOperators() {
		canonicalOps[op.String()] = op
	}

	g := &Grammar{
		keywords:  make(map[string]Keyword),
		binary:    make(map[string]ast.BinaryOperator),
		not:       make(map[string]struct{}),
		castTypes: make(map[string]ast.DeclaredType),
	}
	words := make(map[string]string)
	claim := func(spelling, owner string) error {
		if prev, ok := words[spelling]; ok && prev != owner {
			return fmt.Errorf("spelling %q is used by both %s and %s", spelling, prev, owner)
		}
		words[spelling] = owner
		return nil
	}

	for spelling, target := range spec.Keywords {
		kw := Keyword(strings.ToUpper(target))
		if _, ok := canonicalKeywords[kw]; !ok {
			return nil, fmt.Errorf("keyword %q maps to unknown keyword %q", spelling, target)
		}
		word := strings.ToUpper(spelling)
		if !isWord(word) {
			return nil, fmt.Errorf("keyword spelling %q must be a word", spelling)
		}
		if err := claim(word, "keyword "+string(kw)); err != nil {
			return nil, err
		}
		g.keywords[word] = kw
	}

	symbols := make(map[string]struct{})
	for spelling, target := range spec.Operators {
		if spelling == "" {
			return nil, fmt.Errorf("operator %q has an empty spelling", target)
		}
		key := spelling
		if isWord(strings.ToUpper(spelling)) {
			key = strings.ToUpper(spelling)
		} else if !isSymbol(spelling) {
			return nil, fmt.Errorf("operator spelling %q must be a word or consist only of operator characters", spelling)
		} else if _, reserved := structural[spelling]; reserved {
			return nil, fmt.Errorf("operator spelling %q is reserved", spelling)
		}

		canon := strings.ToUpper(target)
		if op, ok := canonicalOps[canon]; ok {
			if err := claim(key, "operator "+canon); err != nil {
				return nil, err
			}
			g.binary[key] = op
		} else if canon == unaryNot {
			if err := claim(key, "operator "+canon); err != nil {
				return nil, err
			}
			g.not[key] = struct{}{}
		} else {
			return nil, fmt.Errorf("operator %q maps to unknown operator %q", spelling, target)
		}
		if !isWord(key) {
			symbols[key] = struct{}{}
		}
	}

	for spelling, target := range spec.CastTypes {
		t, err := ast.ParseDeclaredType(target)
		if err != nil {
			return nil, fmt.Errorf("cast type %q: %w", spelling, err)
		}
		switch t {
		case ast.TypeString, ast.TypeInteger, ast.TypeFloat, ast.TypeBoolean:
		default:
			return nil, fmt.Errorf("cast type %q: cannot cast to %s", spelling, t)
		}
		g.castTypes[strings.ToUpper(spelling)] = t
	}

	for _, kw := range []Keyword{KeywordIf, KeywordThen} {
		if !g.hasKeyword(kw) {
			return nil, fmt.Errorf("grammar has no spelling for keyword %s", kw)
		}
	}

	for s := range symbols {
		g.symbols = append(g.symbols, s)
	}
	sort.Slice(g.symbols, func(i, j int) bool {
		if len(g.symbols[i]) != len(g.symbols[j]) {
			return len(g.symbols[i]) > len(g.symbols[j])
		}
		return g.symbols[i] < g.symbols[j]
	})
	return g, nil
}

// LoadGrammarFile reads a YAML GrammarSpec from path, layers it over the
// built-in vocabulary and compiles the result.
func LoadGrammarFile(path string) (*Grammar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read grammar file: %w", err)
	}
	var overlay GrammarSpec
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse grammar file %s: %w", path, err)
	}
	spec := DefaultGrammarSpec()
	for k, v := range overlay.Keywords {
		spec.Keywords[k] = v
	}
	for k, v := range overlay.Operators {
		spec.Operators[k] = v
	}
	for k, v := range overlay.CastTypes {
		spec.CastTypes[k] = v
	}
	g, err := CompileGrammar(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid grammar file %s: %w", path, err)
	}
	return g, nil
}

// Keywords returns every keyword spelling, sorted.
func (g *Grammar) Keywords() []string {
	out := make([]string, 0, len(g.keywords))
	for k := range g.keywords {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsReserved reports whether word cannot be used as an identifier.
func (g *Grammar) IsReserved(word string) bool {
	w := strings.ToUpper(word)
	if _, ok := g.keywords[w]; ok {
		return true
	}
	if _, ok := g.binary[w]; ok {
		return true
	}
	_, ok := g.not[w]
	return ok
}

func (g *Grammar) keyword(word string) (Keyword, bool) {
	kw, ok := g.keywords[strings.ToUpper(word)]
	return kw, ok
}

func (g *Grammar) hasKeyword(kw Keyword) bool {
	for _, k := range g.keywords {
		if k == kw {
			return true
		}
	}
	return false
}

// spellings returns the sorted spellings of kw, used in error messages.
func (g *Grammar) spellings(kw Keyword) []string {
	var out []string
	for s, k := range g.keywords {
		if k == kw {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func isWord(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) || s[i] == '.' {
			return false
		}
	}
	return true
}

func isSymbol(s string) bool {
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(symbolChars, rune(s[i])) {
			return false
		}
	}
	return s != ""
}
