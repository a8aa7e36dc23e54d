package eval

import (
	"mercator-hq/meridian/pkg/dsl/ast"
)

// Patterns behind the IS_* validators.
const (
	EmailPattern = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	SwiftPattern = `^[A-Z]{6}[A-Z0-9]{2}([A-Z0-9]{3})?$`
	PhonePattern = `^\+?[1-9]\d{1,14}$`
	LEIPattern   = `^[A-Z0-9]{18}[0-9]{2}$`
)

func validatorBuiltins() []Builtin {
	return []Builtin{
		{Name: "IS_EMAIL", MinArgs: 1, MaxArgs: 1, Signature: "IS_EMAIL(text)",
			Description: "True when text looks like an e-mail address", Fn: patternValidator(EmailPattern)},
		{Name: "IS_SWIFT", MinArgs: 1, MaxArgs: 1, Signature: "IS_SWIFT(text)",
			Description: "True when text is a SWIFT/BIC code of 8 or 11 characters", Fn: patternValidator(SwiftPattern)},
		{Name: "IS_PHONE", MinArgs: 1, MaxArgs: 1, Signature: "IS_PHONE(text)",
			Description: "True when text is an E.164 phone number", Fn: patternValidator(PhonePattern)},
		{Name: "IS_LEI", MinArgs: 1, MaxArgs: 1, Signature: "IS_LEI(text)",
			Description: "True when text is a Legal Entity Identifier with valid ISO 17442 check digits", Fn: builtinIsLEI},
		{Name: "VALIDATE", MinArgs: 2, MaxArgs: 2, Signature: "VALIDATE(text, pattern)",
			Description: "True when pattern matches text", Fn: builtinValidate},
		{Name: "EXTRACT", MinArgs: 2, MaxArgs: 2, Signature: "EXTRACT(text, pattern)",
			Description: "First capture group of the first match, or the whole match when the pattern has no groups", Fn: builtinExtract},
	}
}

// patternValidator reports whether a string argument matches pattern.
// null is not valid.
func patternValidator(pattern string) Func {
	return func(call *Call, args []ast.Value) (ast.Value, error) {
		s, isNull, err := stringArg(args, 0)
		if err != nil || isNull {
			return ast.Bool(false), err
		}
		re, err := compilePattern(call.Patterns, ast.Regex(pattern))
		if err != nil {
			return ast.Null(), err
		}
		return ast.Bool(re.MatchString(s)), nil
	}
}

func builtinIsLEI(call *Call, args []ast.Value) (ast.Value, error) {
	s, isNull, err := stringArg(args, 0)
	if err != nil || isNull {
		return ast.Bool(false), err
	}
	re, err := compilePattern(call.Patterns, ast.Regex(LEIPattern))
	if err != nil {
		return ast.Null(), err
	}
	return ast.Bool(re.MatchString(s) && ValidLEIChecksum(s)), nil
}

// ValidLEIChecksum applies the ISO 7064 MOD 97-10 check used by ISO 17442:
// letters map to 10..35, and the resulting number modulo 97 must be 1.
func ValidLEIChecksum(lei string) bool {
	if lei == "" {
		return false
	}
	rem := 0
	for i := 0; i < len(lei); i++ {
		c := lei[i]
		switch {
		case c >= '0' && c <= '9':
			rem = (rem*10 + int(c-'0')) % 97
		case c >= 'A' && c <= 'Z':
			rem = (rem*100 + int(c-'A') + 10) % 97
		default:
			return false
		}
	}
	return rem == 1
}

func builtinValidate(call *Call, args []ast.Value) (ast.Value, error) {
	re, err := compilePattern(call.Patterns, args[1])
	if err != nil {
		return ast.Null(), err
	}
	s, isNull, err := stringArg(args, 0)
	if err != nil || isNull {
		return ast.Bool(false), err
	}
	return ast.Bool(re.MatchString(s)), nil
}

func builtinExtract(call *Call, args []ast.Value) (ast.Value, error) {
	re, err := compilePattern(call.Patterns, args[1])
	if err != nil {
		return ast.Null(), err
	}
	s, isNull, err := stringArg(args, 0)
	if err != nil || isNull {
		return ast.Null(), err
	}
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ast.Null(), nil
	}
	if len(m) > 1 {
		return ast.String(m[1]), nil
	}
	return ast.String(m[0]), nil
}
