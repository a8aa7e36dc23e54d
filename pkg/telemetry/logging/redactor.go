package logging

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

// RedactPattern is a user supplied redaction rule.
type RedactPattern struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// Validate checks that the pattern compiles.
func (p RedactPattern) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("redact pattern requires a name")
	}
	if _, err := regexp.Compile(p.Pattern); err != nil {
		return fmt.Errorf("redact pattern %q: %w", p.Name, err)
	}
	return nil
}

// Built-in pattern names.
const (
	PatternEmail      = "email"
	PatternSSN        = "ssn"
	PatternCreditCard = "credit_card"
	PatternIBAN       = "iban"
	PatternPassword   = "password"
)

var defaultPatterns = []RedactPattern{
	{PatternEmail, `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, "***@***"},
	{PatternSSN, `\b\d{3}-\d{2}-\d{4}\b`, "***-**-****"},
	{PatternCreditCard, `\b(?:\d[ -]?){12,15}\d\b`, "****-****-****-****"},
	{PatternIBAN, `\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`, "IBAN-***"},
	{PatternPassword, `(password|passwd|pwd)[:=]\s*\S+`, "$1: ***"},
}

var sensitiveKeys = []string{
	"password", "secret", "token", "api_key",
	"ssn", "tax_id", "national_id",
	"iban", "account_number", "card_number",
	"private_key", "passphrase",
}

type compiledPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Redactor masks personal data in log values.
type Redactor struct {
	patterns []compiledPattern
}

// NewRedactor creates a redactor with the built-in patterns plus custom ones.
func NewRedactor(custom []RedactPattern) (*Redactor, error) {
	r := &Redactor{}
	for _, p := range append(append([]RedactPattern(nil), defaultPatterns...), custom...) {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redact pattern %q: %w", p.Name, err)
		}
		r.patterns = append(r.patterns, compiledPattern{name: p.Name, regex: re, replacement: p.Replacement})
	}
	return r, nil
}

// Patterns returns the names of the active patterns, sorted.
func (r *Redactor) Patterns() []string {
	names := make([]string, len(r.patterns))
	for i, p := range r.patterns {
		names[i] = p.name
	}
	sort.Strings(names)
	return names
}

// RedactString masks every pattern match in s.
func (r *Redactor) RedactString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range r.patterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}

// RedactAttr masks a whole value under a sensitive key and pattern matches
// in any other string value. Groups are processed recursively.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		group := v.Group()
		out := make([]slog.Attr, len(group))
		for i, g := range group {
			out[i] = r.RedactAttr(g)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	case slog.KindString:
		if IsSensitiveKey(a.Key) {
			return slog.String(a.Key, MaskValue(v.String()))
		}
		return slog.String(a.Key, r.RedactString(v.String()))
	}
	if IsSensitiveKey(a.Key) {
		return slog.String(a.Key, "***")
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// IsSensitiveKey reports whether a log key names sensitive data.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range sensitiveKeys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// MaskValue hides all but the last four characters of v.
func MaskValue(v string) string {
	if len(v) <= 4 {
		return "***"
	}
	return "***" + v[len(v)-4:]
}
