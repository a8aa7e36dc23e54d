package logging

import (
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRedactor_RedactString(t *testing.T) {
	r, err := NewRedactor(nil)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"no personal data", "no personal data"},
		{"mail bob@bank.example", "mail ***@***"},
		{"ssn 123-45-6789", "ssn ***-**-****"},
		{"card 4111 1111 1111 1111", "card ****-****-****-****"},
		{"iban GB82WEST12345698765432", "iban IBAN-***"},
		{"password=hunter2", "password: ***"},
	}
	for _, tt := range tests {
		if got := r.RedactString(tt.in); got != tt.want {
			t.Errorf("RedactString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactor_Custom(t *testing.T) {
	r, err := NewRedactor([]RedactPattern{{Name: "lei", Pattern: `\b[0-9A-Z]{18}[0-9]{2}\b`, Replacement: "LEI-***"}})
	if err != nil {
		t.Fatal(err)
	}
	if got := r.RedactString("lei 529900T8BM49AURSDO55"); got != "lei LEI-***" {
		t.Errorf("RedactString() = %q, want %q", got, "lei LEI-***")
	}
	want := []string{"credit_card", "email", "iban", "lei", "password", "ssn"}
	if diff := cmp.Diff(want, r.Patterns()); diff != "" {
		t.Errorf("Patterns() mismatch (-want +got):\n%s", diff)
	}

	if _, err := NewRedactor([]RedactPattern{{Name: "bad", Pattern: "("}}); err == nil {
		t.Error("NewRedactor() with invalid pattern error = nil, want error")
	}
}

func TestRedactor_RedactAttr(t *testing.T) {
	r, _ := NewRedactor(nil)
	tests := []struct {
		name string
		in   slog.Attr
		want string
	}{
		{"sensitive string", slog.String("tax_id", "987654321"), "***4321"},
		{"short sensitive", slog.String("api_key", "abc"), "***"},
		{"sensitive number", slog.Int("account_number", 1234567), "***"},
		{"plain number", slog.Int("count", 7), "7"},
		{"pattern in plain key", slog.String("msg", "to a@b.io"), "to ***@***"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.RedactAttr(tt.in).Value.String(); got != tt.want {
				t.Errorf("RedactAttr() = %q, want %q", got, tt.want)
			}
		})
	}

	group := r.RedactAttr(slog.Group("customer", slog.String("ssn", "123456789")))
	if got := group.Value.Group()[0].Value.String(); got != "***6789" {
		t.Errorf("grouped ssn = %q, want ***6789", got)
	}
}

func TestIsSensitiveKey(t *testing.T) {
	for key, want := range map[string]bool{
		"tax_id":         true,
		"Customer_IBAN":  true,
		"git_token":      true,
		"attribute":      false,
		"risk_score":     false,
		"account_number": true,
	} {
		if got := IsSensitiveKey(key); got != want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", key, got, want)
		}
	}
}
