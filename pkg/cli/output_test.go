package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatAuto, false},
		{"auto", FormatAuto, false},
		{"TEXT", FormatText, false},
		{" json ", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"junit", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveFormat(t *testing.T) {
	var buf bytes.Buffer
	if got := ResolveFormat(FormatAuto, &buf); got != FormatJSON {
		t.Errorf("ResolveFormat(auto, buffer) = %q, want %q", got, FormatJSON)
	}
	if got := ResolveFormat(FormatText, &buf); got != FormatText {
		t.Errorf("ResolveFormat(text, buffer) = %q, want %q", got, FormatText)
	}
	if IsTerminal(&buf) {
		t.Error("IsTerminal(buffer) = true, want false")
	}
}

func TestTextFormatter(t *testing.T) {
	formatter := &TextFormatter{}

	output, err := formatter.Format("risk_band = \"HIGH\"")
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if want := "risk_band = \"HIGH\"\n"; string(output) != want {
		t.Errorf("Format() = %q, want %q", string(output), want)
	}

	var buf bytes.Buffer
	if err := formatter.FormatTo(&buf, 42); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if want := "42\n"; buf.String() != want {
		t.Errorf("FormatTo() = %q, want %q", buf.String(), want)
	}
}

func TestJSONFormatter(t *testing.T) {
	data := map[string]any{"attribute": "risk_band", "value": "HIGH"}

	for _, indent := range []bool{false, true} {
		formatter := &JSONFormatter{Indent: indent}
		var buf bytes.Buffer
		if err := formatter.FormatTo(&buf, data); err != nil {
			t.Fatalf("FormatTo() error = %v", err)
		}
		var got map[string]any
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if diff := cmp.Diff(data, got); diff != "" {
			t.Errorf("FormatTo() mismatch (-want +got):\n%s", diff)
		}
		if indent != bytes.Contains(buf.Bytes(), []byte("\n  ")) {
			t.Errorf("indent = %v but output is %q", indent, buf.String())
		}
	}
}

type testTable struct{}

func (testTable) Header() []string { return []string{"attribute", "value"} }
func (testTable) Rows() [][]string {
	return [][]string{{"risk_band", "HIGH"}, {"note", "a,b"}}
}

func TestCSVFormatter(t *testing.T) {
	tests := []struct {
		name      string
		formatter *CSVFormatter
		data      any
		want      string
		wantErr   bool
	}{
		{
			name:      "table",
			formatter: &CSVFormatter{},
			data:      testTable{},
			want:      "attribute,value\nrisk_band,HIGH\nnote,\"a,b\"\n",
		},
		{
			name:      "rows with header override",
			formatter: &CSVFormatter{Headers: []string{"k", "v"}},
			data:      [][]string{{"a", "1"}},
			want:      "k,v\na,1\n",
		},
		{
			name:      "unsupported",
			formatter: &CSVFormatter{},
			data:      map[string]string{},
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.formatter.Format(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Format() error = %v, wantErr %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("Format() = %q, want %q", string(got), tt.want)
			}
		})
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format OutputFormat
		want   string
	}{
		{FormatText, "*cli.TextFormatter"},
		{FormatJSON, "*cli.JSONFormatter"},
		{FormatCSV, "*cli.CSVFormatter"},
		{FormatAuto, "*cli.TextFormatter"},
	}
	for _, tt := range tests {
		got := typeName(NewFormatter(tt.format))
		if got != tt.want {
			t.Errorf("NewFormatter(%q) = %s, want %s", tt.format, got, tt.want)
		}
	}
}

func typeName(f Formatter) string {
	switch f.(type) {
	case *TextFormatter:
		return "*cli.TextFormatter"
	case *JSONFormatter:
		return "*cli.JSONFormatter"
	case *CSVFormatter:
		return "*cli.CSVFormatter"
	}
	return "unknown"
}
