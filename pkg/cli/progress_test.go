package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSimpleProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf, "subjects").(*SimpleProgress)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return start }

	p.Start(4)
	p.now = func() time.Time { return start.Add(time.Second) }
	p.Update(2)

	out := buf.String()
	if !strings.Contains(out, "50.0% (2/4) 2.0 subjects/s") {
		t.Errorf("progress output = %q, want 50%% at 2 subjects/s", out)
	}

	p.Finish()
	if !strings.HasSuffix(buf.String(), "(4/4) 4.0 subjects/s\n") {
		t.Errorf("finished output = %q", buf.String())
	}

	p.Error(errors.New("facts file truncated"))
	if !strings.Contains(buf.String(), "error: facts file truncated") {
		t.Errorf("error output = %q", buf.String())
	}
}

func TestSimpleProgress_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf, "")
	p.Start(0)
	p.Update(1)
	if buf.Len() != 0 {
		t.Errorf("output = %q, want nothing for an unknown total", buf.String())
	}
}

func TestProgressFor_NotTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := ProgressFor(&buf, "subjects")
	if _, ok := p.(NopProgress); !ok {
		t.Fatalf("ProgressFor(buffer) = %T, want NopProgress", p)
	}
	p.Start(3)
	p.Finish()
	if buf.Len() != 0 {
		t.Errorf("output = %q, want nothing", buf.String())
	}
}
