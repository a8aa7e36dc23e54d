package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/meridian/pkg/rules/derive"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Namespace = "test"
	cfg.Subsystem = "engine"
	return cfg
}

func TestNewCollector_Defaults(t *testing.T) {
	c := NewCollector(Config{Enabled: true}, nil)
	if c.Registry() == nil {
		t.Fatal("Registry() = nil")
	}
	if c.config.Namespace != "meridian" || c.config.Subsystem != "engine" {
		t.Errorf("namespace/subsystem = %q/%q, want meridian/engine", c.config.Namespace, c.config.Subsystem)
	}
	if c.config.MaxAttributes != 1000 {
		t.Errorf("MaxAttributes = %d, want 1000", c.config.MaxAttributes)
	}
}

func TestCollector_ObserveAttribute(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())

	c.ObserveAttribute("risk_band", derive.StateResolved, "")
	c.ObserveAttribute("risk_band", derive.StateResolved, "")
	c.ObserveAttribute("fee", derive.StateFailed, derive.KindMissingInput)

	tests := []struct {
		attribute, state, kind string
		want                   float64
	}{
		{"risk_band", "resolved", "", 2},
		{"fee", "failed", "missing_input", 1},
		{"fee", "resolved", "", 0},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(c.derivation.attributes.WithLabelValues(tt.attribute, tt.state, tt.kind))
		if got != tt.want {
			t.Errorf("attributes_total{%s,%s,%s} = %v, want %v", tt.attribute, tt.state, tt.kind, got, tt.want)
		}
	}
}

func TestCollector_Cardinality(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttributes = 2
	c := NewCollector(cfg, prometheus.NewRegistry())

	for _, name := range []string{"a", "b", "c", "d", "a"} {
		c.ObserveAttribute(name, derive.StateResolved, "")
	}
	if got := testutil.ToFloat64(c.derivation.attributes.WithLabelValues("other", "resolved", "")); got != 2 {
		t.Errorf("other = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.derivation.attributes.WithLabelValues("a", "resolved", "")); got != 2 {
		t.Errorf("a = %v, want 2", got)
	}
	if got := c.attributes.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
}

func TestCollector_ObserveRun(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())
	c.ObserveRun(2*time.Millisecond, 5, 1)
	c.ObserveRun(time.Millisecond, 6, 0)

	if got := testutil.ToFloat64(c.derivation.runsTotal); got != 2 {
		t.Errorf("runs_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.derivation.lastFailed); got != 0 {
		t.Errorf("last_run_failed_attributes = %v, want 0", got)
	}
	if got := testutil.CollectAndCount(c.derivation.runDuration); got != 1 {
		t.Errorf("run_duration_seconds series = %d, want 1", got)
	}
}

func TestCollector_Cache(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())
	c.RecordHit("pattern")
	c.RecordHit("pattern")
	c.RecordMiss("lookup")
	c.UpdateSize("rule_ast", 12)

	if got := testutil.ToFloat64(c.cache.hitsTotal.WithLabelValues("pattern")); got != 2 {
		t.Errorf("cache_hits_total{pattern} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.cache.missesTotal.WithLabelValues("lookup")); got != 1 {
		t.Errorf("cache_misses_total{lookup} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.cache.entries.WithLabelValues("rule_ast")); got != 12 {
		t.Errorf("cache_entries{rule_ast} = %v, want 12", got)
	}
}

func TestCollector_CatalogReload(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())
	c.RecordCatalogReload(nil, 40)
	c.RecordCatalogReload(errors.New("bad yaml"), 0)

	if got := testutil.ToFloat64(c.catalog.reloadsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("reloads{success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.catalog.reloadsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("reloads{error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.catalog.attributes); got != 40 {
		t.Errorf("catalog_attributes = %v, want 40", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	c := NewCollector(cfg, prometheus.NewRegistry())

	c.ObserveRun(time.Millisecond, 1, 0)
	c.RecordHit("pattern")
	c.ObserveAttribute("x", derive.StateResolved, "")

	if got := testutil.ToFloat64(c.derivation.runsTotal); got != 0 {
		t.Errorf("runs_total = %v, want 0 when disabled", got)
	}
	if got := c.attributes.Count(); got != 0 {
		t.Errorf("cardinality = %d, want 0 when disabled", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())
	c.ObserveRun(time.Millisecond, 1, 0)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), "test_engine_runs_total 1") {
		t.Errorf("scrape output missing runs_total:\n%s", body)
	}
}
