package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/meridian/pkg/dsl/ast"
	"mercator-hq/meridian/pkg/dsl/diagnostics"
	"mercator-hq/meridian/pkg/rules/derive"
)

const sampleCatalog = `
attributes:
  - name: income
    type: float
    description: Gross annual income
  - name: debt
    type: float
  - name: dti
    type: float
    rule: debt / income
    dependencies: [debt, income]
  - name: band
    type: string
    kind: derived
    rule: IF dti > 0.4 THEN "high" ELSE "low"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "attrs.yaml", sampleCatalog)

	c, err := NewLoader(nil, nil, nil, nil).LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if diff := cmp.Diff([]string{"band", "debt", "dti", "income"}, c.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"band", "dti"}, c.Derived()); diff != "" {
		t.Errorf("Derived mismatch (-want +got):\n%s", diff)
	}

	dti, ok := c.Get("dti")
	if !ok {
		t.Fatal("Get(dti) not found")
	}
	d, ok := dti.Derived()
	if !ok {
		t.Fatal("dti is not derived")
	}
	if d.Expr == nil {
		t.Error("dti rule was not parsed")
	}
	if dti.Type != ast.TypeFloat {
		t.Errorf("dti type = %q, want float", dti.Type)
	}
	income, _ := c.Get("income")
	if income.Description != "Gross annual income" || income.IsDerived() {
		t.Errorf("income = %+v", income)
	}
	if c.Source("dti") != path {
		t.Errorf("Source(dti) = %q, want %q", c.Source("dti"), path)
	}
	if len(c.Diagnostics) != 0 {
		t.Errorf("Diagnostics = %v, want none", c.Diagnostics)
	}
}

func TestLoader_LoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b/derived.yml", "attributes:\n  - name: double\n    rule: base * 2\n")
	writeFile(t, dir, "a/real.yaml", "attributes:\n  - name: base\n    type: integer\n")
	writeFile(t, dir, ".hidden/skip.yaml", "attributes:\n  - name: hidden\n")
	writeFile(t, dir, "notes.txt", "not a catalog")

	c, err := NewLoader(nil, nil, nil, nil).Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff([]string{"base", "double"}, c.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
	want := []string{filepath.Join(dir, "a/real.yaml"), filepath.Join(dir, "b/derived.yml")}
	if diff := cmp.Diff(want, c.Sources); diff != "" {
		t.Errorf("Sources mismatch (-want +got):\n%s", diff)
	}
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing name", "attributes:\n  - type: float\n", "attribute name is required"},
		{"bad type", "attributes:\n  - name: a\n    type: money\n", `unknown type "money"`},
		{"real with rule", "attributes:\n  - name: a\n    kind: real\n    rule: 1\n", "real attributes must not have a rule"},
		{"derived without rule", "attributes:\n  - name: a\n    kind: derived\n", "derived attributes need a rule"},
		{"unknown kind", "attributes:\n  - name: a\n    kind: virtual\n", `unknown kind "virtual"`},
		{"reserved name", "attributes:\n  - name: then\n", "reserved word"},
		{"duplicate", "attributes:\n  - name: a\n  - name: a\n", "duplicate attribute"},
		{"unknown field", "attributes:\n  - name: a\n    formula: 1\n", "YAML parsing failed"},
		{"bad yaml", "attributes: [", "YAML parsing failed"},
	}
	loader := NewLoader(nil, nil, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.LoadBytes([]byte(tt.content), "test.yaml")
			if err == nil {
				t.Fatal("LoadBytes() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestLoader_DuplicateAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.yaml", "attributes:\n  - name: a\n")
	writeFile(t, dir, "two.yaml", "attributes:\n  - name: a\n")

	_, err := NewLoader(nil, nil, nil, nil).LoadDir(dir)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("LoadDir() error = %v, want *ValidationError", err)
	}
	if !strings.Contains(verr.Message, "one.yaml") {
		t.Errorf("message = %q, want it to name the first file", verr.Message)
	}
}

func TestLoader_MissingPath(t *testing.T) {
	_, err := NewLoader(nil, nil, nil, nil).Load(filepath.Join(t.TempDir(), "absent"))
	var lerr *LoadError
	if !errors.As(err, &lerr) {
		t.Fatalf("Load() error = %v, want *LoadError", err)
	}
}

func TestLoader_RuleDiagnostics(t *testing.T) {
	content := "attributes:\n  - name: a\n  - name: b\n    rule: UPPR(a)\n  - name: c\n    rule: a +\n"

	c, err := NewLoader(nil, nil, nil, nil).LoadBytes([]byte(content), "rules.yaml")
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	var codes []string
	for _, d := range c.Diagnostics {
		codes = append(codes, d.Attribute+":"+string(d.Code))
	}
	if diff := cmp.Diff([]string{"b:unknown_function", "c:parse_error"}, codes); diff != "" {
		t.Errorf("Diagnostics mismatch (-want +got):\n%s", diff)
	}

	cfg := DefaultLoaderConfig()
	cfg.Strict = true
	_, err = NewLoader(cfg, nil, nil, nil).LoadBytes([]byte(content), "rules.yaml")
	var rerr *RuleError
	if !errors.As(err, &rerr) {
		t.Fatalf("strict LoadBytes() error = %v, want *RuleError", err)
	}
	if !diagnostics.HasErrors(rerr.Diagnostics) {
		t.Error("RuleError carries no error diagnostics")
	}
}

func TestNew(t *testing.T) {
	c, err := New(derive.NewReal("x", ast.TypeInteger), derive.NewDerived("y", ast.TypeInteger, "x + 1"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if _, err := New(derive.NewReal("x", ast.TypeAny), derive.NewReal("x", ast.TypeAny)); err == nil {
		t.Error("New() with duplicates error = nil, want error")
	}
}

func TestStore_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "attrs.yaml", sampleCatalog)
	store := NewStore(&FileSource{Loader: NewLoader(nil, nil, nil, nil), Path: path}, nil)

	if store.Current() != nil {
		t.Fatal("Current() before load != nil")
	}
	var notified int
	store.Subscribe(func(c *Catalog) { notified = c.Len() })

	if err := store.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if notified != 4 {
		t.Errorf("subscriber saw %d attributes, want 4", notified)
	}
	if _, ok := store.Get("band"); !ok {
		t.Error("Get(band) not found")
	}

	// A broken file keeps the previous catalog.
	writeFile(t, dir, "attrs.yaml", "attributes: [")
	if err := store.Reload(context.Background()); err == nil {
		t.Fatal("Reload() of broken file error = nil, want error")
	}
	if got := len(store.Attributes()); got != 4 {
		t.Errorf("Attributes() after failed reload = %d, want 4", got)
	}
	status := store.Status()
	if status.LastError == nil || status.Reloads != 2 || status.Attributes != 4 {
		t.Errorf("Status() = %+v", status)
	}
}

func TestWatchStore(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "attrs.yaml", "attributes:\n  - name: a\n")
	store := NewStore(&FileSource{Loader: NewLoader(nil, nil, nil, nil), Path: dir}, nil)
	if err := store.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	reloaded := make(chan int, 10)
	store.Subscribe(func(c *Catalog) { reloaded <- c.Len() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := DefaultWatcherConfig()
	cfg.Path = dir
	cfg.DebounceInterval = 20 * time.Millisecond
	done := make(chan error, 1)
	go func() { done <- WatchStore(ctx, store, cfg, nil) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, filepath.Base(path), "attributes:\n  - name: a\n  - name: b\n")

	select {
	case n := <-reloaded:
		if n != 2 {
			t.Errorf("reloaded catalog has %d attributes, want 2", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WatchStore() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("WatchStore did not return after cancel")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	cfg := DefaultWatcherConfig()
	cfg.Path = t.TempDir()
	w, err := NewWatcher(cfg, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- w.Watch(context.Background(), func() error { return nil }) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		w.mu.Lock()
		running := w.running
		w.mu.Unlock()
		if running {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = w.Stop()
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("Stop() call %d error = %v", i, err)
		}
	}
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() after return error = %v", err)
	}
}

func TestDebouncer(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	calls := make(chan int, 10)
	for i := 1; i <= 5; i++ {
		n := i
		d.Trigger(func() { calls <- n })
	}
	select {
	case n := <-calls:
		if n != 5 {
			t.Errorf("callback = %d, want last trigger 5", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("debounced callback never ran")
	}
	select {
	case n := <-calls:
		t.Errorf("extra callback %d", n)
	case <-time.After(100 * time.Millisecond):
	}

	d.Stop()
	d.Trigger(func() { calls <- 99 })
	select {
	case <-calls:
		t.Error("callback ran after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}
