package audit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/meridian/pkg/dsl/ast"
	"mercator-hq/meridian/pkg/rules/derive"
	"mercator-hq/meridian/pkg/rules/eval"
)

var baseTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func sampleResult() *derive.Result {
	return &derive.Result{
		Requested: []string{"risk_band", "score"},
		Evaluated: []string{"score"},
		Duration:  3 * time.Millisecond,
		Outcomes: map[string]*derive.Outcome{
			"score": {Attribute: "score", State: derive.StateResolved, Value: ast.Int(720)},
			"risk_band": {
				Attribute: "risk_band",
				State:     derive.StateFailed,
				Err:       &derive.DerivationError{Kind: derive.KindMissingInput, Attribute: "risk_band", Input: "income"},
			},
		},
	}
}

func newTestRecorder(storage Storage, recordFacts bool) *Recorder {
	r := NewRecorder(storage, recordFacts, nil)
	n := 0
	r.newID = func() string {
		n++
		return fmt.Sprintf("rec-%d", n)
	}
	r.now = func() time.Time { return baseTime }
	return r
}

func TestRecorder_Build(t *testing.T) {
	facts := eval.NewFacts(map[string]ast.Value{"country": ast.String("US"), "age": ast.Int(41)})
	rec := newTestRecorder(NewMemoryStorage(), true).Build("cust-1", sampleResult(), facts)

	want := &Record{
		ID:        "rec-1",
		SubjectID: "cust-1",
		StartedAt: baseTime.Add(-3 * time.Millisecond),
		Duration:  3 * time.Millisecond,
		Requested: []string{"risk_band", "score"},
		Evaluated: []string{"score"},
		Outcomes: []Outcome{
			{
				Attribute: "risk_band",
				State:     "failed",
				Value:     ast.Null(),
				ErrorKind: "missing_input",
				Error:     `attribute "risk_band": missing input "income"`,
			},
			{Attribute: "score", State: "resolved", Value: ast.Int(720)},
		},
		Facts: map[string]ast.Value{"country": ast.String("US"), "age": ast.Int(41)},
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("Build() mismatch (-want +got):\n%s", diff)
	}
	if got := rec.Failed(); got != 1 {
		t.Errorf("Failed() = %d, want 1", got)
	}
	if o, ok := rec.Outcome("score"); !ok || !o.Value.Equal(ast.Int(720)) {
		t.Errorf("Outcome(score) = %v, %v", o, ok)
	}
	if _, ok := rec.Outcome("missing"); ok {
		t.Error("Outcome(missing) found, want not found")
	}
}

func TestRecorder_WithoutFacts(t *testing.T) {
	facts := eval.NewFacts(map[string]ast.Value{"country": ast.String("US")})
	rec := newTestRecorder(NewMemoryStorage(), false).Build("", sampleResult(), facts)
	if rec.Facts != nil {
		t.Errorf("Facts = %v, want nil", rec.Facts)
	}
}

func TestRecorder_Record(t *testing.T) {
	storage := NewMemoryStorage()
	r := newTestRecorder(storage, true)

	rec, err := r.Record(context.Background(), "cust-1", sampleResult(), nil)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	got, err := storage.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("stored record mismatch (-want +got):\n%s", diff)
	}

	if _, err := r.Record(context.Background(), "cust-1", nil, nil); err == nil {
		t.Error("Record(nil) error = nil, want error")
	}
}

type failingStorage struct{ *MemoryStorage }

func (failingStorage) Store(context.Context, *Record) error { return errors.New("disk full") }

func TestRecorder_StoreFailure(t *testing.T) {
	r := newTestRecorder(failingStorage{NewMemoryStorage()}, true)
	_, err := r.Record(context.Background(), "cust-1", sampleResult(), nil)
	if err == nil {
		t.Fatal("Record() error = nil, want error")
	}
}

// checkStorage runs the behaviour every backend shares.
func checkStorage(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	records := []*Record{
		{
			ID: "a", SubjectID: "cust-1", StartedAt: baseTime, Duration: time.Millisecond,
			Requested: []string{"score"},
			Outcomes:  []Outcome{{Attribute: "score", State: "resolved", Value: ast.Float(1.5)}},
			Facts:     map[string]ast.Value{"tags": ast.List(ast.String("x"), ast.Int(2))},
		},
		{
			ID: "b", SubjectID: "cust-2", StartedAt: baseTime.Add(time.Hour), Duration: 2 * time.Millisecond,
			Requested: []string{"band"},
			Evaluated: []string{"band"},
			Outcomes: []Outcome{{
				Attribute: "band", State: "failed", Value: ast.Null(),
				ErrorKind: "propagated_eval_error", Error: "division by zero",
			}},
		},
		{
			ID: "c", SubjectID: "cust-1", StartedAt: baseTime.Add(2 * time.Hour),
			Requested: []string{"ok"},
			Outcomes:  []Outcome{{Attribute: "ok", State: "resolved", Value: ast.Bool(true)}},
		},
	}
	for _, r := range records {
		if err := s.Store(ctx, r); err != nil {
			t.Fatalf("Store(%s) error = %v", r.ID, err)
		}
	}

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get(a) error = %v", err)
	}
	if diff := cmp.Diff(records[0], got); diff != "" {
		t.Errorf("Get(a) mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.Get(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(zzz) error = %v, want ErrNotFound", err)
	}

	since := baseTime.Add(30 * time.Minute)
	until := baseTime.Add(90 * time.Minute)
	tests := []struct {
		name  string
		query *Query
		want  []string
	}{
		{"all newest first", nil, []string{"c", "b", "a"}},
		{"by subject", &Query{SubjectID: "cust-1"}, []string{"c", "a"}},
		{"since", &Query{Since: &since}, []string{"c", "b"}},
		{"window", &Query{Since: &since, Until: &until}, []string{"b"}},
		{"failed only", &Query{FailedOnly: true}, []string{"b"}},
		{"limit", &Query{Limit: 2}, []string{"c", "b"}},
		{"offset", &Query{Offset: 1}, []string{"b", "a"}},
		{"limit and offset", &Query{Limit: 1, Offset: 1}, []string{"b"}},
		{"offset past end", &Query{Offset: 10}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := s.List(ctx, tt.query)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			ids := []string{}
			for _, r := range recs {
				ids = append(ids, r.ID)
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("List() ids mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := s.List(ctx, &Query{Limit: -1}); err == nil {
		t.Error("List(limit -1) error = nil, want error")
	}

	replaced := *records[2]
	replaced.SubjectID = "cust-3"
	if err := s.Store(ctx, &replaced); err != nil {
		t.Fatalf("Store(replace) error = %v", err)
	}
	if got, _ := s.Get(ctx, "c"); got == nil || got.SubjectID != "cust-3" {
		t.Errorf("replaced record = %+v, want subject cust-3", got)
	}

	deleted, err := s.Prune(ctx, baseTime.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("Prune() = %d, want 2", deleted)
	}
	left, _ := s.List(ctx, nil)
	if len(left) != 1 || left[0].ID != "c" {
		t.Errorf("after Prune() got %d records, want only c", len(left))
	}
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	defer s.Close()
	checkStorage(t, s)
}

func TestSQLiteStorage(t *testing.T) {
	s, err := NewSQLiteStorage(&SQLiteConfig{
		Path:         filepath.Join(t.TempDir(), "audit.db"),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	defer s.Close()
	checkStorage(t, s)
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	cfg := &SQLiteConfig{Path: path, WALMode: true, BusyTimeout: time.Second}

	s, err := NewSQLiteStorage(cfg, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	rec := newTestRecorder(s, true).Build("cust-9", sampleResult(), nil)
	if err := s.Store(context.Background(), rec); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	s.Close()

	s, err = NewSQLiteStorage(cfg, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	got, err := s.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("reopened record mismatch (-want +got):\n%s", diff)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"disabled ignores backend", func(c *Config) { c.Backend = "tape" }, false},
		{"memory", func(c *Config) { c.Enabled = true; c.Backend = "memory" }, false},
		{"sqlite", func(c *Config) { c.Enabled = true }, false},
		{"sqlite without path", func(c *Config) { c.Enabled = true; c.SQLite.Path = "" }, true},
		{"unknown backend", func(c *Config) { c.Enabled = true; c.Backend = "tape" }, true},
		{"negative retention", func(c *Config) { c.Enabled = true; c.Retention.RetentionDays = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Backend = "memory"
	s, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	if _, ok := s.(*MemoryStorage); !ok {
		t.Errorf("Open(memory) = %T, want *MemoryStorage", s)
	}

	cfg.Backend = "sqlite"
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "a.db")
	s, err = Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open(sqlite) error = %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStorage); !ok {
		t.Errorf("Open(sqlite) = %T, want *SQLiteStorage", s)
	}
}

func TestScheduler_Prune(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	for i, age := range []int{1, 10, 40, 100} {
		rec := &Record{ID: fmt.Sprintf("r%d", i), StartedAt: baseTime.AddDate(0, 0, -age)}
		if err := storage.Store(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	s := NewScheduler(storage, RetentionConfig{RetentionDays: 30}, nil)
	s.now = func() time.Time { return baseTime }

	deleted, err := s.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("Prune() = %d, want 2", deleted)
	}
	if storage.Len() != 2 {
		t.Errorf("Len() = %d, want 2", storage.Len())
	}

	unlimited := NewScheduler(storage, RetentionConfig{}, nil)
	if n, err := unlimited.Prune(ctx); err != nil || n != 0 {
		t.Errorf("Prune() with unlimited retention = %d, %v; want 0, nil", n, err)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewScheduler(NewMemoryStorage(), RetentionConfig{RetentionDays: 7, Schedule: "0 3 * * *"}, nil)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !s.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	if s.NextRun() == nil {
		t.Error("NextRun() = nil after Start")
	}
	s.Stop()
	if s.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestScheduler_StartDisabledOrInvalid(t *testing.T) {
	ctx := context.Background()

	disabled := NewScheduler(NewMemoryStorage(), RetentionConfig{RetentionDays: 7}, nil)
	if err := disabled.Start(ctx); err != nil {
		t.Fatalf("Start() without schedule error = %v", err)
	}
	if disabled.IsRunning() {
		t.Error("IsRunning() = true without schedule")
	}
	if disabled.NextRun() != nil {
		t.Error("NextRun() != nil without schedule")
	}

	invalid := NewScheduler(NewMemoryStorage(), RetentionConfig{RetentionDays: 7, Schedule: "every day"}, nil)
	if err := invalid.Start(ctx); err == nil {
		t.Error("Start() with invalid schedule error = nil, want error")
	}
}
