package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"mercator-hq/meridian/pkg/dsl/ast"
	"mercator-hq/meridian/pkg/rules/derive"
	"mercator-hq/meridian/pkg/rules/eval"
)

// Recorder builds records from derivation results and stores them.
type Recorder struct {
	storage Storage

	// recordFacts copies the input facts into each record.
	recordFacts bool

	logger *slog.Logger

	// newID and now are replaced in tests.
	newID func() string
	now   func() time.Time
}

// NewRecorder creates a recorder writing to storage. When recordFacts is
// false the input facts are left out of each record.
func NewRecorder(storage Storage, recordFacts bool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		storage:     storage,
		recordFacts: recordFacts,
		logger:      logger.With("component", "audit.recorder"),
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

// Build converts a finished run into a record without storing it. facts is
// the input the run started from and may be nil.
func (r *Recorder) Build(subjectID string, result *derive.Result, facts *eval.Facts) *Record {
	rec := &Record{
		ID:        r.newID(),
		SubjectID: subjectID,
		StartedAt: r.now().Add(-result.Duration).UTC(),
		Duration:  result.Duration,
		Requested: append([]string(nil), result.Requested...),
		Evaluated: append([]string(nil), result.Evaluated...),
		Outcomes:  make([]Outcome, 0, len(result.Outcomes)),
	}

	names := make([]string, 0, len(result.Outcomes))
	for name := range result.Outcomes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		o := result.Outcomes[name]
		out := Outcome{Attribute: name, State: o.State.String(), Value: o.Value}
		if o.Err != nil {
			out.Value = ast.Null()
			out.ErrorKind = string(o.Err.Kind)
			out.Error = o.Err.Error()
		}
		rec.Outcomes = append(rec.Outcomes, out)
	}

	if r.recordFacts && facts != nil {
		rec.Facts = facts.Snapshot()
	}
	return rec
}

// Record builds and stores a record for a finished run.
func (r *Recorder) Record(ctx context.Context, subjectID string, result *derive.Result, facts *eval.Facts) (*Record, error) {
	if result == nil {
		return nil, fmt.Errorf("audit: nil result")
	}
	rec := r.Build(subjectID, result, facts)
	if err := r.storage.Store(ctx, rec); err != nil {
		r.logger.Error("failed to store audit record",
			"record_id", rec.ID,
			"subject_id", subjectID,
			"error", err,
		)
		return nil, fmt.Errorf("store audit record %s: %w", rec.ID, err)
	}

	r.logger.Debug("audit record stored",
		"record_id", rec.ID,
		"subject_id", subjectID,
		"outcomes", len(rec.Outcomes),
		"failed", rec.Failed(),
	)
	return rec, nil
}
