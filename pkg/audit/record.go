package audit

import (
	"errors"
	"fmt"
	"time"

	"mercator-hq/meridian/pkg/dsl/ast"
)

// ErrNotFound is returned by Get when no record has the requested ID.
var ErrNotFound = errors.New("audit record not found")

// Record is one retained derivation run.
type Record struct {
	// ID is a random UUID assigned when the record is built.
	ID string `json:"id"`

	// SubjectID identifies whose facts were derived, when the caller gave one.
	SubjectID string `json:"subject_id,omitempty"`

	// StartedAt is when the derivation began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the wall time of the derivation.
	Duration time.Duration `json:"duration"`

	// Requested lists the attribute names the caller asked for.
	Requested []string `json:"requested"`

	// Evaluated lists derived attributes in the order they were computed.
	Evaluated []string `json:"evaluated,omitempty"`

	// Outcomes holds one entry per requested attribute, sorted by name.
	Outcomes []Outcome `json:"outcomes"`

	// Facts is a snapshot of the inputs. It is only kept when the recorder
	// was created with recordFacts.
	Facts map[string]ast.Value `json:"facts,omitempty"`
}

// Outcome is the retained result for one attribute.
type Outcome struct {
	Attribute string `json:"attribute"`

	// State is "resolved" or "failed".
	State string `json:"state"`

	// Value is the derived value. It is null for failures.
	Value ast.Value `json:"value"`

	// ErrorKind is the derivation error kind for failures.
	ErrorKind string `json:"error_kind,omitempty"`

	// Error is the rendered failure message.
	Error string `json:"error,omitempty"`
}

// Failed returns the number of failed outcomes.
func (r *Record) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.ErrorKind != "" {
			n++
		}
	}
	return n
}

// Outcome returns the outcome for attribute, if retained.
func (r *Record) Outcome(attribute string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Attribute == attribute {
			return o, true
		}
	}
	return Outcome{}, false
}

// Query filters records returned by List. Zero fields match everything.
type Query struct {
	// SubjectID restricts results to one subject when set.
	SubjectID string

	// Since is the inclusive lower bound on StartedAt.
	Since *time.Time

	// Until is the exclusive upper bound on StartedAt.
	Until *time.Time

	// FailedOnly keeps records with at least one failed outcome.
	FailedOnly bool

	// Limit caps the number of records returned. Zero means no cap.
	Limit int

	// Offset skips that many matching records, newest first.
	Offset int
}

// Validate checks the query bounds.
func (q *Query) Validate() error {
	if q.Limit < 0 {
		return fmt.Errorf("limit must be non-negative, got %d", q.Limit)
	}
	if q.Offset < 0 {
		return fmt.Errorf("offset must be non-negative, got %d", q.Offset)
	}
	if q.Since != nil && q.Until != nil && !q.Since.Before(*q.Until) {
		return fmt.Errorf("since (%s) must be before until (%s)", q.Since.Format(time.RFC3339), q.Until.Format(time.RFC3339))
	}
	return nil
}

func (q *Query) matches(r *Record) bool {
	if q.SubjectID != "" && r.SubjectID != q.SubjectID {
		return false
	}
	if q.Since != nil && r.StartedAt.Before(*q.Since) {
		return false
	}
	if q.Until != nil && !r.StartedAt.Before(*q.Until) {
		return false
	}
	if q.FailedOnly && r.Failed() == 0 {
		return false
	}
	return true
}

// StorageError reports a failed storage operation.
type StorageError struct {
	Backend   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("audit storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

func newStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}
