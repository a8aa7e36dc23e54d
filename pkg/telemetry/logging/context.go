package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	RunIDKey     contextKey = "run_id"
	SubjectIDKey contextKey = "subject_id"
	AttributeKey contextKey = "attribute"
)

// WithRunID adds a derivation run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRunID retrieves the run ID from the context.
func GetRunID(ctx context.Context) string {
	v, _ := ctx.Value(RunIDKey).(string)
	return v
}

// WithSubjectID adds the subject (customer, account, instrument) being derived for.
func WithSubjectID(ctx context.Context, subjectID string) context.Context {
	return context.WithValue(ctx, SubjectIDKey, subjectID)
}

// GetSubjectID retrieves the subject ID from the context.
func GetSubjectID(ctx context.Context) string {
	v, _ := ctx.Value(SubjectIDKey).(string)
	return v
}

// WithAttribute adds the attribute being evaluated to the context.
func WithAttribute(ctx context.Context, attribute string) context.Context {
	return context.WithValue(ctx, AttributeKey, attribute)
}

// GetAttribute retrieves the attribute name from the context.
func GetAttribute(ctx context.Context) string {
	v, _ := ctx.Value(AttributeKey).(string)
	return v
}

func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	if v := GetRunID(ctx); v != "" {
		attrs = append(attrs, slog.String(string(RunIDKey), v))
	}
	if v := GetSubjectID(ctx); v != "" {
		attrs = append(attrs, slog.String(string(SubjectIDKey), v))
	}
	if v := GetAttribute(ctx); v != "" {
		attrs = append(attrs, slog.String(string(AttributeKey), v))
	}
	return attrs
}

// FromContext returns logger with the context fields of ctx attached.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	attrs := contextAttrs(ctx)
	if len(attrs) == 0 {
		return logger
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return logger.With(args...)
}
