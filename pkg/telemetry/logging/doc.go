// Package logging builds the process logger.
//
// New returns a *slog.Logger whose handler adds derivation context fields
// (run_id, subject_id, attribute) taken from the context passed to the
// *Context logging methods, and optionally masks personal data such as tax
// identifiers or card numbers in log values.
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json", RedactPII: true})
//	if err != nil {
//		return err
//	}
//	ctx = logging.WithRunID(ctx, runID)
//	logger.InfoContext(ctx, "derivation finished", "resolved", 12)
package logging
