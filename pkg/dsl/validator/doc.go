// Package validator performs static checks on rules: unknown functions,
// wrong argument counts, references to undefined attributes and reads of
// undeclared dependencies. It reports diagnostics and never evaluates.
package validator
