// Package diagnostics translates parse, evaluation and derivation errors into
// position-aware Diagnostic values for editors and terminals.
//
// The package only translates. It never parses or evaluates rules itself.
package diagnostics
