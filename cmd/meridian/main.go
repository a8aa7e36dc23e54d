// Meridian evaluates computed business attributes defined in a small rule
// language.
//
// A catalog declares real attributes (supplied as facts) and derived
// attributes (computed by rules such as `IF income > 0 THEN debt / income`).
// The meridian command evaluates single expressions, derives attributes for
// one or many subjects, lints catalogs and runs rule test suites.
//
// Usage:
//
//	# Evaluate an expression against facts
//	meridian eval 'UPPER(country) IN ["DE", "FR"]' --set country=de
//
//	# Derive every derived attribute for the subjects in a facts file
//	meridian derive --catalog catalog/ --facts customers.yaml
//
//	# Lint a catalog
//	meridian lint catalog/
//
//	# Run rule tests
//	meridian test tests/risk_test.yaml
//
//	# Keep a catalog loaded, reload on change and serve metrics
//	meridian watch --config meridian.yaml
//
//	# Search the function library
//	meridian functions lei
package main

import "os"

func main() {
	os.Exit(Execute())
}
