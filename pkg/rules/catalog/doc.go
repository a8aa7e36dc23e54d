// Package catalog loads attribute metadata from YAML and keeps it current.
//
// A catalog file lists attributes:
//
//	attributes:
//	  - name: income
//	    type: float
//	  - name: debt_to_income
//	    type: float
//	    rule: debt / income
//	    dependencies: [debt, income]
//
// The kind of an attribute is real unless it has a rule. Attribute names must
// be unique across every file of a catalog. Rules are parsed and linted on
// load; in strict mode a rule with errors rejects the whole catalog.
//
// A Store holds the current Catalog and swaps it atomically on Reload. The
// Watcher reloads a store when catalog files change on disk.
package catalog
