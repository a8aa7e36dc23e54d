// Package lookup provides the reference tables behind the LOOKUP function.
//
// Every provider implements eval.LookupProvider. A lookup that finds no row
// reports found=false and no error; errors are reserved for storage
// failures, which the evaluator surfaces as lookup_failed rather than as a
// missing value.
//
// Providers:
//
//   - MemoryProvider: in-process tables, optionally loaded from YAML
//   - SQLiteProvider: a lookup_entries table in a SQLite database
//   - BoltProvider: one bbolt bucket per table
//   - CachingProvider: a read-through cache in front of any of the above
package lookup
