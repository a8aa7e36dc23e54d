// Package config loads Meridian configuration.
//
// Configuration comes from a YAML file decoded over NewDefaultConfig, with
// environment overrides named MERIDIAN_SECTION_FIELD applied on top:
//
//   - MERIDIAN_CATALOG_PATH overrides catalog.path
//   - MERIDIAN_LOOKUP_DRIVER overrides lookup.driver
//   - MERIDIAN_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Validation collects every problem into a single ValidationError:
//
//	configuration validation failed with 2 errors:
//	  - catalog.source: invalid source "s3": must be 'file' or 'git'
//	  - telemetry.logging: unknown log level: loud
//
// A minimal file:
//
//	engine:
//	  lookup_miss: "null"
//	catalog:
//	  path: ./catalog
//	  watch: true
//	lookup:
//	  driver: sqlite
//	  path: data/lookups.db
//	  cache_size: 10000
//	audit:
//	  enabled: true
//	  sqlite:
//	    path: data/audit.db
//	telemetry:
//	  logging:
//	    level: debug
//	    format: console
//
// The CLI uses the Initialize/GetConfig singleton. Library packages take
// their own configuration structs, which the section types embed or convert to.
package config
