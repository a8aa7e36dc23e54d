// Package metrics exposes Prometheus metrics for derivation runs.
//
// A Collector implements both derive.Observer and eval.CacheObserver, so one
// instance can be handed to the engine, the evaluator's pattern cache and a
// caching lookup provider:
//
//	collector := metrics.NewCollector(cfg, nil)
//	engine.WithObserver(collector).WithCacheObserver(collector)
//	http.Handle(cfg.Path, collector.Handler())
//
// Metrics (with the default namespace and subsystem):
//
//   - meridian_engine_runs_total
//   - meridian_engine_run_duration_seconds
//   - meridian_engine_attributes_total{attribute,state,error_kind}
//   - meridian_engine_cache_hits_total{cache}, cache_misses_total, cache_entries
//   - meridian_engine_catalog_reloads_total{result}, catalog_attributes
//
// Per-attribute label sets are capped by a CardinalityLimiter; attributes
// beyond the cap are reported as "other".
package metrics
