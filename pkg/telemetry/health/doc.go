// Package health serves liveness, readiness and version endpoints for
// long-running meridian processes.
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("catalog", health.CatalogCheck(store))
//	mux := http.NewServeMux()
//	health.Register(mux, checker, version, commit, buildDate)
//
// /health answers 200 while the process runs. /ready answers 503 until the
// catalog has loaded and whenever its last reload failed.
package health
