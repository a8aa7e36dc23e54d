package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/meridian/pkg/audit"
	"mercator-hq/meridian/pkg/cli"
	"mercator-hq/meridian/pkg/dsl/diagnostics"
	"mercator-hq/meridian/pkg/rules/catalog"
	"mercator-hq/meridian/pkg/rules/catalog/gitsource"
	"mercator-hq/meridian/pkg/server"
	"mercator-hq/meridian/pkg/telemetry/health"
	"mercator-hq/meridian/pkg/telemetry/metrics"
)

var watchFlags struct {
	catalog   string
	factsFile string
	listen    string
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep a catalog loaded and reload it on change",
	Long: `Load the catalog, reload it whenever it changes and serve metrics and
health endpoints until interrupted.

File catalogs are watched for changes. Git catalogs (catalog.source: git) are
pulled every catalog.git.poll_interval. A failed reload keeps the previous
catalog and marks /ready as degraded.

With --facts, the subjects in the facts file are derived again after every
successful reload, which makes watch a tight edit-and-check loop for rule
authors. When audit is enabled those runs are recorded and old records are
pruned on the audit.retention.schedule.

Endpoints (on telemetry.metrics.listen_address or --listen):
  /v1/derive POST {"subject", "facts", "attributes"} to derive one subject
  /metrics   Prometheus metrics
  /health    liveness
  /ready     readiness (catalog loaded, last reload succeeded, audit reachable)
  /version   build information

Examples:
  meridian watch --catalog catalog/ --facts fixtures/customers.yaml
  meridian watch --config meridian.yaml --listen 127.0.0.1:9464`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchFlags.catalog, "catalog", "", "catalog file or directory (default: catalog.path, or the git source)")
	watchCmd.Flags().StringVarP(&watchFlags.factsFile, "facts", "f", "", "facts file to derive after every reload")
	watchCmd.Flags().StringVarP(&watchFlags.listen, "listen", "l", "", "override the metrics and health listen address")
}

// observedSource reports every catalog load to the metrics collector.
type observedSource struct {
	catalog.Source
	metrics *metrics.Collector
}

func (s observedSource) Load(ctx context.Context) (*catalog.Catalog, error) {
	c, err := s.Source.Load(ctx)
	n := 0
	if c != nil {
		n = c.Len()
	}
	s.metrics.RecordCatalogReload(err, n)
	return c, err
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{metrics: true})
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := cli.SetupSignalHandler(commandContext(cmd))
	defer stop()

	var subjects []subject
	if watchFlags.factsFile != "" {
		if subjects, err = readSubjects(watchFlags.factsFile, ""); err != nil {
			return cli.NewCommandError("watch", err)
		}
	}

	source, poll, err := watchSource(a)
	if err != nil {
		return err
	}
	store := catalog.NewStore(observedSource{Source: source, metrics: a.metrics}, a.logger)

	checker := health.New(2 * time.Second)
	checker.RegisterCheck("catalog", health.CatalogCheck(store))

	var recorder *audit.Recorder
	if a.cfg.Audit.Enabled {
		storage, err := audit.Open(&a.cfg.Audit, a.logger)
		if err != nil {
			return cli.NewConfigError("audit", err.Error())
		}
		defer storage.Close()
		recorder = audit.NewRecorder(storage, a.cfg.Audit.RecordFacts, a.logger)
		checker.RegisterCheck("audit", health.AuditCheck(storage))

		scheduler := audit.NewScheduler(storage, a.cfg.Audit.Retention, a.logger)
		if err := scheduler.Start(ctx); err != nil {
			a.logger.Warn("failed to start retention scheduler", "error", err)
		} else {
			defer scheduler.Stop()
			if next := scheduler.NextRun(); next != nil {
				a.logger.Debug("audit retention scheduler started", "next_run", next)
			}
		}
	}

	out := cmd.OutOrStdout()
	store.Subscribe(func(c *catalog.Catalog) {
		a.engine.ResetCache()
		if n := len(c.Diagnostics); n > 0 {
			a.logger.Warn("catalog has rule diagnostics",
				"errors", diagnostics.Count(c.Diagnostics, diagnostics.SeverityError),
				"warnings", diagnostics.Count(c.Diagnostics, diagnostics.SeverityWarning),
			)
			writeDiagnostics(cmd.ErrOrStderr(), c.Diagnostics, ruleSource(c))
		}
		if len(subjects) == 0 || len(c.Derived()) == 0 {
			return
		}
		result, err := deriveSubjects(cmd, a, c, subjects, c.Derived(), recorder)
		if err != nil {
			a.logger.Error("derivation after reload failed", "error", err)
			return
		}
		fmt.Fprintf(out, "%s\n\n", result)
	})

	if err := store.Reload(ctx); err != nil {
		// Keep running: the watcher picks up the fix and /ready reports the failure.
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	}

	errChan := make(chan error, 2)
	go func() {
		if err := poll(ctx, store); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("catalog watch: %w", err)
		}
	}()

	srvDone := make(chan struct{})
	if srv := newServer(a, store, checker, recorder); srv != nil {
		go func() {
			defer close(srvDone)
			if err := srv.Start(ctx); err != nil {
				errChan <- err
			}
		}()
	} else {
		close(srvDone)
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
		<-srvDone
		return nil
	case err := <-errChan:
		stop()
		<-srvDone
		return cli.NewCommandError("watch", err)
	}
}

// watchSource returns the catalog source and the loop that keeps it fresh.
func watchSource(a *app) (catalog.Source, func(context.Context, *catalog.Store) error, error) {
	cc := a.cfg.Catalog
	if cc.Source == "git" && watchFlags.catalog == "" {
		gitCfg := cc.Git
		repo, err := gitsource.NewRepository(&gitCfg)
		if err != nil {
			return nil, nil, cli.NewConfigError("catalog.git", err.Error())
		}
		src := gitsource.NewSource(repo, a.loader(), a.logger)
		return src, src.Poll, nil
	}

	path := a.catalogPath(watchFlags.catalog)
	wc := cc.WatcherConfig()
	wc.Path = path
	src := &catalog.FileSource{Loader: a.loader(), Path: path}
	return src, func(ctx context.Context, store *catalog.Store) error {
		return catalog.WatchStore(ctx, store, wc, a.logger)
	}, nil
}

// newServer builds the HTTP server for metrics, health and derivation
// requests. It returns nil when metrics are disabled and --listen is not given.
func newServer(a *app, store *catalog.Store, checker *health.Checker, recorder *audit.Recorder) *server.Server {
	mc := a.cfg.Telemetry.Metrics
	sc := a.cfg.Server
	sc.ListenAddress = mc.ListenAddress
	if watchFlags.listen != "" {
		sc.ListenAddress = watchFlags.listen
	} else if !mc.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	if mc.Enabled {
		mux.Handle(mc.Path, a.metrics.Handler())
	}
	health.Register(mux, checker, Version, GitCommit, BuildDate)
	if sc.EnableDerive {
		h := server.NewDeriveHandler(store, a.engine, a.logger).
			WithRecorder(recorder).
			WithTimeout(a.cfg.Engine.Timeout)
		mux.Handle("/v1/derive", h)
	}
	return server.NewServer(sc, mux, a.logger)
}
