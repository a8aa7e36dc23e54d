package gitsource

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"mercator-hq/meridian/pkg/rules/catalog"
)

// Source loads a catalog from a git clone. The first Load clones the
// repository; later loads read the working tree as it is. Poll keeps the
// working tree current.
type Source struct {
	repo   *Repository
	loader *catalog.Loader
	logger *slog.Logger
}

// NewSource creates a git-backed catalog source.
func NewSource(repo *Repository, loader *catalog.Loader, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{repo: repo, loader: loader, logger: logger.With("component", "catalog_git")}
}

// Load implements catalog.Source.
func (s *Source) Load(ctx context.Context) (*catalog.Catalog, error) {
	if !s.repo.Cloned() {
		if err := s.repo.Clone(ctx); err != nil {
			return nil, err
		}
		if head, err := s.repo.Head(); err == nil {
			s.logger.Info("catalog repository cloned",
				"repository", s.repo.config.Repository,
				"branch", s.repo.config.Branch,
				"commit", head.SHA,
			)
		}
	}
	return s.loader.Load(s.repo.CatalogPath())
}

func (s *Source) String() string {
	return fmt.Sprintf("git:%s@%s/%s", s.repo.config.Repository, s.repo.config.Branch, s.repo.config.Path)
}

// Poll pulls the repository every PollInterval and reloads store when a
// catalog file changed. It blocks until ctx is cancelled.
func (s *Source) Poll(ctx context.Context, store *catalog.Store) error {
	ticker := time.NewTicker(s.repo.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sync(ctx, store); err != nil {
				s.logger.Error("catalog repository sync failed", "error", err)
			}
		}
	}
}

// Sync pulls once and reloads store if catalog files changed. It reports
// whether a reload happened.
func (s *Source) Sync(ctx context.Context, store *catalog.Store) (bool, error) {
	result, err := s.repo.Pull(ctx)
	if err != nil {
		return false, err
	}
	if !result.HadChanges() {
		return false, nil
	}
	if !s.touchesCatalog(result.ChangedFiles) {
		s.logger.Debug("repository changed outside the catalog", "commit", result.ToSHA)
		return false, nil
	}
	s.logger.Info("catalog repository changed",
		"from", result.FromSHA,
		"to", result.ToSHA,
		"files", len(result.ChangedFiles),
	)
	return true, store.Reload(ctx)
}

func (s *Source) touchesCatalog(files []string) bool {
	prefix := filepath.ToSlash(filepath.Clean(s.repo.config.Path))
	for _, f := range files {
		if prefix != "." && prefix != "" && !strings.HasPrefix(f, prefix+"/") {
			continue
		}
		switch strings.ToLower(filepath.Ext(f)) {
		case ".yaml", ".yml":
			return true
		}
	}
	return false
}
