package gitsource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Config describes the repository holding catalog files.
type Config struct {
	// Repository is the remote URL or a local path.
	Repository string `yaml:"repository"`
	// Branch to track (default: main).
	Branch string `yaml:"branch"`
	// Path is the catalog directory inside the repository.
	Path string `yaml:"path"`
	// LocalPath is where the clone lives (default: a directory under os.TempDir).
	LocalPath string `yaml:"local_path"`
	// Depth limits the clone history; zero clones everything.
	Depth int `yaml:"depth"`
	// CleanOnStart removes an existing clone before cloning.
	CleanOnStart bool `yaml:"clean_on_start"`
	// Timeout bounds each clone or pull (default: 30s).
	Timeout time.Duration `yaml:"timeout"`
	// PollInterval is how often Poll fetches (default: 1m).
	PollInterval time.Duration `yaml:"poll_interval"`

	Auth AuthConfig `yaml:"auth"`
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.Repository == "" {
		return fmt.Errorf("repository URL cannot be empty")
	}
	if c.Branch == "" {
		c.Branch = "main"
	}
	if c.LocalPath == "" {
		c.LocalPath = filepath.Join(os.TempDir(), "meridian-catalog")
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	if c.Depth < 0 {
		return fmt.Errorf("depth must be non-negative, got %d", c.Depth)
	}
	return nil
}

// CommitInfo describes a commit.
type CommitInfo struct {
	// SHA is the full commit hash.
	SHA string `json:"sha"`

	// Author is the author name.
	Author string `json:"author"`

	Timestamp time.Time `json:"timestamp"`

	// Message is the full commit message.
	Message string `json:"message"`
}

// PullResult describes the effect of one pull.
type PullResult struct {
	FromSHA      string
	ToSHA        string
	ChangedFiles []string
}

// HadChanges reports whether HEAD moved.
func (r *PullResult) HadChanges() bool { return r.FromSHA != r.ToSHA }

// Metrics counts repository operations.
type Metrics struct {
	CloneDuration   time.Duration
	LastPullTime    time.Time
	LastCommitSHA   string
	SuccessfulPulls int64
	FailedPulls     int64
}

// Repository is a local clone of the catalog repository.
type Repository struct {
	config  *Config
	auth    AuthProvider
	mu      sync.RWMutex
	repo    *gogit.Repository
	metrics Metrics
}

// NewRepository validates cfg and prepares a repository. Nothing is fetched
// until Clone.
func NewRepository(cfg *Config) (*Repository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	auth, err := NewAuthProvider(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth provider: %w", err)
	}
	return &Repository{config: cfg, auth: auth}, nil
}

// Clone clones the repository, or opens an existing clone at LocalPath.
func (r *Repository) Clone(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cloneLocked(ctx)
}

func (r *Repository) cloneLocked(ctx context.Context) error {
	start := time.Now()
	defer func() { r.metrics.CloneDuration = time.Since(start) }()

	if r.config.CleanOnStart {
		if err := os.RemoveAll(r.config.LocalPath); err != nil {
			return fmt.Errorf("failed to clean existing clone: %w", err)
		}
	}

	if _, err := os.Stat(filepath.Join(r.config.LocalPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(r.config.LocalPath)
		if err != nil {
			return fmt.Errorf("failed to open existing clone: %w", err)
		}
		r.repo = repo
		return nil
	}

	if err := os.MkdirAll(r.config.LocalPath, 0o755); err != nil {
		return fmt.Errorf("failed to create clone directory: %w", err)
	}
	auth, err := r.auth.Auth()
	if err != nil {
		return fmt.Errorf("failed to get auth: %w", err)
	}

	cloneCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()
	repo, err := gogit.PlainCloneContext(cloneCtx, r.config.LocalPath, false, &gogit.CloneOptions{
		URL:           r.config.Repository,
		ReferenceName: plumbing.NewBranchReferenceName(r.config.Branch),
		SingleBranch:  r.config.Depth > 0,
		Depth:         r.config.Depth,
		Auth:          auth,
	})
	if err != nil {
		return fmt.Errorf("failed to clone %s: %w", r.config.Repository, err)
	}
	r.repo = repo
	return nil
}

// Cloned reports whether the repository has been cloned or opened.
func (r *Repository) Cloned() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.repo != nil
}

// Pull fetches and fast-forwards the tracked branch.
func (r *Repository) Pull(ctx context.Context) (*PullResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.repo == nil {
		return nil, fmt.Errorf("repository not initialized, call Clone() first")
	}
	r.metrics.LastPullTime = time.Now()

	ref, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	from := ref.Hash()

	worktree, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	auth, err := r.auth.Auth()
	if err != nil {
		return nil, fmt.Errorf("failed to get auth: %w", err)
	}

	pullCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()
	err = worktree.PullContext(pullCtx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(r.config.Branch),
		Auth:          auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		r.metrics.FailedPulls++
		return nil, fmt.Errorf("failed to pull: %w", err)
	}
	r.metrics.SuccessfulPulls++

	ref, err = r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get new HEAD: %w", err)
	}
	result := &PullResult{FromSHA: from.String(), ToSHA: ref.Hash().String()}
	if result.HadChanges() {
		files, err := r.changedFiles(from, ref.Hash())
		if err != nil {
			return nil, err
		}
		result.ChangedFiles = files
		r.metrics.LastCommitSHA = result.ToSHA
	}
	return result, nil
}

func (r *Repository) changedFiles(from, to plumbing.Hash) ([]string, error) {
	fromCommit, err := r.repo.CommitObject(from)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", from, err)
	}
	toCommit, err := r.repo.CommitObject(to)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", to, err)
	}
	fromTree, err := fromCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}
	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}

	var files []string
	for _, change := range changes {
		if change.To.Name != "" {
			files = append(files, change.To.Name)
		} else if change.From.Name != "" {
			files = append(files, change.From.Name)
		}
	}
	return files, nil
}

// Head returns the current commit.
func (r *Repository) Head() (*CommitInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.repo == nil {
		return nil, fmt.Errorf("repository not initialized, call Clone() first")
	}
	ref, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}
	return &CommitInfo{
		SHA:       commit.Hash.String(),
		Author:    commit.Author.Name,
		Timestamp: commit.Author.When,
		Message:   commit.Message,
	}, nil
}

// CatalogPath returns the catalog directory inside the clone.
func (r *Repository) CatalogPath() string {
	return filepath.Join(r.config.LocalPath, r.config.Path)
}

// Metrics returns a copy of the operation counters.
func (r *Repository) Metrics() Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics
}
