package credstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// GitSyncOptions configures the push-on-save mirror.
type GitSyncOptions struct {
	RemoteURL   string
	Branch      string
	Username    string
	Password    string
	AuthorName  string
	AuthorEmail string
}

// gitSyncStore wraps a file-backed Store and commits+pushes the TOML
// document to RemoteURL after every Save, giving an operator an
// off-host audit trail of credential-state changes. Adapted from the
// teacher's internal/storage git_backend.go, collapsed from per-record
// file CRUD to a single-document commit since credstore.Store already
// only exposes whole-snapshot Load/Save.
type gitSyncStore struct {
	Store
	mu      sync.Mutex
	repoDir string
	opts    GitSyncOptions
	repo    *git.Repository
}

// NewGitSyncStore wraps inner (expected to be a fileStore rooted at
// tomlPath) with a git mirror. Initialization (clone-or-init) happens
// lazily on the first Save so a misconfigured remote doesn't block
// startup.
func NewGitSyncStore(inner Store, tomlPath string, opts GitSyncOptions) Store {
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	return &gitSyncStore{Store: inner, repoDir: filepath.Dir(tomlPath), opts: opts}
}

func (g *gitSyncStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := g.Store.Save(ctx, snap); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ensureRepo(); err != nil {
		return fmt.Errorf("credstore: git sync unavailable, on-disk save still succeeded: %w", err)
	}
	return g.commitAndPush()
}

func (g *gitSyncStore) ensureRepo() error {
	if g.repo != nil {
		return nil
	}
	repo, err := git.PlainOpen(g.repoDir)
	if err == nil {
		g.repo = repo
		return nil
	}
	if g.opts.RemoteURL != "" {
		repo, err = git.PlainClone(g.repoDir, false, &git.CloneOptions{
			URL:           g.opts.RemoteURL,
			ReferenceName: plumbing.NewBranchReferenceName(g.opts.Branch),
			SingleBranch:  true,
			Auth:          g.auth(),
		})
		if err == nil {
			g.repo = repo
			return nil
		}
	}
	repo, err = git.PlainInit(g.repoDir, false)
	if err != nil {
		return err
	}
	g.repo = repo
	return nil
}

func (g *gitSyncStore) commitAndPush() error {
	wt, err := g.repo.Worktree()
	if err != nil {
		return err
	}
	if _, err := wt.Add("."); err != nil {
		return err
	}
	status, err := wt.Status()
	if err != nil {
		return err
	}
	if !status.IsClean() {
		_, err = wt.Commit("credential store snapshot update", &git.CommitOptions{
			Author: &object.Signature{
				Name:  fallbackString(g.opts.AuthorName, "clewdr-go"),
				Email: fallbackString(g.opts.AuthorEmail, "clewdr-go@local"),
				When:  time.Now(),
			},
		})
		if err != nil {
			return err
		}
	}
	if g.opts.RemoteURL == "" {
		return nil
	}
	err = g.repo.Push(&git.PushOptions{RemoteName: "origin", Auth: g.auth()})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	return nil
}

func (g *gitSyncStore) auth() *githttp.BasicAuth {
	if g.opts.Username == "" && g.opts.Password == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: g.opts.Username, Password: g.opts.Password}
}

func fallbackString(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
