package project

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// GitSource keeps a project's source checkout up to date.
type GitSource struct {
	URL string
	// Revision is a branch name or a commit hash. Empty follows the
	// remote's default branch.
	Revision string
	Dir      string
}

func (g *GitSource) branch() plumbing.ReferenceName {
	if g.Revision == "" || plumbing.IsHash(g.Revision) {
		return ""
	}
	return plumbing.NewBranchReferenceName(g.Revision)
}

// Sync clones a missing checkout (asking first unless --force) or
// fast-forwards an existing one. Local modifications are never touched.
func (g *GitSource) Sync(ctx context.Context, env *Env) error {
	printer := env.printer()
	settings := env.Settings

	if _, err := os.Stat(g.Dir); errors.Is(err, os.ErrNotExist) {
		if g.URL == "" {
			return fmt.Errorf("source directory %s does not exist and no repository is configured", g.Dir)
		}
		if !printer.Confirm(fmt.Sprintf("Source directory %s does not exist. Clone %s?", g.Dir, g.URL), true, settings.Force || settings.Pretend) {
			return fmt.Errorf("sources for %s are missing", g.Dir)
		}
		argv := []string{"git", "clone", g.URL, g.Dir}
		if b := g.branch(); b != "" {
			argv = []string{"git", "clone", "--branch", b.Short(), g.URL, g.Dir}
		}
		printer.PrintCommand(argv, "", nil, false)
		if settings.Pretend {
			return nil
		}
		opts := &git.CloneOptions{URL: g.URL, ReferenceName: g.branch(), Progress: progressWriter(env)}
		repo, err := git.PlainCloneContext(ctx, g.Dir, false, opts)
		if err != nil {
			return fmt.Errorf("cloning %s: %w", g.URL, err)
		}
		return g.checkoutHash(repo)
	} else if err != nil {
		return err
	}

	repo, err := git.PlainOpen(g.Dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		printer.Warning(g.Dir, "is not a git repository, not updating it")
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", g.Dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree of %s: %w", g.Dir, err)
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("git status in %s: %w", g.Dir, err)
	}
	for path, st := range status {
		if st.Worktree != git.Untracked && (st.Worktree != git.Unmodified || st.Staging != git.Unmodified) {
			printer.Warning(fmt.Sprintf("%s has local changes (%s), skipping update", g.Dir, path))
			return nil
		}
	}

	printer.PrintCommand([]string{"git", "pull", "--ff-only"}, g.Dir, nil, false)
	if settings.Pretend {
		return nil
	}
	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: "origin", ReferenceName: g.branch(), Progress: progressWriter(env)})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
	case errors.Is(err, git.ErrNonFastForwardUpdate):
		printer.Warning(g.Dir, "has diverged from its remote, not updating it")
	default:
		return fmt.Errorf("updating %s: %w", g.Dir, err)
	}
	return g.checkoutHash(repo)
}

func (g *GitSource) checkoutHash(repo *git.Repository) error {
	if !plumbing.IsHash(g.Revision) {
		return nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	head, err := repo.Head()
	if err == nil && head.Hash().String() == g.Revision {
		return nil
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(g.Revision)}); err != nil {
		return fmt.Errorf("checking out %s in %s: %w", g.Revision, g.Dir, err)
	}
	return nil
}

func progressWriter(env *Env) io.Writer {
	if env.Settings.Quiet || env.Runner == nil || env.Runner.Out == nil {
		return nil
	}
	return env.Runner.Out
}
