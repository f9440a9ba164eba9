// Package gitsource keeps local checkouts of git-hosted card decks up
// to date.
package gitsource

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5"
)

// Sync clones the repository into localPath if it is not there yet, and
// pulls the latest changes otherwise.
func Sync(url, localPath string) error {
	_, err := os.Stat(localPath)
	switch {
	case os.IsNotExist(err):
		return clone(url, localPath)
	case err != nil:
		return fmt.Errorf("checking path %s: %w", localPath, err)
	default:
		return pull(localPath)
	}
}

func clone(url, localPath string) error {
	slog.Info("cloning repository", "url", url, "path", localPath)
	if _, err := git.PlainClone(localPath, false, &git.CloneOptions{URL: url}); err != nil {
		return fmt.Errorf("cloning %s: %w", url, err)
	}
	return nil
}

func pull(localPath string) error {
	slog.Info("pulling repository", "path", localPath)
	repo, err := git.PlainOpen(localPath)
	if err != nil {
		return fmt.Errorf("opening repo at %s: %w", localPath, err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree at %s: %w", localPath, err)
	}
	err = worktree.Pull(&git.PullOptions{RemoteName: "origin"})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pulling at %s: %w", localPath, err)
	}
	return nil
}
