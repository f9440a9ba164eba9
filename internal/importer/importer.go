// Package importer pulls cards out of markdown sources, local
// directories or git repositories, and inserts the ones a user does not
// have yet. Imported cards start at bucket 1, due the day they arrive.
package importer

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/leitnerbox/internal/domain"
	"github.com/conorfennell/leitnerbox/internal/gitsource"
	"github.com/conorfennell/leitnerbox/internal/schedule"
	"github.com/conorfennell/leitnerbox/internal/storage"
)

// Importer reconciles a user's registered sources into their card
// collection. Cards already imported are matched by content hash and
// left alone, so a user's later edits outlive the source file.
type Importer struct {
	db       *storage.DB
	reposDir string
}

// New creates an Importer. Git sources are checked out under reposDir.
func New(db *storage.DB, reposDir string) *Importer {
	return &Importer{db: db, reposDir: reposDir}
}

// Result summarizes one import run.
type Result struct {
	Parsed   int
	Inserted int
	Skipped  int
	Errors   []error
}

// DetectSourceType classifies a source path as "git" or "local".
func DetectSourceType(path string) string {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return "git"
	}
	return "local"
}

// SyncUser reconciles every registered source of the user.
func (im *Importer) SyncUser(user *domain.User) (*Result, error) {
	sources, err := im.db.GetSources(user.ID)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		slog.Info("no sources registered", "user", user.Username)
		return &Result{}, nil
	}

	total := &Result{}
	for _, source := range sources {
		slog.Info("syncing source", "user", user.Username, "id", source.ID, "type", source.Type, "path", source.Path)

		dir := source.Path
		if source.Type == "git" {
			localPath, err := repoCheckoutPath(im.reposDir, source.Path)
			if err != nil {
				total.Errors = append(total.Errors, fmt.Errorf("source %s: %w", source.Path, err))
				continue
			}
			if err := gitsource.Sync(source.Path, localPath); err != nil {
				total.Errors = append(total.Errors, fmt.Errorf("source %s: %w", source.Path, err))
				continue
			}
			dir = localPath
		}

		res, err := im.ImportDir(user, dir)
		if err != nil {
			total.Errors = append(total.Errors, fmt.Errorf("source %s: %w", source.Path, err))
			continue
		}
		total.Parsed += res.Parsed
		total.Inserted += res.Inserted
		total.Skipped += res.Skipped
		total.Errors = append(total.Errors, res.Errors...)

		if err := im.db.UpdateSourceLastScanned(source.ID); err != nil {
			slog.Warn("failed to update last scanned", "source_id", source.ID, "error", err)
		}
	}

	slog.Info("sync complete",
		"user", user.Username,
		"parsed", total.Parsed,
		"inserted", total.Inserted,
		"skipped", total.Skipped,
		"errors", len(total.Errors),
	)
	return total, nil
}

// ImportDir walks a directory tree and imports the cards of every
// markdown file in it.
func (im *Importer) ImportDir(user *domain.User, dir string) (*Result, error) {
	res := &Result{}
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		parsed, parseErr := ParseFile(path)
		if parseErr != nil {
			res.Errors = append(res.Errors, fmt.Errorf("parsing %s: %w", path, parseErr))
			return nil
		}
		for _, pc := range parsed {
			res.Parsed++
			if err := im.importCard(user, pc, res); err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("importing from %s: %w", path, err))
			}
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, walkErr)
	}
	return res, nil
}

func (im *Importer) importCard(user *domain.User, pc ParsedCard, res *Result) error {
	hash := ContentHash(pc)
	existing, err := im.db.FindCardByContentHash(user.ID, hash)
	if err != nil {
		return err
	}
	if existing != nil {
		res.Skipped++
		return nil
	}

	back := pc.Back
	if pc.Context != "" {
		back = back + "\n\n" + pc.Context
	}
	due := schedule.DateOnly(time.Now().UTC())
	card := &domain.Card{
		UserID:      user.ID,
		Front:       pc.Front,
		Back:        back,
		ContentHash: hash,
		Schedule:    domain.ScheduleState{Bucket: 1, NextDate: &due},
	}
	if err := im.db.InsertCard(card); err != nil {
		return err
	}
	slog.Info("imported card", "user", user.Username, "card_id", card.ID, "hash", hash)
	res.Inserted++
	return nil
}

// repoCheckoutPath maps a git URL to a stable directory under baseDir.
func repoCheckoutPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err == nil && (parsedURL.Scheme == "https" || parsedURL.Scheme == "http") {
		cleaned := strings.TrimSuffix(parsedURL.Path, ".git")
		return filepath.Join(baseDir, parsedURL.Host, cleaned), nil
	}

	// scp-style address: git@host:owner/repo.git
	if at := strings.Index(repoURL, "@"); at >= 0 {
		if colon := strings.Index(repoURL[at:], ":"); colon >= 0 {
			host := repoURL[at+1 : at+colon]
			repoPath := strings.TrimSuffix(repoURL[at+colon+1:], ".git")
			return filepath.Join(baseDir, host, repoPath), nil
		}
	}
	return "", fmt.Errorf("could not parse git URL: %s", repoURL)
}
