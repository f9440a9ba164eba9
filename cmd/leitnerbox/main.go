package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/conorfennell/leitnerbox/internal/config"
	"github.com/conorfennell/leitnerbox/internal/importer"
	"github.com/conorfennell/leitnerbox/internal/learning"
	"github.com/conorfennell/leitnerbox/internal/storage"
	"github.com/conorfennell/leitnerbox/internal/web"
)

func main() {
	flags := config.Flags()
	importDir := flags.String("import", "", "one-shot: import markdown cards from this directory and exit")
	username := flags.String("user", "default", "user to import cards for")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := storage.Open(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DB)

	imp := importer.New(db, cfg.ReposDir)

	if *importDir != "" {
		user, err := db.EnsureUser(*username)
		if err != nil {
			log.Fatalf("Failed to resolve user %s: %v", *username, err)
		}
		res, err := imp.ImportDir(user, *importDir)
		if err != nil {
			log.Fatalf("Failed to import %s: %v", *importDir, err)
		}
		slog.Info("import finished",
			"dir", *importDir,
			"user", user.Username,
			"parsed", res.Parsed,
			"inserted", res.Inserted,
			"skipped", res.Skipped,
			"errors", len(res.Errors))
		for _, e := range res.Errors {
			slog.Error("import error", "error", e)
		}
		return
	}

	learner := learning.NewService(db, learning.Options{
		SessionTTL:     cfg.Session.TTL,
		MaxCards:       cfg.Session.MaxCards,
		SecondsPerCard: cfg.Session.SecondsPerCard,
	})

	srv := web.NewServer(db, learner, imp)
	slog.Info("listening", "addr", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, srv); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
