package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/sabry-awad97/smart-scanner/internal/app"
	"github.com/sabry-awad97/smart-scanner/internal/config"
	"github.com/sabry-awad97/smart-scanner/internal/journal"
	"github.com/sabry-awad97/smart-scanner/internal/logging"
	"github.com/sabry-awad97/smart-scanner/internal/store"
)

// loadConfig reads ~/.smartscanner/config.yaml and the environment overlay.
func loadConfig() *config.Config {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	return cfg
}

// dataDir returns the configured data directory, creating it if needed.
func dataDir(cfg *config.Config) string {
	dir := cfg.DataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}
	return dir
}

// dbPath returns the path to smartscanner.db.
func dbPath(cfg *config.Config) string {
	return filepath.Join(dataDir(cfg), "smartscanner.db")
}

// eventLogPath returns the path to smartscanner.events.jsonl.
func eventLogPath(cfg *config.Config) string {
	return filepath.Join(dataDir(cfg), "smartscanner.events.jsonl")
}

// openDB opens the store or fatals.
func openDB(cfg *config.Config) *store.Store {
	st, err := store.Open(dbPath(cfg))
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	return st
}

// openJournal appends to the event log. The returned func flushes and
// closes it.
func openJournal(cfg *config.Config) (*journal.Journal, func()) {
	f, err := os.OpenFile(eventLogPath(cfg), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatalf("failed to open event log: %v", err)
	}
	j := journal.New(f)
	return j, func() {
		j.Close()
		f.Close()
	}
}

// initLogging starts the dated log file under the data directory.
func initLogging(cfg *config.Config) {
	if err := logging.Init(filepath.Join(dataDir(cfg), "logs"), cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
	}
}

// session bundles everything a command that drives the scanner needs.
type session struct {
	cfg     *config.Config
	app     *app.App
	store   *store.Store
	journal *journal.Journal
	ring    *journal.Ring

	closeJournal func()
}

// openSession wires config, logging, store and journal into an App.
func openSession() *session {
	cfg := loadConfig()
	initLogging(cfg)

	st := openDB(cfg)
	j, closeJournal := openJournal(cfg)
	ring := journal.NewRing(journal.DefaultRingSize)
	j.Attach(ring)

	a, err := app.New(cfg, app.Deps{Store: st, Journal: j})
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	return &session{
		cfg:          cfg,
		app:          a,
		store:        st,
		journal:      j,
		ring:         ring,
		closeJournal: closeJournal,
	}
}

// Close shuts down in reverse order of openSession.
func (s *session) Close() {
	s.app.Close()
	s.closeJournal()
	s.store.Close()
	logging.Close()
}

// truncate shortens a string to max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
