// Package db opens the workspace-scoped SQLite goal store.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	workspaceDir  = ".kaizen"
	defaultFile   = "kaizen.db"
	defaultBusyMS = 5000
)

// Config controls where the goal store lives and how the connection is
// tuned. The zero value opens .kaizen/kaizen.db under the current directory.
type Config struct {
	Workspace     string // project root; the store lives in <Workspace>/.kaizen
	File          string // database filename, kaizen.db when empty
	BusyTimeoutMS int    // writer lock wait in milliseconds, 5000 when zero
}

func (c Config) dir() string {
	ws := c.Workspace
	if ws == "" {
		ws = "."
	}
	return filepath.Join(ws, workspaceDir)
}

func (c Config) path() string {
	f := c.File
	if f == "" {
		f = defaultFile
	}
	return filepath.Join(c.dir(), f)
}

// DSN renders the connection string. Pragmas ride along as _pragma query
// parameters so every pooled connection gets them, not just the first.
func (c Config) DSN() string {
	busy := c.BusyTimeoutMS
	if busy == 0 {
		busy = defaultBusyMS
	}
	pragmas := []string{
		"foreign_keys(1)",
		fmt.Sprintf("busy_timeout(%d)", busy),
	}
	var b strings.Builder
	b.WriteString("file:")
	b.WriteString(c.path())
	b.WriteString("?cache=shared")
	for _, p := range pragmas {
		b.WriteString("&_pragma=")
		b.WriteString(p)
	}
	return b.String()
}

// EnsureWorkspace creates the workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := Config{Workspace: workspace}.dir()
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create workspace %s: %w", path, err)
	}
	return path, nil
}

// Open opens the goal store, creating the workspace directory when missing.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.path(), err)
	}
	return conn, nil
}
