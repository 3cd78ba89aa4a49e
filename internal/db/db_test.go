package db_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kaizen/internal/db"
)

func TestDSNDefaults(t *testing.T) {
	dsn := db.Config{}.DSN()
	assert.Equal(t, "file:"+filepath.Join(".", ".kaizen", "kaizen.db")+"?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dsn)
}

func TestDSNCarriesTuning(t *testing.T) {
	dsn := db.Config{Workspace: "/srv/goals", File: "team.db", BusyTimeoutMS: 250}.DSN()
	assert.Contains(t, dsn, "file:"+filepath.Join("/srv/goals", ".kaizen", "team.db"))
	assert.Contains(t, dsn, "_pragma=foreign_keys(1)")
	assert.Contains(t, dsn, "_pragma=busy_timeout(250)")
}

func TestOpenCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()
	info, err := os.Stat(filepath.Join(dir, ".kaizen"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
