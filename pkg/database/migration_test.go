package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func writeMigration(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644))
}

func TestGetLatestVersion(t *testing.T) {
	t.Run("highest up migration wins", func(t *testing.T) {
		dir := t.TempDir()
		writeMigration(t, dir, "000001_create_staged_records.up.sql")
		writeMigration(t, dir, "000001_create_staged_records.down.sql")
		writeMigration(t, dir, "000002_create_rule_sets.up.sql")
		writeMigration(t, dir, "000003_create_resolution_runs.up.sql")
		writeMigration(t, dir, "README.md")

		latest, err := getLatestVersion(dir)
		require.NoError(t, err)
		assert.Equal(t, 3, latest)
	})

	t.Run("empty folder errors", func(t *testing.T) {
		_, err := getLatestVersion(t.TempDir())
		assert.Error(t, err)
	})

	t.Run("missing folder errors", func(t *testing.T) {
		_, err := getLatestVersion(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})
}

func TestResolveMigrationFolder(t *testing.T) {
	t.Run("absolute path that exists is used as-is", func(t *testing.T) {
		dir := t.TempDir()
		ms := NewMigrationService(noopLogger(), &MigrationConfig{MigrationFolderPath: dir})
		assert.Equal(t, dir, ms.resolveMigrationFolder())
	})

	t.Run("relative path resolves against the working directory", func(t *testing.T) {
		ms := NewMigrationService(noopLogger(), &MigrationConfig{MigrationFolderPath: "db/pg"})
		wd, err := os.Getwd()
		require.NoError(t, err)
		assert.Equal(t, wd+"/db/pg", ms.resolveMigrationFolder())
	})
}

func TestMigrateMissingFolder(t *testing.T) {
	ms := NewMigrationService(noopLogger(), &MigrationConfig{
		MigrationFolderPath: filepath.Join(t.TempDir(), "absent"),
	})
	err := ms.Migrate("sage", nil)
	assert.ErrorContains(t, err, "does not exist")
}
