package reliability

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stockhunter/stockhunter/internal/database"
)

func newTestDB(t *testing.T, dir string) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path: filepath.Join(dir, "maintenance_test.db"),
		Name: "maintenance-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunDaily(t *testing.T) {
	dir := t.TempDir()
	db := newTestDB(t, dir)
	_, err := db.Exec(`CREATE TABLE probe (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)

	svc := NewMaintenanceService(db, dir, zerolog.Nop())
	require.NoError(t, svc.RunDaily(context.Background()))
}

func TestCheckDiskSpace(t *testing.T) {
	dir := t.TempDir()
	db := newTestDB(t, dir)

	svc := NewMaintenanceService(db, dir, zerolog.Nop())
	require.NoError(t, svc.CheckDiskSpace())
}
