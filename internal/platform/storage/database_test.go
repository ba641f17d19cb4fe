package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-processor-go/internal/platform/storage/migrations"
)

func memoryDSN() string {
	return fmt.Sprintf("file:storage-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
}

func TestOpenRunsMigrations(t *testing.T) {
	db, err := Open(memoryDSN())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	assert.True(t, db.Migrator().HasTable(&SessionRecord{}))
	assert.True(t, db.Migrator().HasTable(&DomainEvent{}))

	manager := NewMigrationManager(db)
	for _, m := range migrations.All() {
		manager.AddMigration(m)
	}
	pending, err := manager.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	history, err := manager.GetMigrationHistory()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "001_sessions", history[0].Version)
}

func TestOpenCreatesDataDirectory(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "app.db")
	db, err := Open(dsn)
	require.NoError(t, err)
	require.NoError(t, Close(db))

	// Reopening an existing database must not reapply migrations.
	db, err = Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
}

func TestRollbackMigration(t *testing.T) {
	db, err := Open(memoryDSN())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	manager := NewMigrationManager(db)
	manager.AddMigration(&migrations.Migration001Sessions{})

	require.NoError(t, manager.RollbackMigration("001_sessions"))
	assert.False(t, db.Migrator().HasTable("sessions"))

	err = manager.RollbackMigration("001_sessions")
	assert.Error(t, err)
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
