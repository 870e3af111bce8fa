// Package storetest opens migrated in-memory databases for tests.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/fulfillment/internal/store"
	"gorm.io/gorm"
)

// New returns a migrated, private sqlite database closed at test cleanup.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := store.Open("sqlite", dsn)
	require.NoError(t, err, "Failed to open sqlite database")
	require.NoError(t, store.Migrate(context.Background(), db), "Failed to migrate schema")

	t.Cleanup(func() { _ = store.Close(db) })
	return db
}
