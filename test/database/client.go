package database

import (
	"testing"

	"github.com/newsloom/newsloom/pkg/database"
	"github.com/newsloom/newsloom/test/util"
)

// NewTestClient creates a test database client.
// In CI (when CI_DATABASE_URL is set): connects to external PostgreSQL service container.
// In local dev: spins up a testcontainer with PostgreSQL.
// The schema and connections are automatically cleaned up when the test ends.
func NewTestClient(t *testing.T) *database.Client {
	// Shared setup creates an isolated, migrated schema per test.
	pool := util.SetupTestDatabase(t)
	return database.NewClientFromPool(pool)
}
