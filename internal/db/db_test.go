package db

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

func createTestUser(t *testing.T, database *DB, email string) string {
	t.Helper()

	user, err := NewUserRepository(database).Create("Test User", email, "", "hash")
	if err != nil {
		t.Fatalf("UserRepository.Create() error = %v", err)
	}
	return user.ID
}
