package store

import (
	"database/sql"
	"testing"

	"github.com/dukerupert/cleanwarts/internal/database"
	"github.com/dukerupert/cleanwarts/internal/model"
)

const testAdminEmail = "admin@gmail.com"

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, us *UserStore, id, email, house string) *model.User {
	t.Helper()
	u, err := us.Create(&model.User{
		ID:           id,
		Name:         "User " + id,
		Email:        email,
		House:        house,
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
	return u
}
