package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesDirectoryAndFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "data.db")

	db, err := Open(Config{Path: dbPath})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer Close(db)

	type row struct {
		ID   uint `gorm:"primaryKey"`
		Name string
	}
	if err := Migrate(db, &row{}); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	if err := db.Create(&row{Name: "first"}).Error; err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("Expected database file created at %s: %v", dbPath, err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("No home directory: %v", err)
	}

	got := expandPath("~/.agentpilot/data.db")
	want := filepath.Join(home, ".agentpilot", "data.db")
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	if got := expandPath("/var/lib/agentpilot.db"); got != "/var/lib/agentpilot.db" {
		t.Errorf("Expected absolute path unchanged, got %s", got)
	}
}
