package database

import (
	"path/filepath"
	"testing"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		driver   string
		query    string
		expected string
	}{
		{DriverSQLite, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{DriverPostgres, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{DriverPostgres, "SELECT COUNT(*) FROM t", "SELECT COUNT(*) FROM t"},
	}

	for _, tt := range tests {
		db := &DB{Driver: tt.driver}
		if got := db.Rebind(tt.query); got != tt.expected {
			t.Errorf("Rebind(%s, %q): expected %q, got %q", tt.driver, tt.query, tt.expected, got)
		}
	}
}

func TestNewConnectionRejectsUnknownDriver(t *testing.T) {
	if _, err := NewConnection("mysql", "root@/db"); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}

func TestRunMigrationsSeedsCategories(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("Expected second migration run to be a no-op, got %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("Expected clean version 1, got %d (dirty=%v)", version, dirty)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM categories WHERE id = ?`, UncategorizedID).Scan(&count); err != nil {
		t.Fatalf("Failed to query categories: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected fallback category %s to be seeded", UncategorizedID)
	}
}

func TestSqliteDSN(t *testing.T) {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	tests := []struct {
		dsn      string
		expected string
	}{
		{"data/opp.db", "data/opp.db?" + pragmas},
		{"file:data/opp.db?cache=shared", "file:data/opp.db?cache=shared&" + pragmas},
	}

	for _, tt := range tests {
		if got := sqliteDSN(tt.dsn); got != tt.expected {
			t.Errorf("sqliteDSN(%q): expected %q, got %q", tt.dsn, tt.expected, got)
		}
	}
}

func TestSqlitePragmasSurviveReconnect(t *testing.T) {
	db, err := NewConnection(DriverSQLite, filepath.Join(t.TempDir(), "opp.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// drop the pooled connection so the next query dials a fresh one
	db.SetMaxIdleConns(0)
	db.SetMaxIdleConns(1)

	var foreignKeys int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("Failed to read pragma: %v", err)
	}
	if foreignKeys != 1 {
		t.Errorf("Expected foreign_keys 1 on a new connection, got %d", foreignKeys)
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("Failed to read pragma: %v", err)
	}
	if busyTimeout != 5000 {
		t.Errorf("Expected busy_timeout 5000, got %d", busyTimeout)
	}
}
