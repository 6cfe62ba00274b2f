package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestOpen_AppliesPragmas(t *testing.T) {
	db := OpenMemory(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys: got %d, want 1", fk)
	}
}

func TestOpen_WithSchema(t *testing.T) {
	db := OpenMemory(t, WithSchema(`CREATE TABLE op_routes (kind TEXT PRIMARY KEY)`))

	if _, err := db.Exec(`INSERT INTO op_routes (kind) VALUES ('novel_text')`); err != nil {
		t.Fatalf("insert into schema table: %v", err)
	}
}

func TestOpen_WithMkdirAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	db, err := Open(path, WithMkdirAll())
	if err != nil {
		t.Fatalf("open with mkdir: %v", err)
	}
	defer db.Close()
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database is locked"), true},
		{errors.New("SQLITE_BUSY: something"), true},
		{errors.New("syntax error"), false},
	}
	for _, tt := range tests {
		if got := IsBusy(tt.err); got != tt.want {
			t.Errorf("IsBusy(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRunTx_CommitsOnSuccess(t *testing.T) {
	db := OpenMemory(t, WithSchema(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)`))

	err := RunTx(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO items (name) VALUES ('a')`)
		return err
	})
	if err != nil {
		t.Fatalf("RunTx: %v", err)
	}

	var n int
	db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n)
	if n != 1 {
		t.Fatalf("rows after commit: got %d, want 1", n)
	}
}

func TestRunTx_RollsBackOnError(t *testing.T) {
	db := OpenMemory(t, WithSchema(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)`))

	boom := errors.New("boom")
	err := RunTx(context.Background(), db, func(tx *sql.Tx) error {
		tx.Exec(`INSERT INTO items (name) VALUES ('a')`)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var n int
	db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n)
	if n != 0 {
		t.Fatalf("rows after rollback: got %d, want 0", n)
	}
}
