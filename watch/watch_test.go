package watch

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/pixivmcp/dbopen"
	_ "modernc.org/sqlite"
)

// fakeDetector returns values from a controllable atomic counter.
func fakeDetector(v *atomic.Int64) ChangeDetector {
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		return v.Load(), nil
	}
}

func TestOnChange_FiresOnVersionBump(t *testing.T) {
	db := dbopen.OpenMemory(t)

	var ver atomic.Int64
	ver.Store(1)

	fired := make(chan struct{}, 1)
	w := New(db, Options{
		Interval: 10 * time.Millisecond,
		Detector: fakeDetector(&ver),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go w.OnChange(ctx, func() error {
		fired <- struct{}{}
		return nil
	})

	time.Sleep(30 * time.Millisecond) // let the initial version seed
	ver.Store(2)

	select {
	case <-fired:
	case <-ctx.Done():
		t.Fatal("action never fired after version bump")
	}

	if w.Version() != 2 {
		t.Fatalf("version: got %d, want 2", w.Version())
	}
	if w.Stats().Reloads != 1 {
		t.Fatalf("reloads: got %d, want 1", w.Stats().Reloads)
	}
}

func TestOnChange_RetriesOnActionError(t *testing.T) {
	db := dbopen.OpenMemory(t)

	var ver atomic.Int64
	ver.Store(1)

	var calls atomic.Int64
	done := make(chan struct{})
	w := New(db, Options{
		Interval: 10 * time.Millisecond,
		Detector: fakeDetector(&ver),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go w.OnChange(ctx, func() error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})

	time.Sleep(30 * time.Millisecond)
	ver.Store(2)

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("action was not retried after error")
	}

	if w.Version() != 2 {
		t.Fatalf("version after retry: got %d, want 2", w.Version())
	}
	if w.Stats().Errors == 0 {
		t.Fatal("expected error counter to increment")
	}
}

func TestOnChange_StopsOnContextCancel(t *testing.T) {
	db := dbopen.OpenMemory(t)

	var ver atomic.Int64
	w := New(db, Options{
		Interval: 10 * time.Millisecond,
		Detector: fakeDetector(&ver),
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.OnChange(ctx, func() error { return nil })
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("OnChange did not return after cancel")
	}
}

func TestPragmaDataVersion_DetectsCrossConnectionWrite(t *testing.T) {
	// data_version only changes for writes made by OTHER connections, so use
	// a file-backed database with two handles.
	path := t.TempDir() + "/watch.db"
	db1, err := dbopen.Open(path, WithTestSchema())
	if err != nil {
		t.Fatal(err)
	}
	defer db1.Close()

	db2, err := dbopen.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db2.Close()

	ctx := context.Background()
	before, err := PragmaDataVersion(ctx, db1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := db2.Exec(`INSERT INTO t (v) VALUES (1)`); err != nil {
		t.Fatal(err)
	}

	after, err := PragmaDataVersion(ctx, db1)
	if err != nil {
		t.Fatal(err)
	}
	if after == before {
		t.Fatal("data_version did not change after cross-connection write")
	}
}

// WithTestSchema creates a throwaway table for the data_version test.
func WithTestSchema() dbopen.Option {
	return dbopen.WithSchema(`CREATE TABLE IF NOT EXISTS t (v INTEGER)`)
}

func TestMaxColumnDetector(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(
		`CREATE TABLE op_routes (kind TEXT PRIMARY KEY, updated_at INTEGER NOT NULL)`))

	det := MaxColumnDetector("op_routes", "updated_at")
	ctx := context.Background()

	v, err := det(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Fatalf("empty table: got %d, want 0", v)
	}

	if _, err := db.Exec(`INSERT INTO op_routes (kind, updated_at) VALUES ('novel_text', 42)`); err != nil {
		t.Fatal(err)
	}
	v, err = det(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if v != 42 {
		t.Fatalf("after insert: got %d, want 42", v)
	}
}
