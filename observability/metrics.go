// Package observability provides SQLite-native monitoring for the gateway:
// a per-call recorder for upstream Pixiv attempts and process heartbeats.
//
// All persistence is async and non-blocking: a failing observability store
// never applies backpressure to request handling.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/pixivmcp/idgen"
)

// callIDs generates time-sortable primary keys for op_calls rows.
var callIDs = idgen.Prefixed("call_", idgen.Default)

// call is one buffered upstream attempt.
type call struct {
	id       string
	kind     string
	path     string
	outcome  string
	duration time.Duration
	at       time.Time
}

// CallRecorder buffers upstream call records and flushes them to SQLite in
// batches. It satisfies the adapter's Recorder interface.
type CallRecorder struct {
	db            *sql.DB
	bufferSize    int
	flushInterval time.Duration
	buffer        []call
	mu            sync.Mutex
	stop          chan struct{}
	done          chan struct{}
}

// NewCallRecorder creates a recorder that flushes calls in batches.
// Recommended defaults: bufferSize=100, flushInterval=5s.
func NewCallRecorder(db *sql.DB, bufferSize int, flushInterval time.Duration) *CallRecorder {
	cr := &CallRecorder{
		db:            db,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		buffer:        make([]call, 0, bufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go cr.flushLoop()
	return cr
}

// RecordCall queues one upstream attempt for async persistence. Non-blocking.
func (cr *CallRecorder) RecordCall(kind, path, outcome string, elapsed time.Duration) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.buffer = append(cr.buffer, call{
		id:       callIDs(),
		kind:     kind,
		path:     path,
		outcome:  outcome,
		duration: elapsed,
		at:       time.Now(),
	})
	if len(cr.buffer) >= cr.bufferSize {
		cr.flushLocked()
	}
}

// CallStat is an aggregate over op_calls, grouped by kind, path and outcome.
type CallStat struct {
	Kind       string  `json:"kind"`
	Path       string  `json:"path"`
	Outcome    string  `json:"outcome"`
	Count      int64   `json:"count"`
	AvgMs      float64 `json:"avg_ms"`
	LastCallAt int64   `json:"last_call_at"`
}

// Snapshot aggregates the call log since the given time. A zero since means
// all recorded history. Pending buffered calls are flushed first so the
// snapshot reflects the latest activity.
func (cr *CallRecorder) Snapshot(ctx context.Context, since time.Time) ([]CallStat, error) {
	cr.mu.Lock()
	cr.flushLocked()
	cr.mu.Unlock()

	rows, err := cr.db.QueryContext(ctx, `
		SELECT kind, path, outcome, COUNT(*), AVG(duration_ms), MAX(created_at)
		FROM op_calls
		WHERE created_at >= ?
		GROUP BY kind, path, outcome
		ORDER BY kind, path, outcome`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("snapshot op_calls: %w", err)
	}
	defer rows.Close()

	var out []CallStat
	for rows.Next() {
		var s CallStat
		if err := rows.Scan(&s.Kind, &s.Path, &s.Outcome, &s.Count, &s.AvgMs, &s.LastCallAt); err != nil {
			return nil, fmt.Errorf("scan call stat: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Cleanup deletes call records older than retentionDays and returns the
// count removed.
func (cr *CallRecorder) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	threshold := time.Now().AddDate(0, 0, -retentionDays).Unix()
	result, err := cr.db.ExecContext(ctx, "DELETE FROM op_calls WHERE created_at < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup op_calls: %w", err)
	}
	return result.RowsAffected()
}

// Close flushes remaining calls and stops the background goroutine.
func (cr *CallRecorder) Close() error {
	close(cr.stop)
	<-cr.done
	return nil
}

func (cr *CallRecorder) flushLoop() {
	defer close(cr.done)
	ticker := time.NewTicker(cr.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cr.stop:
			cr.mu.Lock()
			cr.flushLocked()
			cr.mu.Unlock()
			return
		case <-ticker.C:
			cr.mu.Lock()
			cr.flushLocked()
			cr.mu.Unlock()
		}
	}
}

func (cr *CallRecorder) flushLocked() {
	if len(cr.buffer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := cr.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("observability calls: begin tx", "error", err)
		return
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO op_calls (call_id, kind, path, outcome, duration_ms, created_at) VALUES (?,?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		slog.Error("observability calls: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, c := range cr.buffer {
		if _, err := stmt.ExecContext(ctx,
			c.id, c.kind, c.path, c.outcome, c.duration.Milliseconds(), c.at.Unix()); err != nil {
			slog.Error("observability calls: insert", "error", err, "kind", c.kind)
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("observability calls: commit", "error", err)
	}
	cr.buffer = cr.buffer[:0]
}
