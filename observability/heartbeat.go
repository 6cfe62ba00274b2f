package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/hazyhaar/pixivmcp/idgen"
)

var heartbeatIDs = idgen.Prefixed("hb_", idgen.Default)

// HeartbeatWriter records gateway liveness: one worker_heartbeats row per
// interval, tagged with a per-process instance ID so restarts show up as a
// new instance in the history.
type HeartbeatWriter struct {
	db       *sql.DB
	worker   string
	instance string
	hostname string
	pid      int
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewHeartbeatWriter builds a writer for the named worker. 15s is plenty
// for a gateway; the staleness threshold is derived as three intervals.
func NewHeartbeatWriter(db *sql.DB, worker string, interval time.Duration) *HeartbeatWriter {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &HeartbeatWriter{
		db:       db,
		worker:   worker,
		instance: idgen.New(),
		hostname: hostname,
		pid:      os.Getpid(),
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// InstanceID identifies this process start.
func (hw *HeartbeatWriter) InstanceID() string { return hw.instance }

// Start launches the beat goroutine: one row immediately, then one per
// interval until Stop or context cancellation.
func (hw *HeartbeatWriter) Start(ctx context.Context) {
	go hw.loop(ctx)
}

// Beat writes a single liveness row with current runtime stats.
func (hw *HeartbeatWriter) Beat(ctx context.Context) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	_, err := hw.db.ExecContext(ctx, `
		INSERT INTO worker_heartbeats (
			heartbeat_id, worker_name, instance_id, hostname, worker_pid,
			beat_at, goroutines, heap_mb, sys_mb, gc_count
		) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		heartbeatIDs(), hw.worker, hw.instance, hw.hostname, hw.pid,
		time.Now().Unix(), runtime.NumGoroutine(),
		float64(mem.Alloc)/1024/1024, float64(mem.Sys)/1024/1024, mem.NumGC)
	if err != nil {
		return fmt.Errorf("insert heartbeat: %w", err)
	}
	return nil
}

// Status returns the latest recorded beat for this writer's worker, marked
// stale when older than three intervals. Nil when nothing was recorded yet.
func (hw *HeartbeatWriter) Status(ctx context.Context) (*HeartbeatStatus, error) {
	return LatestHeartbeat(ctx, hw.db, hw.worker, 3*hw.interval)
}

// Stop signals the beat goroutine to exit and waits for it.
func (hw *HeartbeatWriter) Stop() {
	close(hw.stop)
	<-hw.done
}

func (hw *HeartbeatWriter) loop(ctx context.Context) {
	defer close(hw.done)
	ticker := time.NewTicker(hw.interval)
	defer ticker.Stop()

	if err := hw.Beat(ctx); err != nil {
		slog.Error("heartbeat write failed", "error", err, "worker", hw.worker)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-hw.stop:
			return
		case <-ticker.C:
			if err := hw.Beat(ctx); err != nil {
				slog.Error("heartbeat write failed", "error", err, "worker", hw.worker)
			}
		}
	}
}

// HeartbeatStatus is the latest beat for a worker, with staleness already
// computed so callers can surface it as-is.
type HeartbeatStatus struct {
	Worker     string    `json:"worker"`
	InstanceID string    `json:"instance_id"`
	Hostname   string    `json:"hostname"`
	PID        int       `json:"pid"`
	BeatAt     time.Time `json:"beat_at"`
	Goroutines int       `json:"goroutines"`
	HeapMB     float64   `json:"heap_mb"`
	SysMB      float64   `json:"sys_mb"`
	GCCount    int       `json:"gc_count"`
	Alive      bool      `json:"alive"`
	StaleFor   string    `json:"stale_for,omitempty"` // duration past the threshold
}

// LatestHeartbeat returns the most recent beat for the named worker, or
// nil, nil when none has been recorded. stalenessThreshold controls the
// alive boundary.
func LatestHeartbeat(ctx context.Context, db *sql.DB, worker string, stalenessThreshold time.Duration) (*HeartbeatStatus, error) {
	row := db.QueryRowContext(ctx, `
		SELECT worker_name, instance_id, hostname, worker_pid, beat_at,
		       goroutines, heap_mb, sys_mb, gc_count
		FROM worker_heartbeats
		WHERE worker_name = ?
		ORDER BY beat_at DESC LIMIT 1`, worker)

	var hs HeartbeatStatus
	var at int64
	err := row.Scan(&hs.Worker, &hs.InstanceID, &hs.Hostname, &hs.PID, &at,
		&hs.Goroutines, &hs.HeapMB, &hs.SysMB, &hs.GCCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest heartbeat: %w", err)
	}

	hs.BeatAt = time.Unix(at, 0)
	age := time.Since(hs.BeatAt)
	if age <= stalenessThreshold {
		hs.Alive = true
	} else {
		hs.StaleFor = (age - stalenessThreshold).Round(time.Second).String()
	}
	return &hs, nil
}
