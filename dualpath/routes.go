// Package dualpath implements the dual-path client adapter: every operation
// runs against a primary connection path (standard or bypass) with at most
// one auth-refresh retry and at most one fallback attempt on the other path.
package dualpath

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/hazyhaar/pixivmcp/dbopen"
)

// Path identifies a connection path.
type Path string

const (
	// PathStandard is the normal transport to app-api.pixiv.net.
	PathStandard Path = "standard"
	// PathBypass is the SNI-evasion transport (pinned IPs, blank SNI).
	PathBypass Path = "bypass"
	// PathAuto lets the route table decide. Zero value of a request hint.
	PathAuto Path = ""
)

// Route is the per-operation routing decision.
type Route struct {
	Primary    Path `json:"primary"`
	FallbackOK bool `json:"fallback_ok"`
}

// DefaultRoutes is the static table: standard primary everywhere except
// novel_text, whose endpoint is the one SNI filtering actually breaks.
// download_illust writes local files, so a half-completed attempt must not
// be repeated on another path.
func DefaultRoutes() map[string]Route {
	return map[string]Route{
		"search_illust":   {Primary: PathStandard, FallbackOK: true},
		"search_novel":    {Primary: PathStandard, FallbackOK: true},
		"search_user":     {Primary: PathStandard, FallbackOK: true},
		"illust_ranking":  {Primary: PathStandard, FallbackOK: true},
		"novel_ranking":   {Primary: PathStandard, FallbackOK: true},
		"illust_detail":   {Primary: PathStandard, FallbackOK: true},
		"user_detail":     {Primary: PathStandard, FallbackOK: true},
		"novel_detail":    {Primary: PathStandard, FallbackOK: true},
		"novel_text":      {Primary: PathBypass, FallbackOK: true},
		"download_illust": {Primary: PathStandard, FallbackOK: false},
		"user_illusts":    {Primary: PathStandard, FallbackOK: true},
		"user_novels":     {Primary: PathStandard, FallbackOK: true},
		"trending_tags":   {Primary: PathStandard, FallbackOK: true},
	}
}

// defaultPathStatuses are the HTTP statuses treated as path-related:
// the blocking middlebox signature (403) and upstream edge overload (503).
func defaultPathStatuses() map[int]bool {
	return map[int]bool{403: true, 503: true}
}

// RoutesSchema is the DDL for the operator-tunable overrides, applied at
// startup via dbopen.WithSchema. Rows override the static defaults per
// operation; path_statuses replaces the classifier's path-related status set
// when non-empty.
const RoutesSchema = `
CREATE TABLE IF NOT EXISTS op_routes (
	kind         TEXT PRIMARY KEY,
	primary_path TEXT NOT NULL CHECK (primary_path IN ('standard','bypass')),
	fallback_ok  INTEGER NOT NULL DEFAULT 1,
	updated_at   INTEGER NOT NULL DEFAULT (unixepoch())
);
CREATE TABLE IF NOT EXISTS path_statuses (
	status INTEGER PRIMARY KEY
);`

// RouteTable resolves operation names to routes. Static defaults are fixed
// at construction; SQLite overrides are swapped in atomically by Reload,
// typically driven by a watch.Watcher.
type RouteTable struct {
	db       *sql.DB
	defaults map[string]Route

	mu        sync.RWMutex
	overrides map[string]Route
	statuses  map[int]bool
}

// NewRouteTable builds the table and verifies every required operation has
// a default route. A missing route is a construction error, not a runtime
// surprise.
func NewRouteTable(db *sql.DB, required []string) (*RouteTable, error) {
	defaults := DefaultRoutes()
	for _, kind := range required {
		if _, ok := defaults[kind]; !ok {
			return nil, fmt.Errorf("dualpath: no route for operation %q", kind)
		}
	}
	t := &RouteTable{
		db:        db,
		defaults:  defaults,
		overrides: map[string]Route{},
		statuses:  defaultPathStatuses(),
	}
	if db != nil {
		if err := t.Reload(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Route resolves kind. Overrides win over defaults.
func (t *RouteTable) Route(kind string) (Route, bool) {
	t.mu.RLock()
	r, ok := t.overrides[kind]
	t.mu.RUnlock()
	if ok {
		return r, true
	}
	r, ok = t.defaults[kind]
	return r, ok
}

// IsPathStatus reports whether an HTTP status is classified as path-related.
func (t *RouteTable) IsPathStatus(code int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.statuses[code]
}

// Snapshot returns the effective table (defaults merged with overrides),
// for the admin listing.
func (t *RouteTable) Snapshot() map[string]Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Route, len(t.defaults))
	for k, r := range t.defaults {
		out[k] = r
	}
	for k, r := range t.overrides {
		out[k] = r
	}
	return out
}

// Reload re-reads the override tables. Called by the watcher when the
// database changes and once at construction.
func (t *RouteTable) Reload() error {
	rows, err := t.db.Query(`SELECT kind, primary_path, fallback_ok FROM op_routes`)
	if err != nil {
		return fmt.Errorf("dualpath: read op_routes: %w", err)
	}
	defer rows.Close()

	overrides := map[string]Route{}
	for rows.Next() {
		var kind, primary string
		var fallbackOK bool
		if err := rows.Scan(&kind, &primary, &fallbackOK); err != nil {
			return fmt.Errorf("dualpath: scan op_routes: %w", err)
		}
		// Unknown kinds in the table are ignored rather than fatal: an
		// operator may stage a row before deploying the operation.
		if _, known := t.defaults[kind]; !known {
			continue
		}
		overrides[kind] = Route{Primary: Path(primary), FallbackOK: fallbackOK}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	statuses := defaultPathStatuses()
	srows, err := t.db.Query(`SELECT status FROM path_statuses`)
	if err != nil {
		return fmt.Errorf("dualpath: read path_statuses: %w", err)
	}
	defer srows.Close()
	custom := map[int]bool{}
	for srows.Next() {
		var code int
		if err := srows.Scan(&code); err != nil {
			return err
		}
		custom[code] = true
	}
	if err := srows.Err(); err != nil {
		return err
	}
	if len(custom) > 0 {
		statuses = custom
	}

	t.mu.Lock()
	t.overrides = overrides
	t.statuses = statuses
	t.mu.Unlock()
	return nil
}

// SetOverride upserts one override row. The watcher picks the change up on
// other processes; the local table reloads immediately.
func (t *RouteTable) SetOverride(ctx context.Context, kind string, r Route) error {
	if _, known := t.defaults[kind]; !known {
		return fmt.Errorf("dualpath: unknown operation %q", kind)
	}
	if r.Primary != PathStandard && r.Primary != PathBypass {
		return fmt.Errorf("dualpath: invalid primary path %q", r.Primary)
	}
	err := dbopen.RunTx(ctx, t.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO op_routes (kind, primary_path, fallback_ok, updated_at)
			VALUES (?, ?, ?, unixepoch())
			ON CONFLICT(kind) DO UPDATE SET
				primary_path = excluded.primary_path,
				fallback_ok  = excluded.fallback_ok,
				updated_at   = excluded.updated_at`,
			kind, string(r.Primary), r.FallbackOK)
		return err
	})
	if err != nil {
		return err
	}
	return t.Reload()
}

// DeleteOverride removes one override row, restoring the static default.
func (t *RouteTable) DeleteOverride(ctx context.Context, kind string) error {
	err := dbopen.RunTx(ctx, t.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM op_routes WHERE kind = ?`, kind)
		return err
	})
	if err != nil {
		return err
	}
	return t.Reload()
}
