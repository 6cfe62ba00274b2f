// Package token manages the Pixiv credential lifecycle: refresh-token
// exchange, access-token expiry tracking, serialized refresh, and atomic
// persistence of rotated refresh tokens.
package token

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// expiryMargin is subtracted from the upstream expiry so a token is never
// used in its final seconds — an in-flight request must not straddle expiry.
const expiryMargin = 60 * time.Second

// Manager hands out valid access tokens and refreshes them on demand.
// All methods are safe for concurrent use; at most one refresh exchange is
// in flight at any time, and concurrent callers share its result.
type Manager struct {
	store  *Store
	oauth  *oauthClient
	logger *slog.Logger
	now    func() time.Time

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	pending      chan struct{} // non-nil while a refresh is in flight
	pendingErr   error
}

// Option customises Manager construction.
type Option func(*Manager)

// WithHTTPClient overrides the HTTP client used for the OAuth exchange.
func WithHTTPClient(hc *http.Client) Option {
	return func(m *Manager) { m.oauth = newOAuthClient(hc) }
}

// WithEndpoint overrides the OAuth endpoint (tests).
func WithEndpoint(u string) Option {
	return func(m *Manager) { m.oauth.endpoint = u }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
		m.oauth.now = now
	}
}

// NewManager creates a Manager. seed is the initial refresh token; when
// empty the store is consulted. Returns ErrNoToken when neither provides one.
func NewManager(store *Store, seed string, opts ...Option) (*Manager, error) {
	m := &Manager{
		store:  store,
		oauth:  newOAuthClient(nil),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}

	if seed == "" {
		tok, err := store.Load()
		if err != nil {
			return nil, err
		}
		seed = tok
	}
	m.refreshToken = seed
	return m, nil
}

// Token returns a valid access token, refreshing first when the cached one
// is missing or within expiryMargin of expiry. Concurrent callers during a
// refresh block until it completes and share its outcome.
func (m *Manager) Token(ctx context.Context) (string, error) {
	for {
		m.mu.Lock()
		if m.valid() {
			tok := m.accessToken
			m.mu.Unlock()
			return tok, nil
		}

		if m.pending != nil {
			// Another goroutine is refreshing. Wait for it, then re-check.
			ch := m.pending
			m.mu.Unlock()
			select {
			case <-ch:
			case <-ctx.Done():
				return "", ctx.Err()
			}
			m.mu.Lock()
			err := m.pendingErr
			if m.valid() {
				tok := m.accessToken
				m.mu.Unlock()
				return tok, nil
			}
			m.mu.Unlock()
			if err != nil {
				return "", err
			}
			continue
		}

		// We are the refresher.
		ch := make(chan struct{})
		m.pending = ch
		rt := m.refreshToken
		m.mu.Unlock()

		err := m.refresh(ctx, rt)

		m.mu.Lock()
		m.pending = nil
		m.pendingErr = err
		close(ch)
		if err != nil {
			m.mu.Unlock()
			return "", err
		}
		tok := m.accessToken
		m.mu.Unlock()
		return tok, nil
	}
}

// Invalidate discards the cached access token so the next Token call
// performs a fresh exchange. Called after an authenticated request comes
// back 401 despite a seemingly valid token.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.expiresAt = time.Time{}
	m.mu.Unlock()
}

// ForceRefresh discards the cached access token and returns a freshly
// exchanged one. Used after the upstream rejects a request as unauthorized
// despite a seemingly valid token. Shares in-flight refreshes the same way
// Token does, so a burst of 401s still produces one exchange.
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	m.Invalidate()
	return m.Token(ctx)
}

// ExpiresAt returns the current access token's expiry (zero when none).
func (m *Manager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiresAt
}

// valid reports whether the cached access token is usable. Caller holds mu.
func (m *Manager) valid() bool {
	return m.accessToken != "" && m.now().Before(m.expiresAt.Add(-expiryMargin))
}

// refresh performs one exchange and commits the result. On invalid_grant it
// re-reads the store first: an operator may have replaced the token file
// out-of-band, in which case the new credential gets one attempt before the
// error is declared fatal.
func (m *Manager) refresh(ctx context.Context, rt string) error {
	creds, err := m.oauth.exchange(ctx, rt)

	var invalid *InvalidTokenError
	if errors.As(err, &invalid) {
		fileTok, loadErr := m.store.Load()
		if loadErr == nil && fileTok != rt {
			m.logger.InfoContext(ctx, "token: file token changed externally, retrying exchange")
			creds, err = m.oauth.exchange(ctx, fileTok)
		}
	}
	if err != nil {
		m.logger.ErrorContext(ctx, "token: refresh failed", "error", err)
		return err
	}

	m.mu.Lock()
	m.accessToken = creds.AccessToken
	m.refreshToken = creds.RefreshToken
	m.expiresAt = m.now().Add(creds.ExpiresIn)
	m.mu.Unlock()

	// Persist the rotated refresh token. A write failure is logged, not
	// fatal: the in-memory credential still works for this process.
	if err := m.store.Save(creds.RefreshToken); err != nil {
		m.logger.ErrorContext(ctx, "token: persist rotated token failed", "error", err)
	} else {
		m.logger.DebugContext(ctx, "token: refresh complete",
			"expires_in", creds.ExpiresIn)
	}
	return nil
}
