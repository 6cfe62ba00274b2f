package token

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/pixivmcp/safeio"
)

// Pixiv mobile-app OAuth constants. These identify the Android client and
// are required by oauth.secure.pixiv.net — browser client IDs are rejected.
const (
	clientID     = "MOBrBDS8blbauoSck0ZfDbtuzpyT"
	clientSecret = "lsACyCD94FhDUtGTXi3QzcFE2uU1hqtDaKeqrdwj"
	tokenURL     = "https://oauth.secure.pixiv.net/auth/token"
	userAgent    = "PixivAndroidApp/5.0.234 (Android 11; Pixel 5)"

	// hashSalt is appended to X-Client-Time before hashing into
	// X-Client-Hash. The endpoint rejects requests without both headers.
	hashSalt = "28c1fdd170a5204386cb1313c7077b34f83e4aaf4aa829ce78c231e05b0bae2c"
)

// InvalidTokenError is fatal: the upstream rejected the refresh token
// (invalid_grant). Retrying with the same credential cannot succeed.
type InvalidTokenError struct {
	Detail string
}

func (e *InvalidTokenError) Error() string {
	return "token: refresh token rejected: " + e.Detail
}

// credentials is a successful exchange result.
type credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// oauthClient exchanges refresh tokens at the Pixiv OAuth endpoint.
type oauthClient struct {
	http     *http.Client
	endpoint string
	now      func() time.Time
}

func newOAuthClient(hc *http.Client) *oauthClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &oauthClient{http: hc, endpoint: tokenURL, now: time.Now}
}

// exchange performs a refresh_token grant. invalid_grant responses become
// *InvalidTokenError; everything else (network, 5xx) is transient.
func (c *oauthClient) exchange(ctx context.Context, refreshToken string) (*credentials, error) {
	form := url.Values{
		"client_id":      {clientID},
		"client_secret":  {clientSecret},
		"grant_type":     {"refresh_token"},
		"refresh_token":  {refreshToken},
		"include_policy": {"true"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("token: build request: %w", err)
	}

	clientTime := c.now().UTC().Format("2006-01-02T15:04:05+00:00")
	sum := md5.Sum([]byte(clientTime + hashSalt))

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Client-Time", clientTime)
	req.Header.Set("X-Client-Hash", hex.EncodeToString(sum[:]))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token: exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := safeio.LimitedReadAll(resp.Body, safeio.MaxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("token: read exchange response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusBadRequest &&
			strings.Contains(string(body), "invalid_grant") {
			return nil, &InvalidTokenError{Detail: summarize(body)}
		}
		return nil, fmt.Errorf("token: exchange failed: status %d: %s",
			resp.StatusCode, summarize(body))
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("token: decode exchange response: %w", err)
	}
	if payload.AccessToken == "" || payload.RefreshToken == "" {
		return nil, fmt.Errorf("token: exchange response missing tokens")
	}

	return &credentials{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresIn:    time.Duration(payload.ExpiresIn) * time.Second,
	}, nil
}

// summarize truncates an error body for log-safe inclusion in errors.
func summarize(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
