// Package pixivapi is the upstream client boundary: typed access to the
// Pixiv app API over either a standard transport or an SNI-evasion bypass
// transport. Both paths share the same request core and return identical
// normalized records, so callers cannot tell which path served them.
package pixivapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/hazyhaar/pixivmcp/safeio"
)

const (
	// DefaultBaseURL is the Pixiv mobile app API origin.
	DefaultBaseURL = "https://app-api.pixiv.net"

	// APIHost is the hostname both transports target. The bypass transport
	// keeps it in the URL and Host header while dialing a pinned IP.
	APIHost = "app-api.pixiv.net"

	userAgent      = "PixivAndroidApp/5.0.234 (Android 11; Pixel 5)"
	acceptLanguage = "en-US"
)

// StatusError is a non-2xx upstream response. The adapter's classifier
// inspects Code to decide between path-related and fatal upstream failures.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pixivapi: upstream status %d: %s", e.Code, e.Body)
}

// API is the capability set both connection paths implement.
type API interface {
	SearchIllust(ctx context.Context, tok string, p SearchIllustParams) ([]Illust, error)
	SearchNovel(ctx context.Context, tok string, p SearchNovelParams) ([]Novel, error)
	SearchUser(ctx context.Context, tok string, p SearchUserParams) ([]UserPreview, error)
	IllustRanking(ctx context.Context, tok string, p RankingParams) ([]Illust, error)
	NovelRanking(ctx context.Context, tok string, p RankingParams) ([]Novel, error)
	IllustDetail(ctx context.Context, tok string, id int64) (*Illust, error)
	UserDetail(ctx context.Context, tok string, id int64) (*UserProfile, error)
	NovelDetail(ctx context.Context, tok string, id int64) (*Novel, error)
	NovelText(ctx context.Context, tok string, id int64) (*NovelText, error)
	UserIllusts(ctx context.Context, tok string, p UserWorksParams) ([]Illust, error)
	UserNovels(ctx context.Context, tok string, p UserWorksParams) ([]Novel, error)
	TrendingTags(ctx context.Context, tok string, limit int) ([]TrendTag, error)
	Download(ctx context.Context, tok string, p DownloadParams) (*DownloadResult, error)
}

// Client talks to the app API over whatever transport it was built with.
type Client struct {
	base        string
	http        *http.Client
	logger      *slog.Logger
	downloadDir string
}

// Option customises Client construction.
type Option func(*Client)

// WithBaseURL overrides the API origin (tests).
func WithBaseURL(u string) Option { return func(c *Client) { c.base = u } }

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithDownloadDir sets the root directory Download writes into.
func WithDownloadDir(dir string) Option { return func(c *Client) { c.downloadDir = dir } }

func newClient(hc *http.Client, opts ...Option) *Client {
	c := &Client{
		base:        DefaultBaseURL,
		http:        hc,
		logger:      slog.Default(),
		downloadDir: "./downloads",
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// get performs an authenticated GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, tok, path string, q url.Values, out any) error {
	body, err := c.getRaw(ctx, tok, path, q)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("pixivapi: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, tok, path string, q url.Values) ([]byte, error) {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("pixivapi: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", acceptLanguage)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pixivapi: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := safeio.LimitedReadAll(resp.Body, safeio.MaxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("pixivapi: read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

// ---------- operations ----------

func (c *Client) SearchIllust(ctx context.Context, tok string, p SearchIllustParams) ([]Illust, error) {
	q := url.Values{
		"word":          {p.Word},
		"search_target": {p.SearchTarget},
		"sort":          {p.Sort},
	}
	if p.Duration != "" {
		q.Set("duration", p.Duration)
	}
	var env struct {
		Illusts []rawIllust `json:"illusts"`
	}
	if err := c.get(ctx, tok, "/v1/search/illust", q, &env); err != nil {
		return nil, err
	}
	return normalizeIllusts(env.Illusts, p.Limit, false), nil
}

func (c *Client) SearchNovel(ctx context.Context, tok string, p SearchNovelParams) ([]Novel, error) {
	q := url.Values{
		"word":          {p.Word},
		"search_target": {p.SearchTarget},
		"sort":          {p.Sort},
	}
	if p.Duration != "" {
		q.Set("duration", p.Duration)
	}
	var env struct {
		Novels []rawNovel `json:"novels"`
	}
	if err := c.get(ctx, tok, "/v1/search/novel", q, &env); err != nil {
		return nil, err
	}
	return normalizeNovels(env.Novels, p.Limit, false), nil
}

func (c *Client) SearchUser(ctx context.Context, tok string, p SearchUserParams) ([]UserPreview, error) {
	q := url.Values{"word": {p.Word}}
	var env struct {
		UserPreviews []struct {
			User    rawUser     `json:"user"`
			Illusts []rawIllust `json:"illusts"`
			Novels  []rawNovel  `json:"novels"`
		} `json:"user_previews"`
	}
	if err := c.get(ctx, tok, "/v1/search/user", q, &env); err != nil {
		return nil, err
	}
	previews := env.UserPreviews
	if p.Limit > 0 && len(previews) > p.Limit {
		previews = previews[:p.Limit]
	}
	out := make([]UserPreview, 0, len(previews))
	for _, up := range previews {
		out = append(out, UserPreview{
			User:    up.User.ref(),
			Illusts: normalizeIllusts(up.Illusts, 3, false),
			Novels:  normalizeNovels(up.Novels, 3, false),
		})
	}
	return out, nil
}

func (c *Client) IllustRanking(ctx context.Context, tok string, p RankingParams) ([]Illust, error) {
	q := url.Values{"mode": {p.Mode}}
	if p.Date != "" {
		q.Set("date", p.Date)
	}
	var env struct {
		Illusts []rawIllust `json:"illusts"`
	}
	if err := c.get(ctx, tok, "/v1/illust/ranking", q, &env); err != nil {
		return nil, err
	}
	return normalizeIllusts(env.Illusts, p.Limit, true), nil
}

func (c *Client) NovelRanking(ctx context.Context, tok string, p RankingParams) ([]Novel, error) {
	q := url.Values{"mode": {p.Mode}}
	if p.Date != "" {
		q.Set("date", p.Date)
	}
	var env struct {
		Novels []rawNovel `json:"novels"`
	}
	if err := c.get(ctx, tok, "/v1/novel/ranking", q, &env); err != nil {
		return nil, err
	}
	return normalizeNovels(env.Novels, p.Limit, true), nil
}

func (c *Client) IllustDetail(ctx context.Context, tok string, id int64) (*Illust, error) {
	q := url.Values{"illust_id": {strconv.FormatInt(id, 10)}}
	var env struct {
		Illust *rawIllust `json:"illust"`
	}
	if err := c.get(ctx, tok, "/v1/illust/detail", q, &env); err != nil {
		return nil, err
	}
	if env.Illust == nil || env.Illust.ID == 0 {
		return nil, &StatusError{Code: http.StatusNotFound, Body: "illust not found"}
	}
	illust := env.Illust.normalize()
	return &illust, nil
}

func (c *Client) UserDetail(ctx context.Context, tok string, id int64) (*UserProfile, error) {
	q := url.Values{"user_id": {strconv.FormatInt(id, 10)}}
	var env struct {
		User    *rawUser   `json:"user"`
		Profile rawProfile `json:"profile"`
	}
	if err := c.get(ctx, tok, "/v1/user/detail", q, &env); err != nil {
		return nil, err
	}
	if env.User == nil || env.User.ID == 0 {
		return nil, &StatusError{Code: http.StatusNotFound, Body: "user not found"}
	}
	return &UserProfile{
		User:    env.User.ref(),
		Comment: env.User.Comment,
		Avatar:  env.User.ProfileImageURLs,
		Profile: Profile{
			Webpage:          env.Profile.Webpage,
			Region:           env.Profile.Region,
			TotalFollowUsers: env.Profile.TotalFollowUsers,
			TotalIllusts:     env.Profile.TotalIllusts,
			TotalManga:       env.Profile.TotalManga,
			TotalNovels:      env.Profile.TotalNovels,
			TotalBookmarks:   env.Profile.TotalIllustBookmarksPublic,
		},
	}, nil
}

func (c *Client) NovelDetail(ctx context.Context, tok string, id int64) (*Novel, error) {
	q := url.Values{"novel_id": {strconv.FormatInt(id, 10)}}
	var env struct {
		Novel *rawNovel `json:"novel"`
	}
	if err := c.get(ctx, tok, "/v2/novel/detail", q, &env); err != nil {
		return nil, err
	}
	if env.Novel == nil || env.Novel.ID == 0 {
		return nil, &StatusError{Code: http.StatusNotFound, Body: "novel not found"}
	}
	novel := env.Novel.normalize()
	return &novel, nil
}

// novelJSONRe extracts the embedded novel object from the webview HTML.
// The webview page inlines it as `novel: {...},\n isOwnWork`.
var novelJSONRe = regexp.MustCompile(`(?s)novel:\s*(\{.+\}),\s*isOwnWork`)

// NovelText fetches the full novel body. The app API has no JSON endpoint
// for bodies; the webview page embeds the novel object in its HTML, so the
// JSON is extracted from there, then NovelDetail supplies the metadata.
func (c *Client) NovelText(ctx context.Context, tok string, id int64) (*NovelText, error) {
	q := url.Values{
		"id":             {strconv.FormatInt(id, 10)},
		"viewer_version": {"20221031-ai"},
	}
	html, err := c.getRaw(ctx, tok, "/webview/v2/novel", q)
	if err != nil {
		return nil, err
	}

	m := novelJSONRe.FindSubmatch(html)
	if m == nil {
		return nil, fmt.Errorf("pixivapi: novel %d: no embedded novel object in webview page", id)
	}
	var embedded struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m[1], &embedded); err != nil {
		return nil, fmt.Errorf("pixivapi: novel %d: decode embedded object: %w", id, err)
	}
	if embedded.Text == "" {
		return nil, &StatusError{Code: http.StatusNotFound, Body: "novel has no text"}
	}

	out := &NovelText{
		NovelID:    id,
		Text:       embedded.Text,
		TextLength: len([]rune(embedded.Text)),
	}
	// Metadata is best-effort: the text alone is a valid result.
	if detail, err := c.NovelDetail(ctx, tok, id); err == nil {
		out.Novel = detail
	} else {
		c.logger.DebugContext(ctx, "pixivapi: novel detail unavailable",
			"novel_id", id, "error", err)
	}
	return out, nil
}

func (c *Client) UserIllusts(ctx context.Context, tok string, p UserWorksParams) ([]Illust, error) {
	q := url.Values{
		"user_id": {strconv.FormatInt(p.UserID, 10)},
		"type":    {p.Type},
	}
	var env struct {
		Illusts []rawIllust `json:"illusts"`
	}
	if err := c.get(ctx, tok, "/v1/user/illusts", q, &env); err != nil {
		return nil, err
	}
	return normalizeIllusts(env.Illusts, p.Limit, false), nil
}

func (c *Client) UserNovels(ctx context.Context, tok string, p UserWorksParams) ([]Novel, error) {
	q := url.Values{"user_id": {strconv.FormatInt(p.UserID, 10)}}
	var env struct {
		Novels []rawNovel `json:"novels"`
	}
	if err := c.get(ctx, tok, "/v1/user/novels", q, &env); err != nil {
		return nil, err
	}
	return normalizeNovels(env.Novels, p.Limit, false), nil
}

func (c *Client) TrendingTags(ctx context.Context, tok string, limit int) ([]TrendTag, error) {
	var env struct {
		TrendTags []struct {
			Tag            string     `json:"tag"`
			TranslatedName string     `json:"translated_name"`
			Illust         *rawIllust `json:"illust"`
		} `json:"trend_tags"`
	}
	if err := c.get(ctx, tok, "/v1/trending-tags/illust", nil, &env); err != nil {
		return nil, err
	}
	tags := env.TrendTags
	if limit > 0 && len(tags) > limit {
		tags = tags[:limit]
	}
	out := make([]TrendTag, 0, len(tags))
	for _, t := range tags {
		tt := TrendTag{Name: t.Tag, TranslatedName: t.TranslatedName}
		if t.Illust != nil {
			illust := t.Illust.normalize()
			tt.Illust = &illust
		}
		out = append(out, tt)
	}
	return out, nil
}
