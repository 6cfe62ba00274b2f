package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/hazyhaar/pixivmcp/dbopen"
	"github.com/hazyhaar/pixivmcp/dualpath"
	"github.com/hazyhaar/pixivmcp/pixivapi"
	_ "modernc.org/sqlite"
)

// stubAPI is a scriptable upstream: err applies to every operation until
// cleared, calls counts backend contacts.
type stubAPI struct {
	name  string
	err   error
	calls atomic.Int64
}

func (s *stubAPI) hit() error {
	s.calls.Add(1)
	return s.err
}

func (s *stubAPI) SearchIllust(ctx context.Context, tok string, p pixivapi.SearchIllustParams) ([]pixivapi.Illust, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	return []pixivapi.Illust{{ID: 1, Title: "from-" + s.name}}, nil
}

func (s *stubAPI) SearchNovel(ctx context.Context, tok string, p pixivapi.SearchNovelParams) ([]pixivapi.Novel, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	return []pixivapi.Novel{{ID: 2, Title: "novel"}}, nil
}

func (s *stubAPI) SearchUser(ctx context.Context, tok string, p pixivapi.SearchUserParams) ([]pixivapi.UserPreview, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	return []pixivapi.UserPreview{{User: pixivapi.UserRef{ID: 3}}}, nil
}

func (s *stubAPI) IllustRanking(ctx context.Context, tok string, p pixivapi.RankingParams) ([]pixivapi.Illust, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	return []pixivapi.Illust{{ID: 4, Rank: 1}}, nil
}

func (s *stubAPI) NovelRanking(ctx context.Context, tok string, p pixivapi.RankingParams) ([]pixivapi.Novel, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	return []pixivapi.Novel{{ID: 5, Rank: 1}}, nil
}

func (s *stubAPI) IllustDetail(ctx context.Context, tok string, id int64) (*pixivapi.Illust, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	return &pixivapi.Illust{ID: id, Title: "detail"}, nil
}

func (s *stubAPI) UserDetail(ctx context.Context, tok string, id int64) (*pixivapi.UserProfile, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	return &pixivapi.UserProfile{User: pixivapi.UserRef{ID: id}}, nil
}

func (s *stubAPI) NovelDetail(ctx context.Context, tok string, id int64) (*pixivapi.Novel, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	return &pixivapi.Novel{ID: id}, nil
}

func (s *stubAPI) NovelText(ctx context.Context, tok string, id int64) (*pixivapi.NovelText, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	return &pixivapi.NovelText{NovelID: id, Text: "text-from-" + s.name}, nil
}

func (s *stubAPI) UserIllusts(ctx context.Context, tok string, p pixivapi.UserWorksParams) ([]pixivapi.Illust, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	return []pixivapi.Illust{{ID: 6}}, nil
}

func (s *stubAPI) UserNovels(ctx context.Context, tok string, p pixivapi.UserWorksParams) ([]pixivapi.Novel, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	return []pixivapi.Novel{{ID: 7}}, nil
}

func (s *stubAPI) TrendingTags(ctx context.Context, tok string, limit int) ([]pixivapi.TrendTag, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	return []pixivapi.TrendTag{{Name: "猫"}}, nil
}

func (s *stubAPI) Download(ctx context.Context, tok string, p pixivapi.DownloadParams) (*pixivapi.DownloadResult, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	return &pixivapi.DownloadResult{IllustID: p.IllustID, TotalFiles: 1}, nil
}

type stubTokens struct{}

func (stubTokens) Token(ctx context.Context) (string, error)        { return "tok", nil }
func (stubTokens) ForceRefresh(ctx context.Context) (string, error) { return "tok2", nil }

func newTestRouter(t *testing.T) (*Router, *stubAPI, *stubAPI) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(dualpath.RoutesSchema))
	routes, err := dualpath.NewRouteTable(db, KindStrings())
	if err != nil {
		t.Fatal(err)
	}
	std := &stubAPI{name: "standard"}
	byp := &stubAPI{name: "bypass"}
	adapter, err := dualpath.NewAdapter(std, byp, stubTokens{}, routes)
	if err != nil {
		t.Fatal(err)
	}
	return NewRouter(adapter), std, byp
}

func TestParseKind(t *testing.T) {
	if _, err := ParseKind("search_illust"); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseKind("drop_database"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestHandle_UnknownKindRejectedBeforeBackend(t *testing.T) {
	r, std, byp := newTestRouter(t)

	_, failure := r.Handle(context.Background(), Kind("nonsense"), nil)
	if failure == nil || failure.Kind != FailureValidation {
		t.Fatalf("failure: %+v", failure)
	}
	if std.calls.Load()+byp.calls.Load() != 0 {
		t.Fatal("backend contacted for unknown kind")
	}
}

func TestHandle_ValidationBeforeBackend(t *testing.T) {
	r, std, byp := newTestRouter(t)

	tests := []struct {
		kind Kind
		args string
	}{
		{KindSearchIllust, `{}`},                               // missing word
		{KindSearchIllust, `{"word":"cat","limit":99}`},        // limit out of range
		{KindIllustRanking, `{"mode":"yearly"}`},               // bad mode
		{KindIllustRanking, `{"date":"01-02-2024"}`},           // bad date format
		{KindIllustDetail, `{}`},                               // missing id
		{KindDownloadIllust, `{"illust_id":1,"quality":"4k"}`}, // bad quality
		{KindSearchIllust, `{"word":"cat","path":"tunnel"}`},   // bad hint
	}
	for _, tt := range tests {
		_, failure := r.Handle(context.Background(), tt.kind, json.RawMessage(tt.args))
		if failure == nil || failure.Kind != FailureValidation {
			t.Errorf("%s %s: failure = %+v, want validation", tt.kind, tt.args, failure)
		}
	}
	if std.calls.Load()+byp.calls.Load() != 0 {
		t.Fatal("backend contacted despite validation failure")
	}
}

func TestHandle_SearchSuccess(t *testing.T) {
	r, _, _ := newTestRouter(t)

	res, failure := r.Handle(context.Background(), KindSearchIllust,
		json.RawMessage(`{"word":"風景"}`))
	if failure != nil {
		t.Fatal(failure)
	}
	items, ok := res.([]pixivapi.Illust)
	if !ok || len(items) != 1 || items[0].Title != "from-standard" {
		t.Fatalf("result: %#v", res)
	}
}

func TestHandle_NovelTextServedByBypass(t *testing.T) {
	r, std, byp := newTestRouter(t)

	res, failure := r.Handle(context.Background(), KindNovelText,
		json.RawMessage(`{"novel_id":777}`))
	if failure != nil {
		t.Fatal(failure)
	}
	nt := res.(*pixivapi.NovelText)
	if nt.Text != "text-from-bypass" {
		t.Fatalf("novel_text served by wrong path: %q", nt.Text)
	}
	if std.calls.Load() != 0 || byp.calls.Load() != 1 {
		t.Fatalf("calls: std=%d byp=%d", std.calls.Load(), byp.calls.Load())
	}
}

func TestHandle_FailureNormalization(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind string
	}{
		{"not found", &pixivapi.StatusError{Code: http.StatusNotFound, Body: "gone"}, FailureUpstream},
		{"blocked", &pixivapi.StatusError{Code: http.StatusForbidden, Body: "blocked"}, FailurePath},
		{"unauthorized", &pixivapi.StatusError{Code: http.StatusUnauthorized, Body: "expired"}, FailureAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, std, byp := newTestRouter(t)
			std.err = tt.err
			byp.err = tt.err

			_, failure := r.Handle(context.Background(), KindIllustDetail,
				json.RawMessage(`{"illust_id":1}`))
			if failure == nil || failure.Kind != tt.wantKind {
				t.Fatalf("failure: %+v, want kind %q", failure, tt.wantKind)
			}
			if failure.Message == "" {
				t.Fatal("original message not preserved")
			}
		})
	}
}

func TestHandle_DefaultsApplied(t *testing.T) {
	r, _, _ := newTestRouter(t)

	// Ranking with no args at all: mode defaults to day, limit to 10.
	res, failure := r.Handle(context.Background(), KindIllustRanking, nil)
	if failure != nil {
		t.Fatal(failure)
	}
	if items := res.([]pixivapi.Illust); len(items) != 1 {
		t.Fatalf("result: %#v", res)
	}
}
