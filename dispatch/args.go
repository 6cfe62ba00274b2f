package dispatch

import (
	"regexp"

	"github.com/hazyhaar/pixivmcp/pixivapi"
)

// Argument structs decoded from tool-call JSON. Defaults mirror the mobile
// client; limits are range-checked here so the adapter never sees a bad
// request.

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func limitOr(v, def, max int) (int, error) {
	if v == 0 {
		return def, nil
	}
	if v < 1 || v > max {
		return 0, &ValidationError{Field: "limit", Msg: "out of range"}
	}
	return v, nil
}

func oneOf(field, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return &ValidationError{Field: field, Msg: "unsupported value " + v}
}

type searchIllustArgs struct {
	Word         string `json:"word"`
	SearchTarget string `json:"search_target"`
	Sort         string `json:"sort"`
	Duration     string `json:"duration"`
	Limit        int    `json:"limit"`
	Path         string `json:"path,omitempty"`
}

func (a *searchIllustArgs) validate() (pixivapi.SearchIllustParams, error) {
	var p pixivapi.SearchIllustParams
	if a.Word == "" {
		return p, &ValidationError{Field: "word", Msg: "required"}
	}
	if a.SearchTarget == "" {
		a.SearchTarget = "partial_match_for_tags"
	}
	if err := oneOf("search_target", a.SearchTarget,
		"partial_match_for_tags", "exact_match_for_tags", "title_and_caption"); err != nil {
		return p, err
	}
	if a.Sort == "" {
		a.Sort = "date_desc"
	}
	if err := oneOf("sort", a.Sort, "date_desc", "date_asc", "popular_desc"); err != nil {
		return p, err
	}
	if a.Duration != "" {
		if err := oneOf("duration", a.Duration,
			"within_last_day", "within_last_week", "within_last_month"); err != nil {
			return p, err
		}
	}
	limit, err := limitOr(a.Limit, 10, 30)
	if err != nil {
		return p, err
	}
	return pixivapi.SearchIllustParams{
		Word: a.Word, SearchTarget: a.SearchTarget, Sort: a.Sort,
		Duration: a.Duration, Limit: limit,
	}, nil
}

type searchNovelArgs searchIllustArgs

func (a *searchNovelArgs) validate() (pixivapi.SearchNovelParams, error) {
	p, err := (*searchIllustArgs)(a).validate()
	if err != nil {
		return pixivapi.SearchNovelParams{}, err
	}
	return pixivapi.SearchNovelParams(p), nil
}

type searchUserArgs struct {
	Word  string `json:"word"`
	Limit int    `json:"limit"`
	Path  string `json:"path,omitempty"`
}

func (a *searchUserArgs) validate() (pixivapi.SearchUserParams, error) {
	var p pixivapi.SearchUserParams
	if a.Word == "" {
		return p, &ValidationError{Field: "word", Msg: "required"}
	}
	limit, err := limitOr(a.Limit, 10, 30)
	if err != nil {
		return p, err
	}
	return pixivapi.SearchUserParams{Word: a.Word, Limit: limit}, nil
}

type rankingArgs struct {
	Mode  string `json:"mode"`
	Date  string `json:"date"`
	Limit int    `json:"limit"`
	Path  string `json:"path,omitempty"`
}

func (a *rankingArgs) validate() (pixivapi.RankingParams, error) {
	var p pixivapi.RankingParams
	if a.Mode == "" {
		a.Mode = "day"
	}
	if err := oneOf("mode", a.Mode,
		"day", "week", "month", "day_male", "day_female",
		"week_original", "week_rookie", "day_manga"); err != nil {
		return p, err
	}
	if a.Date != "" && !dateRe.MatchString(a.Date) {
		return p, &ValidationError{Field: "date", Msg: "must be YYYY-MM-DD"}
	}
	limit, err := limitOr(a.Limit, 10, 50)
	if err != nil {
		return p, err
	}
	return pixivapi.RankingParams{Mode: a.Mode, Date: a.Date, Limit: limit}, nil
}

type idArgs struct {
	IllustID int64  `json:"illust_id,omitempty"`
	UserID   int64  `json:"user_id,omitempty"`
	NovelID  int64  `json:"novel_id,omitempty"`
	Path     string `json:"path,omitempty"`
}

func (a *idArgs) requireIllust() (int64, error) {
	if a.IllustID <= 0 {
		return 0, &ValidationError{Field: "illust_id", Msg: "required"}
	}
	return a.IllustID, nil
}

func (a *idArgs) requireUser() (int64, error) {
	if a.UserID <= 0 {
		return 0, &ValidationError{Field: "user_id", Msg: "required"}
	}
	return a.UserID, nil
}

func (a *idArgs) requireNovel() (int64, error) {
	if a.NovelID <= 0 {
		return 0, &ValidationError{Field: "novel_id", Msg: "required"}
	}
	return a.NovelID, nil
}

type userWorksArgs struct {
	UserID int64  `json:"user_id"`
	Type   string `json:"type"`
	Limit  int    `json:"limit"`
	Path   string `json:"path,omitempty"`
}

func (a *userWorksArgs) validate() (pixivapi.UserWorksParams, error) {
	var p pixivapi.UserWorksParams
	if a.UserID <= 0 {
		return p, &ValidationError{Field: "user_id", Msg: "required"}
	}
	if a.Type == "" {
		a.Type = "illust"
	}
	if err := oneOf("type", a.Type, "illust", "manga"); err != nil {
		return p, err
	}
	limit, err := limitOr(a.Limit, 10, 30)
	if err != nil {
		return p, err
	}
	return pixivapi.UserWorksParams{UserID: a.UserID, Type: a.Type, Limit: limit}, nil
}

type downloadArgs struct {
	IllustID int64  `json:"illust_id"`
	Quality  string `json:"quality"`
	SaveDir  string `json:"save_dir"`
	Path     string `json:"path,omitempty"`
}

func (a *downloadArgs) validate() (pixivapi.DownloadParams, error) {
	var p pixivapi.DownloadParams
	if a.IllustID <= 0 {
		return p, &ValidationError{Field: "illust_id", Msg: "required"}
	}
	if a.Quality == "" {
		a.Quality = "large"
	}
	if err := oneOf("quality", a.Quality, "large", "medium", "original"); err != nil {
		return p, err
	}
	return pixivapi.DownloadParams{IllustID: a.IllustID, Quality: a.Quality, Dir: a.SaveDir}, nil
}

type trendingTagsArgs struct {
	Limit int    `json:"limit"`
	Path  string `json:"path,omitempty"`
}

func (a *trendingTagsArgs) validate() (int, error) {
	return limitOr(a.Limit, 10, 50)
}
