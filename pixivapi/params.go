package pixivapi

// Parameter structs for the list-shaped operations. Validation of ranges and
// enumerations happens in the dispatch layer; these carry already-validated
// values.

// SearchIllustParams controls illustration search.
type SearchIllustParams struct {
	Word         string
	SearchTarget string // partial_match_for_tags | exact_match_for_tags | title_and_caption
	Sort         string // date_desc | date_asc | popular_desc
	Duration     string // within_last_day | within_last_week | within_last_month | ""
	Limit        int
}

// SearchNovelParams controls novel search.
type SearchNovelParams struct {
	Word         string
	SearchTarget string
	Sort         string
	Duration     string
	Limit        int
}

// SearchUserParams controls user search.
type SearchUserParams struct {
	Word  string
	Limit int
}

// RankingParams controls illust_ranking and novel_ranking.
type RankingParams struct {
	Mode  string // day | week | month | day_male | day_female | week_original | week_rookie | day_manga
	Date  string // YYYY-MM-DD or "" for latest
	Limit int
}

// UserWorksParams controls user_illusts and user_novels.
type UserWorksParams struct {
	UserID int64
	Type   string // illust | manga (user_illusts only)
	Limit  int
}

// DownloadParams controls download_illust.
type DownloadParams struct {
	IllustID int64
	Quality  string // large | medium | original
	Dir      string // subdirectory under the configured download root, optional
}
