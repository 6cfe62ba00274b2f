package pixivapi

// Types returned by the upstream app API, normalized: identical shapes from
// either connection path, captions rendered to markdown, R-18 derived from
// tags.

// ImageURLs holds the size variants Pixiv serves for a single image.
type ImageURLs struct {
	SquareMedium string `json:"square_medium,omitempty"`
	Medium       string `json:"medium,omitempty"`
	Large        string `json:"large,omitempty"`
	Original     string `json:"original,omitempty"`
}

// Tag is a work tag with its optional translation.
type Tag struct {
	Name           string `json:"name"`
	TranslatedName string `json:"translated_name,omitempty"`
}

// UserRef is the embedded author reference carried on works.
type UserRef struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Account string `json:"account"`
}

// Illust is a normalized illustration or manga record.
type Illust struct {
	ID             int64       `json:"id"`
	Title          string      `json:"title"`
	Caption        string      `json:"caption,omitempty"`
	User           UserRef     `json:"user"`
	Tags           []Tag       `json:"tags"`
	CreateDate     string      `json:"create_date"`
	PageCount      int         `json:"page_count"`
	Width          int         `json:"width"`
	Height         int         `json:"height"`
	SanityLevel    int         `json:"sanity_level,omitempty"`
	XRestrict      int         `json:"x_restrict,omitempty"`
	TotalView      int64       `json:"total_view"`
	TotalBookmarks int64       `json:"total_bookmarks"`
	IsBookmarked   bool        `json:"is_bookmarked,omitempty"`
	URLs           ImageURLs   `json:"urls"`
	MetaPages      []ImageURLs `json:"meta_pages,omitempty"`
	IsR18          bool        `json:"is_r18"`
	Rank           int         `json:"rank,omitempty"`
}

// Novel is a normalized novel record.
type Novel struct {
	ID             int64   `json:"id"`
	Title          string  `json:"title"`
	Caption        string  `json:"caption,omitempty"`
	User           UserRef `json:"user"`
	Tags           []Tag   `json:"tags"`
	CreateDate     string  `json:"create_date"`
	PageCount      int     `json:"page_count"`
	TextLength     int     `json:"text_length"`
	TotalView      int64   `json:"total_view"`
	TotalBookmarks int64   `json:"total_bookmarks"`
	XRestrict      int     `json:"x_restrict,omitempty"`
	IsOriginal     bool    `json:"is_original,omitempty"`
	IsR18          bool    `json:"is_r18"`
	Rank           int     `json:"rank,omitempty"`
}

// NovelText is the full body of a novel plus its detail record.
type NovelText struct {
	NovelID    int64  `json:"novel_id"`
	Text       string `json:"text"`
	TextLength int    `json:"text_length"`
	Novel      *Novel `json:"novel,omitempty"`
}

// UserProfile is the expanded user-detail record.
type UserProfile struct {
	User    UserRef        `json:"user"`
	Comment string         `json:"comment,omitempty"`
	Profile Profile        `json:"profile"`
	Avatar  map[string]any `json:"profile_image_urls,omitempty"`
}

// Profile carries the public profile counters.
type Profile struct {
	Webpage          string `json:"webpage,omitempty"`
	Region           string `json:"region,omitempty"`
	TotalFollowUsers int64  `json:"total_follow_users"`
	TotalIllusts     int64  `json:"total_illusts"`
	TotalManga       int64  `json:"total_manga"`
	TotalNovels      int64  `json:"total_novels"`
	TotalBookmarks   int64  `json:"total_illust_bookmarks_public"`
}

// UserPreview is a search_user result: the user plus a few recent works.
type UserPreview struct {
	User    UserRef  `json:"user"`
	Illusts []Illust `json:"illusts,omitempty"`
	Novels  []Novel  `json:"novels,omitempty"`
}

// TrendTag is one entry from the trending-tags feed.
type TrendTag struct {
	Name           string  `json:"name"`
	TranslatedName string  `json:"translated_name,omitempty"`
	Illust         *Illust `json:"illust,omitempty"`
}

// DownloadedFile describes one image written to disk.
type DownloadedFile struct {
	Page     int    `json:"page"`
	Filename string `json:"filename"`
	Path     string `json:"filepath"`
	URL      string `json:"url"`
	Bytes    int64  `json:"bytes"`
}

// DownloadResult is the outcome of a download_illust call.
type DownloadResult struct {
	IllustID   int64            `json:"illust_id"`
	Title      string           `json:"title"`
	Dir        string           `json:"save_directory"`
	Quality    string           `json:"quality"`
	Files      []DownloadedFile `json:"files"`
	TotalFiles int              `json:"total_files"`
}
