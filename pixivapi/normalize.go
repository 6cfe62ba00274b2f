package pixivapi

// Raw upstream shapes and their normalization into the exported types.
// Captions arrive as HTML fragments and are rendered to markdown here, so
// consumers never see upstream markup regardless of which path answered.

type rawImageURLs struct {
	SquareMedium string `json:"square_medium"`
	Medium       string `json:"medium"`
	Large        string `json:"large"`
	Original     string `json:"original"`
}

func (r rawImageURLs) normalize() ImageURLs {
	return ImageURLs{
		SquareMedium: r.SquareMedium,
		Medium:       r.Medium,
		Large:        r.Large,
		Original:     r.Original,
	}
}

type rawTag struct {
	Name           string `json:"name"`
	TranslatedName string `json:"translated_name"`
}

type rawUser struct {
	ID               int64          `json:"id"`
	Name             string         `json:"name"`
	Account          string         `json:"account"`
	Comment          string         `json:"comment"`
	ProfileImageURLs map[string]any `json:"profile_image_urls"`
}

func (r rawUser) ref() UserRef {
	return UserRef{ID: r.ID, Name: r.Name, Account: r.Account}
}

type rawProfile struct {
	Webpage                    string `json:"webpage"`
	Region                     string `json:"region"`
	TotalFollowUsers           int64  `json:"total_follow_users"`
	TotalIllusts               int64  `json:"total_illusts"`
	TotalManga                 int64  `json:"total_manga"`
	TotalNovels                int64  `json:"total_novels"`
	TotalIllustBookmarksPublic int64  `json:"total_illust_bookmarks_public"`
}

type rawIllust struct {
	ID             int64        `json:"id"`
	Title          string       `json:"title"`
	Caption        string       `json:"caption"`
	User           rawUser      `json:"user"`
	Tags           []rawTag     `json:"tags"`
	CreateDate     string       `json:"create_date"`
	PageCount      int          `json:"page_count"`
	Width          int          `json:"width"`
	Height         int          `json:"height"`
	SanityLevel    int          `json:"sanity_level"`
	XRestrict      int          `json:"x_restrict"`
	TotalView      int64        `json:"total_view"`
	TotalBookmarks int64        `json:"total_bookmarks"`
	IsBookmarked   bool         `json:"is_bookmarked"`
	ImageURLs      rawImageURLs `json:"image_urls"`
	MetaSinglePage struct {
		OriginalImageURL string `json:"original_image_url"`
	} `json:"meta_single_page"`
	MetaPages []struct {
		ImageURLs rawImageURLs `json:"image_urls"`
	} `json:"meta_pages"`
}

func (r *rawIllust) normalize() Illust {
	urls := r.ImageURLs.normalize()
	if urls.Original == "" {
		urls.Original = r.MetaSinglePage.OriginalImageURL
	}
	out := Illust{
		ID:             r.ID,
		Title:          r.Title,
		Caption:        RenderCaption(r.Caption),
		User:           r.User.ref(),
		Tags:           normalizeTags(r.Tags),
		CreateDate:     r.CreateDate,
		PageCount:      r.PageCount,
		Width:          r.Width,
		Height:         r.Height,
		SanityLevel:    r.SanityLevel,
		XRestrict:      r.XRestrict,
		TotalView:      r.TotalView,
		TotalBookmarks: r.TotalBookmarks,
		IsBookmarked:   r.IsBookmarked,
		URLs:           urls,
		IsR18:          isR18(r.Tags),
	}
	for _, p := range r.MetaPages {
		out.MetaPages = append(out.MetaPages, p.ImageURLs.normalize())
	}
	return out
}

type rawNovel struct {
	ID             int64    `json:"id"`
	Title          string   `json:"title"`
	Caption        string   `json:"caption"`
	User           rawUser  `json:"user"`
	Tags           []rawTag `json:"tags"`
	CreateDate     string   `json:"create_date"`
	PageCount      int      `json:"page_count"`
	TextLength     int      `json:"text_length"`
	TotalView      int64    `json:"total_view"`
	TotalBookmarks int64    `json:"total_bookmarks"`
	XRestrict      int      `json:"x_restrict"`
	IsOriginal     bool     `json:"is_original"`
}

func (r *rawNovel) normalize() Novel {
	return Novel{
		ID:             r.ID,
		Title:          r.Title,
		Caption:        RenderCaption(r.Caption),
		User:           r.User.ref(),
		Tags:           normalizeTags(r.Tags),
		CreateDate:     r.CreateDate,
		PageCount:      r.PageCount,
		TextLength:     r.TextLength,
		TotalView:      r.TotalView,
		TotalBookmarks: r.TotalBookmarks,
		XRestrict:      r.XRestrict,
		IsOriginal:     r.IsOriginal,
		IsR18:          isR18(r.Tags),
	}
}

func normalizeTags(raw []rawTag) []Tag {
	out := make([]Tag, 0, len(raw))
	for _, t := range raw {
		out = append(out, Tag{Name: t.Name, TranslatedName: t.TranslatedName})
	}
	return out
}

// isR18 mirrors the platform's convention: restriction is expressed as a tag.
func isR18(tags []rawTag) bool {
	for _, t := range tags {
		if t.Name == "R-18" || t.Name == "R-18G" {
			return true
		}
	}
	return false
}

func normalizeIllusts(raw []rawIllust, limit int, ranked bool) []Illust {
	if limit > 0 && len(raw) > limit {
		raw = raw[:limit]
	}
	out := make([]Illust, 0, len(raw))
	for i := range raw {
		illust := raw[i].normalize()
		if ranked {
			illust.Rank = i + 1
		}
		out = append(out, illust)
	}
	return out
}

func normalizeNovels(raw []rawNovel, limit int, ranked bool) []Novel {
	if limit > 0 && len(raw) > limit {
		raw = raw[:limit]
	}
	out := make([]Novel, 0, len(raw))
	for i := range raw {
		novel := raw[i].normalize()
		if ranked {
			novel.Rank = i + 1
		}
		out = append(out, novel)
	}
	return out
}
