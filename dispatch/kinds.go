// Package dispatch validates incoming tool calls, routes them through the
// dual-path adapter, and normalizes every failure into a uniform shape.
package dispatch

import "fmt"

// Kind is a closed enumeration of the supported operations. Anything else
// is rejected before any backend contact.
type Kind string

const (
	KindSearchIllust   Kind = "search_illust"
	KindSearchNovel    Kind = "search_novel"
	KindSearchUser     Kind = "search_user"
	KindIllustRanking  Kind = "illust_ranking"
	KindNovelRanking   Kind = "novel_ranking"
	KindIllustDetail   Kind = "illust_detail"
	KindUserDetail     Kind = "user_detail"
	KindNovelDetail    Kind = "novel_detail"
	KindNovelText      Kind = "novel_text"
	KindDownloadIllust Kind = "download_illust"
	KindUserIllusts    Kind = "user_illusts"
	KindUserNovels     Kind = "user_novels"
	KindTrendingTags   Kind = "trending_tags"
)

// Kinds returns all operations in stable order.
func Kinds() []Kind {
	return []Kind{
		KindSearchIllust, KindSearchNovel, KindSearchUser,
		KindIllustRanking, KindNovelRanking,
		KindIllustDetail, KindUserDetail, KindNovelDetail,
		KindNovelText, KindDownloadIllust,
		KindUserIllusts, KindUserNovels,
		KindTrendingTags,
	}
}

// KindStrings returns the operations as route-table keys.
func KindStrings() []string {
	kinds := Kinds()
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

// ParseKind validates an operation name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", &ValidationError{Field: "kind", Msg: fmt.Sprintf("unknown operation %q", s)}
}

// ValidationError rejects a request before any backend contact.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "dispatch: " + e.Msg
	}
	return fmt.Sprintf("dispatch: %s: %s", e.Field, e.Msg)
}
