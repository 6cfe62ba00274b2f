package dispatch

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pixivmcp/kit"
)

// ToolPrefix namespaces the MCP tool names.
const ToolPrefix = "pixiv_"

// RegisterMCP exposes every operation kind as an MCP tool named
// pixiv_<kind>. Arguments pass through Handle untouched, so MCP calls and
// the REST surface share one validation path.
func (r *Router) RegisterMCP(srv *mcp.Server) {
	for _, kind := range Kinds() {
		r.registerTool(srv, kind)
	}
}

func (r *Router) registerTool(srv *mcp.Server, kind Kind) {
	tool := &mcp.Tool{
		Name:        ToolPrefix + string(kind),
		Description: toolDescriptions[kind],
		InputSchema: toolSchema(kind),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		args, _ := req.(json.RawMessage)
		res, failure := r.Handle(ctx, kind, args)
		if failure != nil {
			return nil, failure
		}
		return res, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: json.RawMessage(req.Params.Arguments)}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// ToolInfo describes one registered tool for the HTTP catalog endpoint.
type ToolInfo struct {
	Name        string         `json:"name"`
	Kind        string         `json:"kind"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolCatalog lists every tool with its schema, in registration order.
func ToolCatalog() []ToolInfo {
	kinds := Kinds()
	out := make([]ToolInfo, 0, len(kinds))
	for _, kind := range kinds {
		out = append(out, ToolInfo{
			Name:        ToolPrefix + string(kind),
			Kind:        string(kind),
			Description: toolDescriptions[kind],
			InputSchema: toolSchema(kind),
		})
	}
	return out
}

var toolDescriptions = map[Kind]string{
	KindSearchIllust:   "Search Pixiv illustrations by keyword or tag, with sort order and time range.",
	KindSearchNovel:    "Search Pixiv novels by keyword or tag, with sort order and time range.",
	KindSearchUser:     "Search Pixiv users by name, returning each user with a few recent works.",
	KindIllustRanking:  "Fetch the Pixiv illustration ranking (daily, weekly, monthly and themed boards).",
	KindNovelRanking:   "Fetch the Pixiv novel ranking (daily, weekly, monthly boards).",
	KindIllustDetail:   "Fetch full details for one illustration: tags, author, statistics, page URLs.",
	KindUserDetail:     "Fetch a user's profile: counters, region, webpage.",
	KindNovelDetail:    "Fetch full details for one novel: tags, author, length, statistics.",
	KindNovelText:      "Fetch the complete text of a novel.",
	KindDownloadIllust: "Download an illustration's image files to the server's download directory.",
	KindUserIllusts:    "List a user's illustrations or manga.",
	KindUserNovels:     "List a user's novels.",
	KindTrendingTags:   "Fetch the currently trending illustration tags.",
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// Shared property fragments.
var (
	pathProp = map[string]any{
		"type":        "string",
		"enum":        []string{"standard", "bypass"},
		"description": "Force a connection path instead of the routed default",
	}
	limitProp = func(def, max int) map[string]any {
		return map[string]any{
			"type": "integer", "minimum": 1, "maximum": max, "default": def,
			"description": "Maximum number of results",
		}
	}
)

func toolSchema(kind Kind) map[string]any {
	switch kind {
	case KindSearchIllust, KindSearchNovel:
		return inputSchema(map[string]any{
			"word": map[string]any{"type": "string", "description": "Search keyword (Japanese, English or Chinese)"},
			"search_target": map[string]any{
				"type": "string",
				"enum": []string{"partial_match_for_tags", "exact_match_for_tags", "title_and_caption"},
			},
			"sort": map[string]any{
				"type": "string",
				"enum": []string{"date_desc", "date_asc", "popular_desc"},
			},
			"duration": map[string]any{
				"type": "string",
				"enum": []string{"within_last_day", "within_last_week", "within_last_month"},
			},
			"limit": limitProp(10, 30),
			"path":  pathProp,
		}, []string{"word"})

	case KindSearchUser:
		return inputSchema(map[string]any{
			"word":  map[string]any{"type": "string", "description": "User name to search for"},
			"limit": limitProp(10, 30),
			"path":  pathProp,
		}, []string{"word"})

	case KindIllustRanking, KindNovelRanking:
		return inputSchema(map[string]any{
			"mode": map[string]any{
				"type": "string",
				"enum": []string{"day", "week", "month", "day_male", "day_female",
					"week_original", "week_rookie", "day_manga"},
				"default": "day",
			},
			"date":  map[string]any{"type": "string", "description": "Ranking date YYYY-MM-DD, latest when omitted"},
			"limit": limitProp(10, 50),
			"path":  pathProp,
		}, nil)

	case KindIllustDetail:
		return inputSchema(map[string]any{
			"illust_id": map[string]any{"type": "integer", "description": "Illustration ID"},
			"path":      pathProp,
		}, []string{"illust_id"})

	case KindUserDetail:
		return inputSchema(map[string]any{
			"user_id": map[string]any{"type": "integer", "description": "User ID"},
			"path":    pathProp,
		}, []string{"user_id"})

	case KindNovelDetail, KindNovelText:
		return inputSchema(map[string]any{
			"novel_id": map[string]any{"type": "integer", "description": "Novel ID"},
			"path":     pathProp,
		}, []string{"novel_id"})

	case KindDownloadIllust:
		return inputSchema(map[string]any{
			"illust_id": map[string]any{"type": "integer", "description": "Illustration ID"},
			"quality": map[string]any{
				"type": "string", "enum": []string{"large", "medium", "original"}, "default": "large",
			},
			"save_dir": map[string]any{"type": "string", "description": "Subdirectory under the download root"},
			"path":     pathProp,
		}, []string{"illust_id"})

	case KindUserIllusts:
		return inputSchema(map[string]any{
			"user_id": map[string]any{"type": "integer", "description": "User ID"},
			"type":    map[string]any{"type": "string", "enum": []string{"illust", "manga"}, "default": "illust"},
			"limit":   limitProp(10, 30),
			"path":    pathProp,
		}, []string{"user_id"})

	case KindUserNovels:
		return inputSchema(map[string]any{
			"user_id": map[string]any{"type": "integer", "description": "User ID"},
			"limit":   limitProp(10, 30),
			"path":    pathProp,
		}, []string{"user_id"})

	case KindTrendingTags:
		return inputSchema(map[string]any{
			"limit": limitProp(10, 50),
			"path":  pathProp,
		}, nil)
	}
	return inputSchema(map[string]any{}, nil)
}
