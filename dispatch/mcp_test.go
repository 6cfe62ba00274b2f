package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pixivmcp/pixivapi"
)

var testMCPImpl = &mcp.Implementation{Name: "pixivmcp-test", Version: "0.1.0"}

func mcpSession(t *testing.T) (*mcp.ClientSession, *stubAPI, *stubAPI) {
	t.Helper()
	router, std, byp := newTestRouter(t)
	srv := mcp.NewServer(testMCPImpl, nil)
	router.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session, std, byp
}

func TestMCP_ListsAllTools(t *testing.T) {
	session, _, _ := mcpSession(t)

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, tool := range res.Tools {
		if !strings.HasPrefix(tool.Name, ToolPrefix) {
			t.Errorf("tool %q missing prefix", tool.Name)
		}
		names[tool.Name] = true
	}
	for _, kind := range Kinds() {
		if !names[ToolPrefix+string(kind)] {
			t.Errorf("tool for %s not registered", kind)
		}
	}
}

func TestMCP_SearchIllust(t *testing.T) {
	session, _, _ := mcpSession(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "pixiv_search_illust",
		Arguments: map[string]any{"word": "風景"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("tool error: %v", err)
	}

	tc := result.Content[0].(*mcp.TextContent)
	var items []pixivapi.Illust
	if err := json.Unmarshal([]byte(tc.Text), &items); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(items) != 1 || items[0].Title != "from-standard" {
		t.Fatalf("items: %+v", items)
	}
}

func TestMCP_ValidationErrorIsToolError(t *testing.T) {
	session, _, _ := mcpSession(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "pixiv_search_illust",
		Arguments: map[string]any{}, // missing word
	})
	if err != nil {
		t.Fatal(err)
	}
	terr := result.GetError()
	if terr == nil {
		t.Fatal("expected tool error for invalid arguments")
	}
	if !strings.Contains(terr.Error(), "validation") {
		t.Fatalf("tool error should carry the failure kind: %v", terr)
	}
}

func TestMCP_UpstreamFailureKeepsSessionAlive(t *testing.T) {
	session, std, byp := mcpSession(t)
	std.err = &pixivapi.StatusError{Code: http.StatusNotFound, Body: "gone"}
	byp.err = std.err

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "pixiv_illust_detail",
		Arguments: map[string]any{"illust_id": 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.GetError() == nil {
		t.Fatal("expected tool error")
	}

	// The session must survive a failed call.
	std.err = nil
	result, err = session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "pixiv_illust_detail",
		Arguments: map[string]any{"illust_id": 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	if terr := result.GetError(); terr != nil {
		t.Fatalf("second call failed: %v", terr)
	}
}
