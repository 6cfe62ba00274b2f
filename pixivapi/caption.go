package pixivapi

import (
	"strings"
	"sync"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"
)

// captionPolicy strips everything Pixiv captions should not carry into chat
// clients: scripts, event handlers, embedded styles. UGC policy keeps the
// formatting tags (links, br, emphasis) that captions legitimately use.
var captionPolicy = sync.OnceValue(func() *bluemonday.Policy {
	return bluemonday.UGCPolicy()
})

// RenderCaption sanitizes an upstream HTML caption and renders it as
// markdown. A conversion failure falls back to the sanitized HTML rather
// than dropping the caption.
func RenderCaption(html string) string {
	if html == "" {
		return ""
	}
	clean := captionPolicy().Sanitize(html)
	md, err := htmltomarkdown.ConvertString(clean)
	if err != nil {
		return strings.TrimSpace(clean)
	}
	return strings.TrimSpace(md)
}
