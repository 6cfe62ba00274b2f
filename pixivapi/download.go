package pixivapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/hazyhaar/pixivmcp/safeio"
)

// Download fetches an illustration's image files into the configured
// download directory. Multi-page works are fetched page by page; the chosen
// quality falls back to large when the variant is missing.
func (c *Client) Download(ctx context.Context, tok string, p DownloadParams) (*DownloadResult, error) {
	illust, err := c.IllustDetail(ctx, tok, p.IllustID)
	if err != nil {
		return nil, err
	}

	dir := c.downloadDir
	if p.Dir != "" {
		safe, err := safeio.SafePath(c.downloadDir, p.Dir)
		if err != nil {
			return nil, err
		}
		dir = safe
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pixivapi: download dir: %w", err)
	}

	quality := p.Quality
	if quality == "" {
		quality = "large"
	}

	var files []DownloadedFile
	if len(illust.MetaPages) > 0 {
		for i, page := range illust.MetaPages {
			u := pickQuality(page, quality)
			if u == "" {
				continue
			}
			name := fmt.Sprintf("%d_p%d%s", illust.ID, i, extOf(u))
			f, err := c.fetchImage(ctx, u, filepath.Join(dir, name))
			if err != nil {
				return nil, err
			}
			f.Page = i
			files = append(files, *f)
		}
	} else {
		u := pickQuality(illust.URLs, quality)
		if u == "" {
			return nil, fmt.Errorf("pixivapi: illust %d has no %s image", illust.ID, quality)
		}
		name := fmt.Sprintf("%d%s", illust.ID, extOf(u))
		f, err := c.fetchImage(ctx, u, filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}

	return &DownloadResult{
		IllustID:   illust.ID,
		Title:      illust.Title,
		Dir:        dir,
		Quality:    quality,
		Files:      files,
		TotalFiles: len(files),
	}, nil
}

func pickQuality(urls ImageURLs, quality string) string {
	var u string
	switch quality {
	case "original":
		u = urls.Original
	case "medium":
		u = urls.Medium
	default:
		u = urls.Large
	}
	if u == "" {
		u = urls.Large
	}
	return u
}

// fetchImage downloads one image. The i.pximg.net CDN requires a Referer
// pointing at the app origin or it answers 403.
func (c *Client) fetchImage(ctx context.Context, imageURL, dest string) (*DownloadedFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("pixivapi: build image request: %w", err)
	}
	req.Header.Set("Referer", DefaultBaseURL+"/")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pixivapi: fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: "image fetch failed"}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return nil, fmt.Errorf("pixivapi: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, safeio.MaxImageBody+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("pixivapi: write image: %w", err)
	}
	if n > safeio.MaxImageBody {
		return nil, fmt.Errorf("pixivapi: image exceeds %d bytes", safeio.MaxImageBody)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return nil, fmt.Errorf("pixivapi: rename image: %w", err)
	}

	return &DownloadedFile{
		Filename: filepath.Base(dest),
		Path:     dest,
		URL:      imageURL,
		Bytes:    n,
	}, nil
}

// extOf extracts the file extension from an image URL, ignoring any query
// string the CDN appends.
func extOf(imageURL string) string {
	u, err := url.Parse(imageURL)
	if err != nil {
		return path.Ext(imageURL)
	}
	return path.Ext(u.Path)
}
