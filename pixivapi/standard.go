package pixivapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	xproxy "golang.org/x/net/proxy"

	"github.com/hazyhaar/pixivmcp/safeio"
)

// NewStandard builds the normal-transport client: direct HTTPS to
// app-api.pixiv.net, optionally through an operator-configured HTTP or
// SOCKS5 proxy.
func NewStandard(timeout time.Duration, proxyURL string, opts ...Option) (*Client, error) {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	}

	if proxyURL != "" {
		if err := safeio.ValidateURL(proxyURL); err != nil {
			return nil, fmt.Errorf("pixivapi: proxy: %w", err)
		}
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("pixivapi: proxy: %w", err)
		}
		switch u.Scheme {
		case "http", "https":
			tr.Proxy = http.ProxyURL(u)
		case "socks5":
			dialer, err := xproxy.FromURL(u, xproxy.Direct)
			if err != nil {
				return nil, fmt.Errorf("pixivapi: socks5 proxy: %w", err)
			}
			tr.Proxy = nil
			tr.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				if cd, ok := dialer.(xproxy.ContextDialer); ok {
					return cd.DialContext(ctx, network, addr)
				}
				return dialer.Dial(network, addr)
			}
		default:
			return nil, fmt.Errorf("pixivapi: unsupported proxy scheme %q", u.Scheme)
		}
	}

	hc := &http.Client{Transport: tr, Timeout: timeout}
	return newClient(hc, opts...), nil
}
