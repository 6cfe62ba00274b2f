package pixivapi

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/pixivmcp/safeio"
)

// NewBypass builds the SNI-evasion client. Connections go straight to
// pinned IPs for app-api.pixiv.net with an empty TLS server name, so
// SNI-based filtering never sees the hostname. Certificate verification
// still runs against the expected hostname — only the SNI field is blank.
//
// When ips is empty the addresses are resolved once at startup via
// DNS-over-HTTPS, which survives poisoned local resolvers.
func NewBypass(ctx context.Context, ips []string, timeout time.Duration, opts ...Option) (*Client, error) {
	if len(ips) == 0 {
		resolved, err := resolveDoH(ctx, APIHost)
		if err != nil {
			return nil, fmt.Errorf("pixivapi: bypass: resolve %s: %w", APIHost, err)
		}
		ips = resolved
	}
	for _, ip := range ips {
		if net.ParseIP(ip) == nil {
			return nil, fmt.Errorf("pixivapi: bypass: %q is not an IP address", ip)
		}
	}

	var next atomic.Uint64
	tr := &http.Transport{
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			target, pinned, err := dialTarget(addr, ips, &next)
			if err != nil {
				return nil, err
			}
			if !pinned {
				// Only the API edge is SNI-filtered. The image CDN and any
				// other host get a regular TLS dial to the requested address,
				// otherwise the request would land on the wrong server.
				d := &tls.Dialer{NetDialer: &net.Dialer{Timeout: 10 * time.Second}}
				return d.DialContext(ctx, network, target)
			}
			d := &net.Dialer{Timeout: 10 * time.Second}
			raw, err := d.DialContext(ctx, "tcp", target)
			if err != nil {
				return nil, err
			}
			conn := tls.Client(raw, &tls.Config{
				// Blank SNI is the whole point of this path.
				ServerName:            "",
				InsecureSkipVerify:    true,
				VerifyPeerCertificate: verifyHostChain(APIHost),
			})
			if err := conn.HandshakeContext(ctx); err != nil {
				raw.Close()
				return nil, err
			}
			return conn, nil
		},
	}

	hc := &http.Client{Transport: tr, Timeout: timeout}
	return newClient(hc, opts...), nil
}

// dialTarget decides where one bypass connection goes. Requests for the
// API edge rotate over the pinned IPs, keeping the requested port; every
// other host dials the address as given.
func dialTarget(addr string, ips []string, next *atomic.Uint64) (target string, pinned bool, err error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", false, err
	}
	if host != APIHost {
		return addr, false, nil
	}
	ip := ips[next.Add(1)%uint64(len(ips))]
	return net.JoinHostPort(ip, port), true, nil
}

// verifyHostChain replaces the verification InsecureSkipVerify disabled:
// full chain validation against the system roots for the expected hostname.
func verifyHostChain(host string) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("pixivapi: bypass: server sent no certificates")
		}
		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			c, err := x509.ParseCertificate(raw)
			if err != nil {
				return fmt.Errorf("pixivapi: bypass: parse certificate: %w", err)
			}
			certs = append(certs, c)
		}
		inter := x509.NewCertPool()
		for _, c := range certs[1:] {
			inter.AddCert(c)
		}
		_, err := certs[0].Verify(x509.VerifyOptions{
			DNSName:       host,
			Intermediates: inter,
		})
		return err
	}
}

// resolveDoH resolves host's A records via Cloudflare DNS-over-HTTPS.
func resolveDoH(ctx context.Context, host string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://1.1.1.1/dns-query?name="+host+"&type=A", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/dns-json")

	hc := &http.Client{Timeout: 10 * time.Second}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := safeio.LimitedReadAll(resp.Body, safeio.MaxResponseBody)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("doh status %d", resp.StatusCode)
	}

	var payload struct {
		Answer []struct {
			Type int    `json:"type"`
			Data string `json:"data"`
		} `json:"Answer"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	var ips []string
	for _, a := range payload.Answer {
		if a.Type == 1 && net.ParseIP(a.Data) != nil { // A record
			ips = append(ips, a.Data)
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no A records for %s", host)
	}
	return ips, nil
}
