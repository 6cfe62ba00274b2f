package dualpath

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"

	"github.com/hazyhaar/pixivmcp/pixivapi"
	"github.com/hazyhaar/pixivmcp/token"
)

// Class is the failure classification that drives the retry algorithm.
type Class int

const (
	// ClassUpstream is a genuine upstream failure (not found, permission
	// denied, malformed response). Switching paths cannot help.
	ClassUpstream Class = iota
	// ClassAuth means the credential was rejected; one refresh-and-retry on
	// the same path is warranted.
	ClassAuth
	// ClassPath means the path itself is suspect (timeout, TLS failure,
	// blocking-middlebox status); the other path may succeed.
	ClassPath
	// ClassFatalAuth is a rejected refresh token. No retry can help and the
	// operator must re-provision the credential.
	ClassFatalAuth
)

func (c Class) String() string {
	switch c {
	case ClassAuth:
		return "auth"
	case ClassPath:
		return "path"
	case ClassFatalAuth:
		return "fatal_auth"
	default:
		return "upstream"
	}
}

// classify maps an attempt error to its Class. The path-related HTTP status
// set comes from the route table so operators can tune it live.
func (t *RouteTable) classify(err error) Class {
	var invalid *token.InvalidTokenError
	if errors.As(err, &invalid) {
		return ClassFatalAuth
	}

	var se *pixivapi.StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusUnauthorized:
			return ClassAuth
		case t.IsPathStatus(se.Code):
			return ClassPath
		default:
			return ClassUpstream
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassPath
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ClassPath
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return ClassPath
	}
	var re *tls.RecordHeaderError
	var ce *tls.CertificateVerificationError
	if errors.As(err, &re) || errors.As(err, &ce) {
		return ClassPath
	}

	return ClassUpstream
}
