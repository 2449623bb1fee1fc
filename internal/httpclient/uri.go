package httpclient

import (
	"net/url"
	"strings"

	"github.com/privacysandbox/pbs-client-go/internal/asynccontext"
	"github.com/privacysandbox/pbs-client-go/internal/telemetry"
)

// ParsedURI is a parsed http/https URI; GetConnection keys its pool on
// the (Host, Service) pair, mirroring nghttp2's host_service_from_uri.
type ParsedURI struct {
	Scheme  string
	Host    string
	Service string // port, as a string; "443"/"80" when absent
	Path    string
	Query   string
}

// ParseURI parses uri into scheme/host/service/path/query, rejecting
// anything but http/https, and defaulting the service to the scheme's
// standard port when the URI omits one. Every rejection increments the
// address-error counter, labeled by uri.
func ParseURI(uri string) (ParsedURI, asynccontext.ExecutionResult) {
	u, err := url.Parse(uri)
	if err != nil {
		telemetry.Global().RecordAddressError(uri)
		return ParsedURI{}, asynccontext.Failure(asynccontext.SC_HTTP2_CLIENT_INVALID_URI)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		telemetry.Global().RecordAddressError(uri)
		return ParsedURI{}, asynccontext.Failure(asynccontext.SC_HTTP2_CLIENT_INVALID_URI)
	}
	if u.Host == "" {
		telemetry.Global().RecordAddressError(uri)
		return ParsedURI{}, asynccontext.Failure(asynccontext.SC_HTTP2_CLIENT_INVALID_URI)
	}

	host := u.Hostname()
	service := u.Port()
	if service == "" {
		if scheme == "https" {
			service = "443"
		} else {
			service = "80"
		}
	}

	return ParsedURI{
		Scheme:  scheme,
		Host:    host,
		Service: service,
		Path:    u.Path,
		Query:   u.RawQuery,
	}, asynccontext.Success()
}
