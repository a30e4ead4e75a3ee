package transport

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mcpatch-go/mcpatch/internal/mcerror"
)

// WebdavSource fetches files over HTTP Basic-authenticated WebDAV. It
// accepts URLs of the form "webdav://user:pass:host:port/base" or
// "webdavs://user:pass:host:port/base", matching original_source's
// GlobalConfig.urls convention (client/src/network/webdav.rs's Webdav::new).
type WebdavSource struct {
	baseURL     string
	auth        basicAuth
	client      *http.Client
	headers     []HTTPHeader
	maskKeyword string
}

// ParseWebdavURL splits a "webdav(s)://user:pass:host[:port][/base]" URL
// into its HTTP-equivalent base URL and basic-auth credentials.
func ParseWebdavURL(raw string) (httpBaseURL, user, pass string, err error) {
	schemeEnd := strings.Index(raw, "://")
	if schemeEnd < 0 {
		return "", "", "", mcerror.New(mcerror.KindConfigInvalid, "malformed webdav url: %q", raw)
	}

	scheme := raw[:schemeEnd]
	httpScheme := strings.Replace(scheme, "webdav", "http", 1)
	rest := raw[schemeEnd+3:]

	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 {
		return "", "", "", mcerror.New(mcerror.KindConfigInvalid, "webdav url must be %s://user:pass:host[:port][/base]: %q", scheme, raw)
	}

	return httpScheme + "://" + parts[2], parts[0], parts[1], nil
}

// NewWebdavSource builds a source from a raw webdav(s):// URL.
func NewWebdavSource(raw string, timeout time.Duration, ignoreCertificate bool, headers []HTTPHeader) (*WebdavSource, error) {
	baseURL, user, pass, err := ParseWebdavURL(raw)
	if err != nil {
		return nil, err
	}

	return &WebdavSource{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		auth:        basicAuth{user: user, pass: pass},
		client:      newHTTPClient(timeout, ignoreCertificate),
		headers:     headers,
		maskKeyword: hostOf(baseURL),
	}, nil
}

// Fetch implements Source.
func (s *WebdavSource) Fetch(path string, start, end uint64, desc string) (uint64, io.ReadCloser, error) {
	return fetchRanged(s.client, s.baseURL+"/"+strings.TrimPrefix(path, "/"), start, end, desc, s.headers, &s.auth)
}

// MaskKeyword implements Source.
func (s *WebdavSource) MaskKeyword() string { return s.maskKeyword }
