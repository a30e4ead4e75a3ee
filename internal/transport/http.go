package transport

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mcpatch-go/mcpatch/internal/mcerror"
)

// HTTPSource fetches files via plain GET requests with an optional Range
// header, matching client/src/network/http.rs's HttpProtocol.
type HTTPSource struct {
	baseURL     string
	client      *http.Client
	headers     []HTTPHeader
	maskKeyword string
}

// HTTPHeader is a single extra request header sent with every request.
type HTTPHeader struct {
	Name  string
	Value string
}

// NewHTTPSource builds a source serving files relative to baseURL (which
// should point at the directory containing index.json, not the file
// itself, matching the original's "http://host:port/subfolder" convention).
func NewHTTPSource(baseURL string, timeout time.Duration, ignoreCertificate bool, headers []HTTPHeader) *HTTPSource {
	return &HTTPSource{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		client:      newHTTPClient(timeout, ignoreCertificate),
		headers:     headers,
		maskKeyword: hostOf(baseURL),
	}
}

// newHTTPClient builds the *http.Client shared by HTTPSource, WebdavSource,
// and AlistSource, honoring the configured timeout and certificate policy.
func newHTTPClient(timeout time.Duration, ignoreCertificate bool) *http.Client {
	transport := &http.Transport{}
	if ignoreCertificate {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(path string, start, end uint64, desc string) (uint64, io.ReadCloser, error) {
	return fetchRanged(s.client, s.baseURL+"/"+strings.TrimPrefix(path, "/"), start, end, desc, s.headers, nil)
}

// MaskKeyword implements Source.
func (s *HTTPSource) MaskKeyword() string { return s.maskKeyword }

// fetchRanged issues a GET against fullURL honoring [start, end), shared by
// HTTPSource, WebdavSource, and AlistSource's second stage.
func fetchRanged(client *http.Client, fullURL string, start, end uint64, desc string, headers []HTTPHeader, basicAuth *basicAuth) (uint64, io.ReadCloser, error) {
	partial := end > start

	req, err := http.NewRequest(http.MethodGet, fullURL, nil)
	if err != nil {
		return 0, nil, mcerror.Wrap(err, mcerror.KindNetworkBusiness, "building request for %s (%s)", fullURL, desc)
	}

	for _, h := range headers {
		req.Header.Set(h.Name, h.Value)
	}
	if basicAuth != nil {
		req.SetBasicAuth(basicAuth.user, basicAuth.pass)
	}
	if partial {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end-1))
	}

	rsp, err := client.Do(req)
	if err != nil {
		return 0, nil, mcerror.Wrap(err, mcerror.KindNetworkTransport, "requesting %s (%s)", fullURL, desc)
	}

	if (partial && rsp.StatusCode != http.StatusPartialContent) || (!partial && (rsp.StatusCode < 200 || rsp.StatusCode >= 300)) {
		rsp.Body.Close()
		return 0, nil, mcerror.New(mcerror.KindNetworkBusiness, "server returned status %d instead of expected code for %s (%s)", rsp.StatusCode, fullURL, desc)
	}

	if rsp.ContentLength < 0 {
		rsp.Body.Close()
		return 0, nil, mcerror.New(mcerror.KindNetworkBusiness, "server did not return a content-length for %s (%s)", fullURL, desc)
	}
	length := uint64(rsp.ContentLength)

	if partial && length != end-start {
		rsp.Body.Close()
		return 0, nil, mcerror.New(mcerror.KindNetworkBusiness, "server's content-length %d does not equal requested %d for %s (%s)", length, end-start, fullURL, desc)
	}

	return length, rsp.Body, nil
}

type basicAuth struct {
	user string
	pass string
}

// hostOf extracts the host[:port] portion of a URL for use as a masking
// keyword, matching the original's use of reqwest::Url::host_str.
func hostOf(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return parsed.Host
}
