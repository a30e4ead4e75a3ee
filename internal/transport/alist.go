package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mcpatch-go/mcpatch/internal/mcerror"
)

// AlistSource resolves a path through an Alist server's "/api/fs/get"
// endpoint to a direct download URL, caches the resolution per path, then
// issues a plain ranged GET against it. Grounded on
// client/src/network/alist.rs's AlistProtocol.
type AlistSource struct {
	baseURL     string
	client      *http.Client
	headers     []HTTPHeader
	maskKeyword string

	mu    sync.Mutex
	cache map[string]string
}

// NewAlistSource builds a source resolving paths against baseURL's
// "/api/fs/get" endpoint. A baseURL without a scheme (a bare host) is
// reached over plain http.
func NewAlistSource(baseURL string, timeout time.Duration, ignoreCertificate bool, headers []HTTPHeader) *AlistSource {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &AlistSource{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		client:      newHTTPClient(timeout, ignoreCertificate),
		headers:     headers,
		maskKeyword: hostOf(baseURL),
		cache:       make(map[string]string),
	}
}

// Fetch implements Source.
func (s *AlistSource) Fetch(path string, start, end uint64, desc string) (uint64, io.ReadCloser, error) {
	rawURL, ok := s.cachedURL(path)
	if !ok {
		resolved, err := s.resolve(path, desc)
		if err != nil {
			return 0, nil, err
		}
		s.cacheURL(path, resolved)
		rawURL = resolved
	}

	return fetchRanged(s.client, rawURL, start, end, desc, s.headers, nil)
}

// MaskKeyword implements Source.
func (s *AlistSource) MaskKeyword() string { return s.maskKeyword }

func (s *AlistSource) cachedURL(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	url, ok := s.cache[path]
	return url, ok
}

func (s *AlistSource) cacheURL(path, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[path] = url
}

type alistResolveRequest struct {
	Path     string `json:"path"`
	Password string `json:"password"`
}

type alistResolveResponse struct {
	Data struct {
		RawURL string `json:"raw_url"`
	} `json:"data"`
}

// resolve performs the "/api/fs/get" POST resolve step, extracting
// data.raw_url from the JSON response.
func (s *AlistSource) resolve(path, desc string) (string, error) {
	payload, err := json.Marshal(alistResolveRequest{Path: path, Password: ""})
	if err != nil {
		return "", mcerror.Wrap(err, mcerror.KindNetworkBusiness, "encoding alist resolve request for %s", path)
	}

	req, err := http.NewRequest(http.MethodPost, s.baseURL+"/api/fs/get", bytes.NewReader(payload))
	if err != nil {
		return "", mcerror.Wrap(err, mcerror.KindNetworkBusiness, "building alist resolve request for %s", path)
	}
	req.Header.Set("Content-Type", "application/json")
	for _, h := range s.headers {
		req.Header.Set(h.Name, h.Value)
	}

	rsp, err := s.client.Do(req)
	if err != nil {
		return "", mcerror.Wrap(err, mcerror.KindNetworkTransport, "resolving %s via alist (%s)", path, desc)
	}
	defer rsp.Body.Close()

	body, err := io.ReadAll(rsp.Body)
	if err != nil {
		return "", mcerror.Wrap(err, mcerror.KindNetworkTransport, "reading alist resolve response for %s (%s)", path, desc)
	}

	var decoded alistResolveResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", mcerror.New(mcerror.KindNetworkBusiness, "alist server returned malformed JSON for %s (%s)", path, desc)
	}
	if decoded.Data.RawURL == "" {
		return "", mcerror.New(mcerror.KindNetworkBusiness, "alist resolve response for %s has no data.raw_url (%s)", path, desc)
	}

	return decoded.Data.RawURL, nil
}
