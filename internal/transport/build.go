package transport

import (
	"strings"
	"time"

	"github.com/mcpatch-go/mcpatch/internal/config"
	"github.com/mcpatch-go/mcpatch/internal/logging"
	"github.com/mcpatch-go/mcpatch/internal/mcerror"
)

// FromClientConfig builds a Network from cfg.Urls, dispatching each by
// scheme exactly as Network::new does in client/src/network/mod.rs: http(s)
// to HTTPSource, mcpatch:// to PrivateSource, webdav(s):// to WebdavSource,
// and anything else to AlistSource (a plain host is assumed to be an Alist
// endpoint, matching the original's "unknown url" log-and-skip becoming,
// here, the catch-all fourth transport spec §4.11 lists).
func FromClientConfig(cfg *config.ClientConfig) (*Network, error) {
	httpTimeout := time.Duration(cfg.HTTPTimeout) * time.Millisecond
	privateTimeout := time.Duration(cfg.PrivateTimeout) * time.Millisecond

	var headers []HTTPHeader
	for _, h := range cfg.HTTPHeaders {
		headers = append(headers, HTTPHeader{Name: h.Name, Value: h.Value})
	}

	var sources []Source
	for _, raw := range cfg.Urls {
		switch {
		case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
			sources = append(sources, NewHTTPSource(raw, httpTimeout, cfg.HTTPIgnoreCertificate, headers))
		case strings.HasPrefix(raw, "mcpatch://"):
			sources = append(sources, NewPrivateSource(strings.TrimPrefix(raw, "mcpatch://"), privateTimeout))
		case strings.HasPrefix(raw, "webdav://"), strings.HasPrefix(raw, "webdavs://"):
			source, err := NewWebdavSource(raw, httpTimeout, cfg.HTTPIgnoreCertificate, headers)
			if err != nil {
				return nil, err
			}
			sources = append(sources, source)
		default:
			sources = append(sources, NewAlistSource(raw, httpTimeout, cfg.HTTPIgnoreCertificate, headers))
		}
	}

	if len(sources) == 0 {
		return nil, mcerror.New(mcerror.KindConfigInvalid, "no usable server address is configured")
	}

	return New(sources, int(cfg.HTTPRetries), logging.Root.Sublogger("network"))
}
