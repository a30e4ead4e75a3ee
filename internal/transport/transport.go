// Package transport implements the fetch layer: an ordered list of sources
// (HTTP, WebDAV, the private TCP protocol, and Alist) tried in sequence with
// per-source retries and failover, host-masked error reporting on final
// exhaustion. Grounded on client/src/network/mod.rs's Network and
// UpdatingSource trait.
package transport

import (
	"io"
	"strings"

	"github.com/mcpatch-go/mcpatch/internal/logging"
	"github.com/mcpatch-go/mcpatch/internal/mcerror"
)

// Whole requests the entire file; passed as start/end to Fetch and
// RequestFile to mean "whole file" per spec §4.11.
const Whole = 0

// Source is one upstream capable of serving ranged file requests. A Source
// need not be safe for concurrent use; Network adds no locking of its own,
// so a Network is used from one goroutine at a time.
type Source interface {
	// Fetch requests path's [start, end) bytes, or the whole file when
	// start == end == 0. It returns the response's total length and a
	// stream of exactly that many bytes, or an *mcerror.Error of kind
	// KindNetworkTransport (retryable, fails over) or KindNetworkBusiness
	// (surfaced immediately).
	Fetch(path string, start, end uint64, desc string) (uint64, io.ReadCloser, error)

	// MaskKeyword is the host/address substring that must be scrubbed from
	// any error text this source produces before it reaches a log or a
	// caller, so credentials and addresses never leak.
	MaskKeyword() string
}

// Network holds an ordered list of sources and implements the failover
// contract of spec §4.11: try sources from a skip cursor forward, retry
// transport errors within a source, propagate business errors immediately,
// and mask the host on final exhaustion.
type Network struct {
	sources     []Source
	skipSources int
	retries     int
	log         *logging.Logger
}

// New wraps sources (already constructed, in priority order), making up to
// retries+1 attempts per source before failing over.
func New(sources []Source, retries int, log *logging.Logger) (*Network, error) {
	if len(sources) == 0 {
		return nil, mcerror.New(mcerror.KindConfigInvalid, "no usable source URLs configured")
	}
	if log == nil {
		log = logging.Root
	}

	return &Network{sources: sources, retries: retries, log: log}, nil
}

// AdvanceSource permanently skips the current head-of-line source on
// subsequent requests. Exposed for callers that detect a source is bad
// through means other than a failed Fetch; RequestFile already advances the
// cursor automatically when a source's retries are exhausted.
func (n *Network) AdvanceSource() {
	n.skipSources++
}

// RequestFile implements the fetch layer's single capability: try every
// source from the skip cursor onward, up to retries+1 attempts each,
// propagating business errors immediately and only failing over on
// transport errors.
func (n *Network) RequestFile(path string, start, end uint64, desc string) (uint64, io.ReadCloser, error) {
	var lastErr error
	var lastMask string

	for idx := n.skipSources; idx < len(n.sources); idx++ {
		source := n.sources[idx]

		for attempt := 0; attempt <= n.retries; attempt++ {
			length, body, err := source.Fetch(path, start, end, desc)
			if err == nil {
				return length, body, nil
			}

			if mcerror.IsBusiness(err) {
				return 0, nil, err
			}

			lastErr = err
			lastMask = source.MaskKeyword()

			if attempt != n.retries {
				n.log.Warnf("source %d failed, retrying: %v", idx, err)
			}
		}

		n.skipSources = idx + 1
	}

	return 0, nil, maskHost(lastErr, lastMask)
}

// RequestText is a convenience wrapper reading the whole response body as a
// UTF-8 string.
func (n *Network) RequestText(path string, start, end uint64, desc string) (string, error) {
	_, body, err := n.RequestFile(path, start, end, desc)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", mcerror.Wrap(err, mcerror.KindNetworkTransport, "reading response body (%s)", desc)
	}

	return string(data), nil
}

// maskHost replaces every occurrence of keyword in err's text with "[host]"
// so the final, surfaced error never leaks an address.
func maskHost(err error, keyword string) error {
	if err == nil {
		return nil
	}
	if keyword == "" {
		return mcerror.Wrap(err, mcerror.KindNetworkTransport, "all sources exhausted")
	}

	masked := strings.ReplaceAll(err.Error(), keyword, "[host]")
	return mcerror.New(mcerror.KindNetworkTransport, "all sources exhausted: %s", masked)
}
