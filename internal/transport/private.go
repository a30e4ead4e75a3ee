package transport

import (
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/mcpatch-go/mcpatch/internal/mcerror"
)

// PrivateSource speaks mcpatch's own length-prefixed TCP protocol (spec §6).
// It keeps one persistent connection per source, reconnecting lazily on the
// next Fetch after any transport failure. Grounded on
// client/src/network/private.rs's PrivateProtocol.
//
// Per the Source contract, callers never invoke Fetch concurrently on the
// same PrivateSource, so the connection needs no locking of its own.
type PrivateSource struct {
	addr        string
	timeout     time.Duration
	conn        net.Conn
	maskKeyword string
}

// NewPrivateSource dials lazily; addr is host:port with no scheme prefix.
func NewPrivateSource(addr string, timeout time.Duration) *PrivateSource {
	return &PrivateSource{addr: addr, timeout: timeout, maskKeyword: addr}
}

// Fetch implements Source.
func (s *PrivateSource) Fetch(path string, start, end uint64, desc string) (uint64, io.ReadCloser, error) {
	if err := s.ensureConnected(); err != nil {
		return 0, nil, mcerror.Wrap(err, mcerror.KindNetworkTransport, "connecting to %s (%s)", s.addr, desc)
	}

	if err := s.sendRequest(path, start, end); err != nil {
		s.reset()
		return 0, nil, mcerror.Wrap(err, mcerror.KindNetworkTransport, "sending request to %s (%s)", s.addr, desc)
	}

	status, err := s.readStatus()
	if err != nil {
		s.reset()
		return 0, nil, mcerror.Wrap(err, mcerror.KindNetworkTransport, "reading status from %s (%s)", s.addr, desc)
	}

	switch {
	case status == -1:
		return 0, nil, mcerror.New(mcerror.KindNetworkBusiness, "server %s: file not found: %s (%s)", s.addr, path, desc)
	case status == -2:
		return 0, nil, mcerror.New(mcerror.KindNetworkBusiness, "server %s: range out of bounds: %s (%s)", s.addr, path, desc)
	case status < 0:
		return 0, nil, mcerror.New(mcerror.KindNetworkBusiness, "server %s: unrecognized status %d: %s (%s)", s.addr, status, path, desc)
	}

	length := uint64(status)
	return length, &privateBody{owner: s, conn: s.conn, timeout: s.timeout, remaining: length}, nil
}

// MaskKeyword implements Source.
func (s *PrivateSource) MaskKeyword() string { return s.maskKeyword }

func (s *PrivateSource) ensureConnected() error {
	if s.conn != nil {
		return nil
	}

	conn, err := net.DialTimeout("tcp", s.addr, s.timeout)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

func (s *PrivateSource) sendRequest(path string, start, end uint64) error {
	if s.timeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	}

	if err := writeFrame(s.conn, []byte(path)); err != nil {
		return err
	}

	var rangeBuf [16]byte
	binary.LittleEndian.PutUint64(rangeBuf[0:8], start)
	binary.LittleEndian.PutUint64(rangeBuf[8:16], end)
	_, err := s.conn.Write(rangeBuf[:])
	return err
}

func (s *PrivateSource) readStatus() (int64, error) {
	if s.timeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(s.timeout))
	}

	var buf [8]byte
	if _, err := io.ReadFull(s.conn, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

func (s *PrivateSource) reset() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// writeFrame writes data as a u64-LE length prefix followed by data itself,
// the (length || bytes) framing spec §6 describes for the private protocol.
func writeFrame(w io.Writer, data []byte) error {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// privateBody streams exactly remaining bytes off the shared connection.
// Close is a no-op on success: the connection is kept open for the source's
// next request. A read error or an early Close (the caller abandoned the
// body before draining it, e.g. on cancellation) drops the connection
// instead of leaving undrained bytes to desync the next request's framing.
type privateBody struct {
	owner     *PrivateSource
	conn      net.Conn
	timeout   time.Duration
	remaining uint64
}

func (b *privateBody) Read(p []byte) (int, error) {
	if b.remaining == 0 {
		return 0, io.EOF
	}
	if uint64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}

	if b.timeout > 0 {
		b.conn.SetReadDeadline(time.Now().Add(b.timeout))
	}

	n, err := b.conn.Read(p)
	b.remaining -= uint64(n)
	if err != nil && err != io.EOF {
		b.owner.reset()
	}
	return n, err
}

func (b *privateBody) Close() error {
	if b.remaining != 0 {
		b.owner.reset()
	}
	return nil
}
