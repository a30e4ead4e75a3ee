// Package privateserver implements the manager's optional private-protocol
// TCP file server ("mcpatch serve"), an alternative to fronting public-dir
// with a plain HTTP server. Grounded on
// manager/src/builtin_server/mod.rs::start_builtin_server/serve_loop/inner.
package privateserver

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mcpatch-go/mcpatch/internal/config"
	"github.com/mcpatch-go/mcpatch/internal/logging"
	"github.com/mcpatch-go/mcpatch/internal/mcerror"
	"github.com/mcpatch-go/mcpatch/internal/ratelimit"
)

// requestTimeout bounds how long a connection may sit idle waiting to send
// its next request, guarding the server against slow or stalled clients.
// Mirrors serve_loop's 30-second timeout() wrapper around the frame read.
const requestTimeout = 30 * time.Second

const copyChunkSize = 32 * 1024

// statusNotFound and statusOutOfRange are the two negative i64 response
// codes a client's PrivateSource treats as business errors (spec §7).
const (
	statusNotFound   int64 = -1
	statusOutOfRange int64 = -2
)

// Server answers private-protocol requests for files under a public
// directory, optionally throttled by a token bucket per config.BuiltinServerConfig.
type Server struct {
	listener  net.Listener
	publicDir string
	capacity  uint32
	regain    uint32
	log       *logging.Logger
}

// New builds a Server bound to listener, serving files under publicDir.
func New(listener net.Listener, publicDir string, cfg config.BuiltinServerConfig, log *logging.Logger) *Server {
	return &Server{
		listener:  listener,
		publicDir: publicDir,
		capacity:  cfg.Capacity,
		regain:    cfg.Regain,
		log:       log,
	}
}

// Serve accepts connections until the listener is closed, handling each on
// its own goroutine. It returns nil when the listener closes cleanly.
func (s *Server) Serve() error {
	s.log.Infof("private protocol server listening on %s", s.listener.Addr())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return mcerror.Wrap(err, mcerror.KindIO, "accepting connection")
		}
		go s.handleConn(conn)
	}
}

// handleConn serves requests on conn, one at a time, until the peer
// disconnects or a non-benign error occurs. Each connection is tagged with a
// random id (rather than conn.RemoteAddr(), which is ambiguous behind NAT or
// a reused ephemeral port) so its requests can be correlated in the log.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	connID, err := uuid.NewRandom()
	if err != nil {
		s.log.Warnf("%s - unable to allocate a connection id: %v", conn.RemoteAddr(), err)
		return
	}

	for {
		if err := s.handleRequest(conn, connID.String()); err != nil {
			if !isBenignDisconnect(err) {
				s.log.Warnf("%s [%s] - %v", conn.RemoteAddr(), connID, err)
			}
			return
		}
	}
}

// handleRequest reads and answers a single request on conn.
func (s *Server) handleRequest(conn net.Conn, connID string) error {
	if err := conn.SetReadDeadline(time.Now().Add(requestTimeout)); err != nil {
		return err
	}

	path, err := readFrame(conn)
	if err != nil {
		return err
	}

	var start, end uint64
	if err := binary.Read(conn, binary.LittleEndian, &start); err != nil {
		return err
	}
	if err := binary.Read(conn, binary.LittleEndian, &end); err != nil {
		return err
	}

	// The body of the request may take a while to stream on a slow or
	// heavily rate-limited connection; only the request frame itself is
	// bounded by requestTimeout.
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return err
	}

	started := time.Now()
	full := filepath.Join(s.publicDir, filepath.FromSlash(string(path)))

	info, statErr := os.Stat(full)
	if statErr != nil {
		return writeStatus(conn, statusNotFound)
	}
	size := uint64(info.Size())
	if end > size {
		return writeStatus(conn, statusOutOfRange)
	}
	if start == 0 && end == 0 {
		end = size
	}
	remaining := end - start

	if err := writeStatus(conn, int64(remaining)); err != nil {
		return err
	}

	file, err := os.Open(full)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.Seek(int64(start), io.SeekStart); err != nil {
		return err
	}

	var source io.Reader = io.LimitReader(file, int64(remaining))
	if s.capacity > 0 && s.regain > 0 {
		source = ratelimit.NewReader(source, int(s.capacity), float64(s.regain))
	}

	if _, err := io.CopyBuffer(conn, source, make([]byte, copyChunkSize)); err != nil {
		return err
	}

	s.log.Infof("%s [%s] - %s %d+%d (%dms)", conn.RemoteAddr(), connID, path, start, remaining, time.Since(started).Milliseconds())
	return nil
}

// readFrame reads a u64-LE length prefix followed by that many bytes,
// mirroring the path framing PrivateSource.writeFrame produces.
func readFrame(r io.Reader) ([]byte, error) {
	var length uint64
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeStatus(w io.Writer, status int64) error {
	return binary.Write(w, binary.LittleEndian, status)
}

// isBenignDisconnect reports whether err is an expected consequence of the
// peer going away or idling past requestTimeout, rather than a condition
// worth logging.
func isBenignDisconnect(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
