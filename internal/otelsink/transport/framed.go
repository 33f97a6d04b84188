package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/otell-io/otell/internal/otelsink/otellerr"
)

// FramedServer accepts the query protocol over both a Unix domain socket
// and a TCP listener: one newline-delimited JSON request per connection,
// one newline-delimited JSON response back.
type FramedServer struct {
	store  queryStore
	logger zerolog.Logger

	udsListener net.Listener
	tcpListener net.Listener
}

// NewFramedServer binds the UDS path and TCP address. The UDS socket file
// is recreated and chmod'd 0600 on each bind, matching a local query
// socket's trust model.
func NewFramedServer(store queryStore, udsPath, tcpAddr string, logger zerolog.Logger) (*FramedServer, error) {
	if err := os.MkdirAll(filepath.Dir(udsPath), 0o755); err != nil {
		return nil, otellerr.Wrapf(otellerr.Io, err, "create uds parent dir")
	}
	if _, err := os.Stat(udsPath); err == nil {
		os.Remove(udsPath)
	}

	udsListener, err := net.Listen("unix", udsPath)
	if err != nil {
		return nil, otellerr.Wrapf(otellerr.Io, err, "bind uds query listener")
	}
	if err := os.Chmod(udsPath, 0o600); err != nil {
		udsListener.Close()
		return nil, otellerr.Wrapf(otellerr.Io, err, "chmod uds query socket")
	}

	tcpListener, err := net.Listen("tcp", tcpAddr)
	if err != nil {
		udsListener.Close()
		return nil, otellerr.Wrapf(otellerr.Io, err, "bind tcp query listener")
	}

	return &FramedServer{
		store:       store,
		logger:      logger.With().Str("component", "query_server").Logger(),
		udsListener: udsListener,
		tcpListener: tcpListener,
	}, nil
}

// Serve accepts connections on both listeners until ctx is canceled.
func (s *FramedServer) Serve(ctx context.Context) {
	go s.acceptLoop(ctx, s.udsListener)
	go s.acceptLoop(ctx, s.tcpListener)
}

// Close closes both listeners.
func (s *FramedServer) Close() error {
	_ = s.udsListener.Close()
	_ = s.tcpListener.Close()
	return nil
}

func (s *FramedServer) acceptLoop(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.logger.Warn().Err(err).Msg("query listener accept failed")
				return
			}
		}
		go s.handleConn(conn)
	}
}

func (s *FramedServer) handleConn(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return
	}

	var req Envelope
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.Warn().Err(err).Msg("query client sent invalid request")
		return
	}

	resp := HandleRequest(s.store, req)
	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal query response")
		return
	}

	if _, err := conn.Write(append(payload, '\n')); err != nil {
		s.logger.Warn().Err(err).Msg("query client write failed")
	}
}
