package ingest

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/otell-io/otell/internal/otelsink/forward"
	"github.com/otell-io/otell/internal/otelsink/pipeline"
)

// Servers owns the OTLP gRPC and HTTP listeners. Both run until Stop is
// called or the serving goroutine hits a fatal error.
type Servers struct {
	grpcServer *grpc.Server
	httpServer *http.Server
	logger     zerolog.Logger
}

// Start binds and serves the OTLP gRPC and HTTP receivers in the
// background, returning once both listeners are bound.
func Start(grpcAddr, httpAddr string, p *pipeline.Pipeline, fwd *forward.Forwarder, logger zerolog.Logger) (*Servers, error) {
	grpcLis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return nil, err
	}
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		grpcLis.Close()
		return nil, err
	}

	ingest := NewGRPCIngest(p, fwd)

	grpcServer := grpc.NewServer()
	ingest.Register(grpcServer)

	httpIngest := NewHTTPIngest(ingest, logger)
	httpServer := &http.Server{Handler: httpIngest.Mux()}

	s := &Servers{grpcServer: grpcServer, httpServer: httpServer, logger: logger.With().Str("component", "otlp_receiver").Logger()}

	go func() {
		if err := grpcServer.Serve(grpcLis); err != nil {
			s.logger.Error().Err(err).Msg("otlp grpc server error")
		}
	}()
	go func() {
		if err := httpServer.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("otlp http server error")
		}
	}()

	s.logger.Info().Str("grpc_addr", grpcAddr).Str("http_addr", httpAddr).Msg("otlp receiver listening")
	return s, nil
}

// Stop gracefully shuts down both listeners.
func (s *Servers) Stop(ctx context.Context) {
	s.grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("otlp http server shutdown error")
	}
}
