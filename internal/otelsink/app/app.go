// Package app wires together otell's store, ingest servers, forwarder,
// query transport, and retention controller into one supervised process.
package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/otell-io/otell/internal/otelsink/config"
	"github.com/otell-io/otell/internal/otelsink/forward"
	"github.com/otell-io/otell/internal/otelsink/ingest"
	"github.com/otell-io/otell/internal/otelsink/pipeline"
	"github.com/otell-io/otell/internal/otelsink/retention"
	"github.com/otell-io/otell/internal/otelsink/store"
	"github.com/otell-io/otell/internal/otelsink/transport"
)

const retentionSweepInterval = time.Minute

// Run opens the store, starts every supervised peer, and blocks until ctx
// is canceled or any peer fails. The first failure cancels the rest.
func Run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	fwd, err := newForwarder(cfg, logger)
	if err != nil {
		return err
	}
	if fwd != nil {
		defer fwd.Close()
	}

	group, gctx := errgroup.WithContext(ctx)

	pl := pipeline.New(gctx, st, pipeline.Config{
		ChannelCapacity: 256,
		FlushInterval:   cfg.WriteFlush,
		BatchSize:       cfg.WriteBatchSize,
	}, logger)

	otlpServers, err := ingest.Start(cfg.OtlpGrpcAddr, cfg.OtlpHTTPAddr, pl, fwd, logger)
	if err != nil {
		return err
	}
	group.Go(func() error {
		<-gctx.Done()
		otlpServers.Stop(context.Background())
		return nil
	})

	framedServer, err := transport.NewFramedServer(st, cfg.UDSPath, cfg.QueryTCPAddr, logger)
	if err != nil {
		return err
	}
	framedServer.Serve(gctx)
	group.Go(func() error {
		<-gctx.Done()
		return framedServer.Close()
	})

	httpQuery := transport.NewHTTPServer(st, logger)
	group.Go(func() error {
		return serveQueryHTTP(gctx, cfg.QueryHTTPAddr, httpQuery)
	})

	retentionController := retention.New(st, cfg.RetentionTTL, int64(cfg.RetentionMaxBytes), retentionSweepInterval, logger)
	group.Go(func() error {
		return retentionController.Run(gctx)
	})

	logger.Info().
		Str("otlp_grpc", cfg.OtlpGrpcAddr).
		Str("otlp_http", cfg.OtlpHTTPAddr).
		Str("query_tcp", cfg.QueryTCPAddr).
		Str("query_http", cfg.QueryHTTPAddr).
		Str("uds", cfg.UDSPath).
		Msg("otell started")

	err = group.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func newForwarder(cfg *config.Config, logger zerolog.Logger) (*forward.Forwarder, error) {
	if cfg.ForwardOtlpEndpoint == "" {
		return nil, nil
	}

	protoName := cfg.ForwardOtlpProtocol
	if protoName == "" {
		protoName = "grpc"
	}
	protocol, err := forward.ParseProtocol(protoName)
	if err != nil {
		return nil, err
	}
	compression, err := forward.ParseCompression(cfg.ForwardCompression)
	if err != nil {
		return nil, err
	}
	headers, err := config.ParseOtlpHeaders(cfg.ForwardOtlpHeaders)
	if err != nil {
		return nil, err
	}

	return forward.New(forward.Config{
		Endpoint:    cfg.ForwardOtlpEndpoint,
		Protocol:    protocol,
		Compression: compression,
		Headers:     headers,
		Timeout:     cfg.ForwardTimeout,
	}, logger)
}

// serveQueryHTTP serves the HTTP/JSON query surface until ctx is
// canceled, then shuts the listener down gracefully.
func serveQueryHTTP(ctx context.Context, addr string, h *transport.HTTPServer) error {
	srv := &http.Server{Addr: addr, Handler: h.Mux()}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
