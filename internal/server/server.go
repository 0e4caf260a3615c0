// Package server exposes the fake agent API: the BMC emulator's power
// notifications and the per-node command endpoints the controller calls.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/izzyreal/fakeipa/internal/command"
	"github.com/izzyreal/fakeipa/internal/logging"
	"github.com/izzyreal/fakeipa/internal/protocol"
)

// Fleet is the agent side consumed by the HTTP handlers.
type Fleet interface {
	HandleNotification(system protocol.System)
	NodeUUIDs() []string
	ListCommands(ctx context.Context, nodeUUID string) ([]*command.Result, error)
	GetCommand(ctx context.Context, nodeUUID, id string, wait bool) (*command.Result, error)
	RunCommand(ctx context.Context, nodeUUID, name string, params command.Params, token string, wait bool) (*command.Result, error)
}

// Queue reports heartbeat queue state for /healthz.
type Queue interface {
	Len() int
	PendingRemoval() []string
}

type Config struct {
	ListenAddr string
	MDNS       MDNSConfig
	GRPCHealth GRPCHealthConfig
}

type Server struct {
	fleet Fleet
	queue Queue
	log   logging.Logger
}

func New(fleet Fleet, queue Queue, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.New("server")
	}
	return &Server{fleet: fleet, queue: queue, log: logger}
}

func (s *Server) Handler() http.Handler {
	return buildRouter(s)
}

// Run serves the agent API on cfg.ListenAddr, together with the optional
// mDNS advertisement and gRPC health endpoint, until ctx is done.
func (s *Server) Run(ctx context.Context, cfg Config) error {
	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}
	return s.Serve(ctx, listener, cfg)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener, cfg Config) error {
	handler := s.Handler()
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopMDNS := startMDNSAdvertiser(cfg.MDNS, listener.Addr().String(), s.log)
	defer stopMDNS()

	stopHealth, err := startGRPCHealth(ctx, cfg.GRPCHealth, handler, s.log)
	if err != nil {
		_ = listener.Close()
		return err
	}
	defer stopHealth()

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", listener.Addr().String()).Info("fake IPA server started")
		err := srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		s.log.Info("fake IPA server stopped")
		return nil
	case err := <-errCh:
		if err != nil {
			return err
		}
		s.log.Info("fake IPA server stopped")
		return nil
	}
}
