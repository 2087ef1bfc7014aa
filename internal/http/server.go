// README: API gateway; wires handlers onto the router and owns the listener lifecycle.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/http/handlers"
	"github.com/GroupeBH/zwanga-sub000/internal/infra"
)

type ServerDeps struct {
	Verifier  infra.TokenVerifier
	Requests  handlers.RequestService
	Discovery handlers.RequestDiscovery
	Trips     handlers.TripService
	Bookings  handlers.BookingService
	Drivers   handlers.DriverAvailability
	Live      handlers.LiveHub
	Places    handlers.PlaceSearcher
	// Assistant is nil when no model key is configured.
	Assistant      handlers.AssistantService
	AllowedOrigins []string
}

type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
}

func NewServer(addr string, shutdownTimeout time.Duration, deps ServerDeps) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
	}
}

// Run serves until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	slog.Info("http server shutting down")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
