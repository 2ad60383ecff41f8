package server

import (
	"context"
	"net/http"
	"time"
)

// Start runs the HTTP server and blocks until an interrupt or terminate
// signal arrives, then shuts everything down with a timeout.
func (s *Server) Start(addr string) {
	go func() {
		if err := s.E.Start(addr); err != nil && err != http.ErrServerClosed {
			s.E.Logger.Fatalf("shutting down the server: %v", err)
		}
	}()

	waitForShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.E.Shutdown(ctx); err != nil {
		s.E.Logger.Error(err)
	}
	if err := s.bridge.Close(); err != nil {
		s.E.Logger.Error(err)
	}
	if s.DB != nil {
		s.DB.Close(ctx)
	}
}
