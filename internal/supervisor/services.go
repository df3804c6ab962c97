package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"
)

const defaultHTTPShutdownTimeout = 10 * time.Second

// Runner is a loop that runs until ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerService adapts a Runner to suture.Service. Errors matching one of terminal stop the
// service for good instead of restarting it.
type RunnerService struct {
	name     string
	runner   Runner
	terminal []error
}

func NewRunnerService(name string, runner Runner, terminal ...error) *RunnerService {
	return &RunnerService{name: name, runner: runner, terminal: terminal}
}

func (s *RunnerService) Serve(ctx context.Context) error {
	slog.Info("Service starting", "service", s.name)
	err := s.runner.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	for _, t := range s.terminal {
		if errors.Is(err, t) {
			slog.Warn("Service finished", "service", s.name, "reason", err)
			return suture.ErrDoNotRestart
		}
	}
	if err == nil {
		err = errors.New("returned without error")
	}
	return fmt.Errorf("%s stopped: %w", s.name, err)
}

func (s *RunnerService) String() string {
	return s.name
}

// HTTPServer is the Start/Shutdown pair of an Echo-backed server.
type HTTPServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// HTTPService runs an HTTPServer until ctx is cancelled, then shuts it down gracefully.
type HTTPService struct {
	name            string
	server          HTTPServer
	shutdownTimeout time.Duration
}

func NewHTTPService(name string, server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultHTTPShutdownTimeout
	}
	return &HTTPService{name: name, server: server, shutdownTimeout: shutdownTimeout}
}

func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s failed: %w", h.name, err)
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s shutdown failed: %w", h.name, err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPService) String() string {
	return h.name
}
