package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/null-channel/twitch-alerts/internal/metrics"
)

const maxInboundMessageSize = 4096

// Acceptor upgrades overlay connections and serves each one until it fails or is closed.
type Acceptor struct {
	registry *Registry
	clock    clockwork.Clock
	upgrader websocket.Upgrader
	active   sync.WaitGroup
}

func NewAcceptor(registry *Registry, clock clockwork.Clock) *Acceptor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Acceptor{
		registry: registry,
		clock:    clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Overlays are browser sources on arbitrary origins and are not authenticated.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.WebSocketConnectionsTotal.WithLabelValues("error").Inc()
		slog.Warn("Overlay websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	a.active.Add(1)
	defer a.active.Done()

	id := ConnectionID(conn.RemoteAddr().String())
	cw := newClientWriter(conn, a.clock)
	a.registry.Insert(id, cw)

	connectedAt := a.clock.Now()
	metrics.WebSocketConnectionsTotal.WithLabelValues("success").Inc()
	metrics.WebSocketConnectionsCurrent.Inc()
	slog.Info("Overlay client connected", "connection_id", string(id), "clients", a.registry.Len())

	err = a.serve(r.Context(), conn, cw, id)

	a.registry.RemoveSender(id, cw)
	cw.Close("connection ended")
	_ = conn.Close()

	metrics.WebSocketConnectionsCurrent.Dec()
	metrics.WebSocketConnectionDuration.Observe(a.clock.Since(connectedAt).Seconds())
	slog.Info("Overlay client disconnected", "connection_id", string(id), "reason", err, "clients", a.registry.Len())
}

// serve runs the writer and reader of one connection; the first to fail tears down both.
func (a *Acceptor) serve(ctx context.Context, conn *websocket.Conn, cw *clientWriter, id ConnectionID) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return cw.writeLoop(gctx)
	})
	g.Go(func() error {
		return readLoop(conn, id)
	})
	g.Go(func() error {
		<-gctx.Done()
		// Unblocks the reader.
		_ = conn.Close()
		return nil
	})

	return g.Wait()
}

func readLoop(conn *websocket.Conn, id ConnectionID) error {
	conn.SetReadLimit(maxInboundMessageSize)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		slog.Debug("Overlay client message", "connection_id", string(id), "bytes", len(data), "message", string(data))
	}
}

// CloseAll sends a close frame carrying reason to every connected overlay.
func (a *Acceptor) CloseAll(reason string) int {
	n := a.registry.CloseAll(reason)
	if n > 0 {
		slog.Info("Closing overlay clients", "count", n, "reason", reason)
	}
	return n
}

// Wait blocks until every connection handler has returned or ctx is done.
func (a *Acceptor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("overlay connections still open"), ctx.Err())
	}
}

// Shutdown closes every overlay and waits up to timeout for their handlers to finish.
func (a *Acceptor) Shutdown(reason string, timeout time.Duration) error {
	a.CloseAll(reason)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return a.Wait(ctx)
}
