package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// coalesceWindow is the minimum spacing between two "bellows" messages.
// Frames arrive at the UI frame rate; clients get the latest one per window.
const coalesceWindow = 50 * time.Millisecond

// snapshotRequest asks the broadcaster for the current snapshot.
type snapshotRequest struct {
	reply chan Snapshot
}

// Server serves the monitor endpoints and owns the broadcaster's snapshot.
type Server struct {
	logger *slog.Logger
	hub    *Hub

	snapshots chan snapshotRequest
}

type ServerConfig struct {
	Hub HubConfig
}

// NewServer constructs the monitor. Start Hub().Run and RunBroadcaster, then
// serve Handler().
func NewServer(logger *slog.Logger, cfg ServerConfig) *Server {
	return &Server{
		logger:    logger,
		hub:       NewHub(logger, cfg.Hub),
		snapshots: make(chan snapshotRequest),
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the monitor's HTTP routes: /ws and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintln(w, "ok")
	})
	return mux
}

var upgrader = websocket.Upgrader{
	// The monitor is read-only and meant for the local network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades and registers a client, then sends state_init.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("monitor upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Register first so no broadcast is missed between snapshot and fanout.
	if !s.hub.addClient(client) {
		return
	}

	// The request context ends when this handler returns; the pumps live as
	// long as the connection does.
	go client.writePump(context.Background())
	go client.readPump(context.Background())

	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	reply := make(chan Snapshot, 1)
	select {
	case <-ctx.Done():
		return
	case s.snapshots <- snapshotRequest{reply: reply}:
	}

	select {
	case <-ctx.Done():
		if !errors.Is(ctx.Err(), context.Canceled) {
			s.logger.Warn("monitor snapshot request failed", "error", ctx.Err())
		}
		return

	case snap := <-reply:
		if snap.Notes == nil {
			snap.Notes = []string{}
		}
		now := time.Now().UTC()
		initMsg, err := json.Marshal(envelope{Type: "state_init", Ts: &now, Data: snap})
		if err != nil {
			s.logger.Warn("monitor snapshot marshal failed", "error", err)
			return
		}
		select {
		case client.send <- initMsg:
		default:
			s.hub.dropClient(client)
		}
	}
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		// ErrServerClosed means Shutdown was called.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("monitor HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	s.logger.Info("monitor listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("monitor HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster reads the instrument's change feed, keeps the snapshot for
// new clients, and broadcasts every change. Bellows frames are rate-limited:
// the latest pending frame is flushed at most once per coalesceWindow, even
// while frames keep arriving. It must run as a single goroutine.
func (s *Server) RunBroadcaster(ctx context.Context, src <-chan Broadcast) {
	if src == nil {
		return
	}

	var snap Snapshot
	var pendingFrame *wsOutboundEvent
	var frameTimer *time.Timer
	var frameTimerCh <-chan time.Time

	emit := func(ev wsOutboundEvent) {
		ts := ev.At
		if ts.IsZero() {
			ts = time.Now()
		}
		ts = ts.UTC()
		msg, err := json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
		if err != nil {
			s.logger.Warn("monitor broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		s.hub.BroadcastBytes(msg)
	}

	flushPending := func() {
		if pendingFrame == nil {
			return
		}
		emit(*pendingFrame)
		pendingFrame = nil
	}

	stopTimer := func() {
		if frameTimer != nil && !frameTimer.Stop() {
			select {
			case <-frameTimer.C:
			default:
			}
		}
		frameTimer = nil
		frameTimerCh = nil
	}

	for {
		select {
		case <-ctx.Done():
			flushPending()
			stopTimer()
			return

		case req := <-s.snapshots:
			req.reply <- snap

		case <-frameTimerCh:
			if pendingFrame == nil {
				stopTimer()
				continue
			}
			flushPending()
			frameTimer.Reset(coalesceWindow)

		case b, ok := <-src:
			if !ok {
				flushPending()
				stopTimer()
				s.logger.Info("monitor broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}
			snap = snap.apply(b)

			if ev.Type == "bellows" {
				copyEv := ev
				pendingFrame = &copyEv
				if frameTimer == nil {
					frameTimer = time.NewTimer(coalesceWindow)
					frameTimerCh = frameTimer.C
				}
				continue
			}

			// Keep ordering: a pending frame goes out before this event.
			flushPending()
			emit(ev)
		}
	}
}
