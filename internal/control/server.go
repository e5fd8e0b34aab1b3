package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// Request is one decoded event waiting to be applied by the instrument's
// owner. The owner must send exactly one value on Reply (nil for success).
type Request struct {
	Event Event
	Reply chan<- error
}

// replyTimeout bounds how long a connection waits for the owner to apply an
// event before answering with an error.
const replyTimeout = 2 * time.Second

var errQueueFull = errors.New("event queue full")

// Run serves the control socket until ctx is canceled. Decoded events are
// forwarded on requests; they are never applied from a connection goroutine.
func Run(ctx context.Context, socketPath string, requests chan<- Request, logger *slog.Logger) error {
	// Remove a stale socket left by a previous run.
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0o660); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("control listening", "socket", socketPath)

	// Closing the listener unblocks Accept.
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Debug("control listener closed")
				return nil
			}
			logger.Error("control accept error", "error", err)
			continue
		}

		go handleConnection(ctx, conn, requests, logger)
	}
}

func handleConnection(ctx context.Context, conn net.Conn, requests chan<- Request, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("control connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	respond := func(err error) {
		resp := Response{Status: "ok"}
		if err != nil {
			resp = Response{Status: "error", Error: err.Error()}
		}
		if encErr := encoder.Encode(resp); encErr != nil {
			logger.Error("control failed to send response", "error", encErr)
		}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("control received", "line", line)

		ev, err := UnmarshalEvent([]byte(line))
		if err != nil {
			respond(fmt.Errorf("parse event: %w", err))
			continue
		}
		respond(dispatch(ctx, requests, ev))
	}

	logger.Debug("control connection closed")
}

// dispatch hands ev to the owner and waits for the outcome.
func dispatch(ctx context.Context, requests chan<- Request, ev Event) error {
	reply := make(chan error, 1)

	select {
	case requests <- Request{Event: ev, Reply: reply}:
	default:
		return errQueueFull
	}

	timer := time.NewTimer(replyTimeout)
	defer timer.Stop()

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("no reply within %s", replyTimeout)
	}
}

// Send delivers one event to the control socket and returns the instrument's
// verdict.
func Send(socketPath string, ev Event) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send event: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("harmonium error: %s", resp.Error)
	}
	return nil
}
