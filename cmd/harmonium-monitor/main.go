package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// envelope mirrors the monitor's wire format.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type bellowsData struct {
	Amp             float64 `json:"amp"`
	TargetAmp       float64 `json:"target_amp"`
	VelocityDegPerS float64 `json:"velocity_deg_per_s"`
	Volume          float64 `json:"volume"`
}

type stateInit struct {
	Bellows      *bellowsData `json:"bellows"`
	Volume       float64      `json:"volume"`
	Notes        []string     `json:"notes"`
	SensorStatus string       `json:"sensor_status"`
	SensorError  string       `json:"sensor_error"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:3002/ws", "harmonium monitor websocket URL")
		quiet = flag.Bool("quiet", false, "Do not print bellows frames")
		step  = flag.Float64("step", 0.05, "Only print bellows frames when amp moves by at least this much")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// The server pings us; gorilla answers pings from the read loop.
	p := &printer{quiet: *quiet, step: *step, lastAmp: -1}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(message))
				continue
			}
			if line := p.format(message); line != "" {
				fmt.Println(line)
			}
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// printer turns monitor messages into one-line summaries.
type printer struct {
	quiet   bool
	step    float64
	lastAmp float64
}

func (p *printer) format(message []byte) string {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return fmt.Sprintf("[TEXT] %s", message)
	}

	switch env.Type {
	case "state_init":
		var s stateInit
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return fmt.Sprintf("[STATE] invalid: %v", err)
		}
		amp := 0.0
		if s.Bellows != nil {
			amp = s.Bellows.Amp
		}
		line := fmt.Sprintf("[STATE] amp=%.3f volume=%.3f notes=[%s]", amp, s.Volume, strings.Join(s.Notes, " "))
		if s.SensorStatus != "" {
			line += " sensor=" + s.SensorStatus
		}
		if s.SensorError != "" {
			line += " error=" + s.SensorError
		}
		return line

	case "bellows":
		if p.quiet {
			return ""
		}
		var b bellowsData
		if err := json.Unmarshal(env.Data, &b); err != nil {
			return fmt.Sprintf("[BELLOWS] invalid: %v", err)
		}
		if p.lastAmp >= 0 && math.Abs(b.Amp-p.lastAmp) < p.step && b.Amp != 0 {
			return ""
		}
		if p.lastAmp == 0 && b.Amp == 0 {
			return ""
		}
		p.lastAmp = b.Amp
		return fmt.Sprintf("[BELLOWS] %-20s amp=%.3f target=%.3f vel=%7.1f volume=%.3f",
			bar(b.Amp, 20), b.Amp, b.TargetAmp, b.VelocityDegPerS, b.Volume)

	case "notes_changed":
		var n struct {
			Notes []string `json:"notes"`
		}
		if err := json.Unmarshal(env.Data, &n); err != nil {
			return fmt.Sprintf("[NOTES] invalid: %v", err)
		}
		if len(n.Notes) == 0 {
			return "[NOTES] -"
		}
		return "[NOTES] " + strings.Join(n.Notes, " ")

	case "sensor_status", "sensor_error":
		var t struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return fmt.Sprintf("[SENSOR] invalid: %v", err)
		}
		if env.Type == "sensor_error" {
			return "[SENSOR ERROR] " + t.Text
		}
		return "[SENSOR] " + t.Text

	default:
		return fmt.Sprintf("[%s] %s", strings.ToUpper(env.Type), env.Data)
	}
}

func bar(frac float64, width int) string {
	frac = math.Max(0, math.Min(frac, 1))
	full := int(math.Round(frac * float64(width)))
	return strings.Repeat("#", full) + strings.Repeat(".", width-full)
}
