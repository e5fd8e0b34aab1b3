package relay

import (
	"fmt"
	"time"
)

// Sample is one angle reading as delivered to the frame loop.
type Sample struct {
	AngleDeg float64
	At       time.Time // capture time, stamped by the producer
	Source   string
}

// Message is a marker interface for everything that crosses the relay.
// The producer hands a Message over once; the consumer folds it once.
type Message interface {
	relayMarker()
}

// SampleMsg carries a new angle sample.
type SampleMsg struct {
	Sample Sample
}

func (SampleMsg) relayMarker() {}

// StatusMsg carries human-readable connection status.
type StatusMsg struct {
	Text string
}

func (StatusMsg) relayMarker() {}

// ErrorMsg carries human-readable failure text.
type ErrorMsg struct {
	Text string
}

func (ErrorMsg) relayMarker() {}

// Status is a convenience constructor.
func Status(format string, args ...any) StatusMsg {
	return StatusMsg{Text: fmt.Sprintf(format, args...)}
}

// Error is a convenience constructor.
func Error(format string, args ...any) ErrorMsg {
	return ErrorMsg{Text: fmt.Sprintf(format, args...)}
}
