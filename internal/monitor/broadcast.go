package monitor

import (
	"time"

	"harmonium/internal/bellows"
)

// Broadcast is a marker interface for instrument changes published to
// monitor clients.
type Broadcast interface {
	broadcastMarker()
}

// BellowsFrame is one engine output together with the resulting voice volume.
type BellowsFrame struct {
	Output bellows.Output
	Volume float64
	At     time.Time
}

func (BellowsFrame) broadcastMarker() {}

// NotesChanged carries the full set of sounding notes.
type NotesChanged struct {
	Notes []string
	At    time.Time
}

func (NotesChanged) broadcastMarker() {}

// SensorStatus carries the latest sensor status text.
type SensorStatus struct {
	Text string
	At   time.Time
}

func (SensorStatus) broadcastMarker() {}

// SensorError carries the latest sensor failure text.
type SensorError struct {
	Text string
	At   time.Time
}

func (SensorError) broadcastMarker() {}

// Snapshot is the "state_init" payload sent to a client on connect.
type Snapshot struct {
	Bellows      *bellows.Output `json:"bellows,omitempty"`
	Volume       float64         `json:"volume"`
	Notes        []string        `json:"notes"`
	SensorStatus string          `json:"sensor_status,omitempty"`
	SensorError  string          `json:"sensor_error,omitempty"`
}

// apply folds b into the snapshot.
func (s Snapshot) apply(b Broadcast) Snapshot {
	switch b := b.(type) {
	case BellowsFrame:
		out := b.Output
		s.Bellows = &out
		s.Volume = b.Volume
	case NotesChanged:
		s.Notes = append([]string(nil), b.Notes...)
	case SensorStatus:
		s.SensorStatus = b.Text
	case SensorError:
		s.SensorError = b.Text
	}
	return s
}

// wsBellowsData is the JSON `data` payload for "bellows".
type wsBellowsData struct {
	bellows.Output
	Volume float64 `json:"volume"`
}

type wsNotesData struct {
	Notes []string `json:"notes"`
}

type wsTextData struct {
	Text string `json:"text"`
}

// wsOutboundEvent is a typed, externally consumable event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // zero means use now
}

func convertBroadcast(b Broadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BellowsFrame:
		return wsOutboundEvent{
			Type: "bellows",
			Data: wsBellowsData{Output: ev.Output, Volume: ev.Volume},
			At:   ev.At,
		}, true

	case NotesChanged:
		notes := ev.Notes
		if notes == nil {
			notes = []string{}
		}
		return wsOutboundEvent{Type: "notes_changed", Data: wsNotesData{Notes: notes}, At: ev.At}, true

	case SensorStatus:
		return wsOutboundEvent{Type: "sensor_status", Data: wsTextData{Text: ev.Text}, At: ev.At}, true

	case SensorError:
		return wsOutboundEvent{Type: "sensor_error", Data: wsTextData{Text: ev.Text}, At: ev.At}, true

	default:
		return wsOutboundEvent{}, false
	}
}
