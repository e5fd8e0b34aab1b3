// Package control is the instrument's remote-control channel: line-delimited
// JSON events over a Unix domain socket.
//
//	{"type": "key_down", "data": {"key": "z"}}
//	{"type": "set_params", "data": {"gamma": 1.5}}
//	{"type": "stop_all"}
//
// Every request gets one response line: {"status": "ok"} or
// {"status": "error", "error": "..."}.
package control

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"harmonium/internal/bellows"
)

// Event is a marker interface for everything the control channel carries.
type Event interface {
	controlMarker()
}

// KeyDown presses a key as if it were typed on the instrument's keyboard.
type KeyDown struct {
	Key string `json:"key"`
}

func (KeyDown) controlMarker() {}

// KeyUp releases a key.
type KeyUp struct {
	Key string `json:"key"`
}

func (KeyUp) controlMarker() {}

// SetParams changes bellows parameters. Omitted fields keep their value.
type SetParams struct {
	DeadzoneDegPerS *float64 `json:"deadzone_deg_per_s,omitempty"`
	MaxDegPerS      *float64 `json:"max_deg_per_s,omitempty"`
	Gamma           *float64 `json:"gamma,omitempty"`
	EMAAlpha        *float64 `json:"ema_alpha,omitempty"`
	AttackMS        *float64 `json:"attack_ms,omitempty"`
	ReleaseMS       *float64 `json:"release_ms,omitempty"`
}

func (SetParams) controlMarker() {}

// Apply returns p with the set fields replaced.
func (s SetParams) Apply(p bellows.Params) bellows.Params {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&p.DeadzoneDegPerS, s.DeadzoneDegPerS)
	set(&p.MaxDegPerS, s.MaxDegPerS)
	set(&p.Gamma, s.Gamma)
	set(&p.EMAAlpha, s.EMAAlpha)
	set(&p.AttackMS, s.AttackMS)
	set(&p.ReleaseMS, s.ReleaseMS)
	return p
}

// SetMasterGain sets the master gain (clamped to [0,2] by the sink).
type SetMasterGain struct {
	Gain float64 `json:"gain"`
}

func (SetMasterGain) controlMarker() {}

// ResetBellows returns the bellows engine to its initial state.
type ResetBellows struct{}

func (ResetBellows) controlMarker() {}

// ReloadKeymap re-reads the key map. An empty Path reloads the current file.
type ReloadKeymap struct {
	Path string `json:"path,omitempty"`
}

func (ReloadKeymap) controlMarker() {}

// StopAll releases every key and silences every note.
type StopAll struct{}

func (StopAll) controlMarker() {}

// Envelope wraps an event with a type discriminator for JSON.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response is the reply to one request line.
type Response struct {
	Status string `json:"status"`          // "ok" or "error"
	Error  string `json:"error,omitempty"` // set when Status == "error"
}

// KeyRune returns the single character a key event names.
func KeyRune(key string) (rune, error) {
	if utf8.RuneCountInString(key) != 1 {
		return 0, fmt.Errorf("key must be exactly 1 character, got %q", key)
	}
	r, _ := utf8.DecodeRuneInString(key)
	return r, nil
}

// UnmarshalEvent decodes one envelope into a concrete Event.
func UnmarshalEvent(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "key_down":
		var e KeyDown
		if err := unmarshalData(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal KeyDown: %w", err)
		}
		if _, err := KeyRune(e.Key); err != nil {
			return nil, err
		}
		return e, nil

	case "key_up":
		var e KeyUp
		if err := unmarshalData(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal KeyUp: %w", err)
		}
		if _, err := KeyRune(e.Key); err != nil {
			return nil, err
		}
		return e, nil

	case "set_params":
		var e SetParams
		if err := unmarshalData(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal SetParams: %w", err)
		}
		return e, nil

	case "set_master_gain":
		var e SetMasterGain
		if err := unmarshalData(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal SetMasterGain: %w", err)
		}
		return e, nil

	case "reset_bellows":
		return ResetBellows{}, nil

	case "reload_keymap":
		var e ReloadKeymap
		if err := unmarshalData(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal ReloadKeymap: %w", err)
		}
		return e, nil

	case "stop_all":
		return StopAll{}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// unmarshalData tolerates a missing data object.
func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// MarshalEvent encodes an Event as an envelope.
func MarshalEvent(e Event) ([]byte, error) {
	var env Envelope

	withData := func(typ string, v any) error {
		env.Type = typ
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		env.Data = data
		return nil
	}

	var err error
	switch e := e.(type) {
	case KeyDown:
		err = withData("key_down", e)
	case KeyUp:
		err = withData("key_up", e)
	case SetParams:
		err = withData("set_params", e)
	case SetMasterGain:
		err = withData("set_master_gain", e)
	case ResetBellows:
		env.Type = "reset_bellows"
	case ReloadKeymap:
		if e.Path != "" {
			err = withData("reload_keymap", e)
		} else {
			env.Type = "reload_keymap"
		}
	case StopAll:
		env.Type = "stop_all"
	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}
	if err != nil {
		return nil, err
	}

	return json.Marshal(env)
}
