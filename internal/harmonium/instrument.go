// Package harmonium ties the instrument together: once per UI frame it drains
// the sensor relay into the bellows engine and pushes the amplitude to the
// sound output, and it turns key presses into sounding notes.
//
// An Instrument has a single owner (the frame loop). Other goroutines reach it
// only through channels that the owner services.
package harmonium

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"harmonium/internal/audio"
	"harmonium/internal/bellows"
	"harmonium/internal/control"
	"harmonium/internal/keys"
	"harmonium/internal/monitor"
	"harmonium/internal/relay"
)

// Config holds the instrument's starting settings.
type Config struct {
	Params      bellows.Params
	MasterGain  float64
	HoldTimeout time.Duration
}

// Instrument is the foreground state of the harmonium.
type Instrument struct {
	engine  *bellows.Engine
	inbox   *relay.Inbox
	sink    audio.Sink
	pressed *keys.PressedKeys
	holds   *keys.HoldTracker

	keymap     *keys.KeyMap
	keymapPath string

	masterGain float64

	out    bellows.Output
	hasOut bool
	latest relay.Latest
	closed bool

	// Notes whose last start failed, with the failure text.
	noteErrors map[string]string
	message    string

	broadcasts chan<- monitor.Broadcast
	dropped    int

	logger *slog.Logger
}

// NewInstrument builds an instrument. broadcasts may be nil when no monitor
// is running; publishing never blocks.
func NewInstrument(
	cfg Config,
	inbox *relay.Inbox,
	sink audio.Sink,
	km *keys.KeyMap,
	keymapPath string,
	broadcasts chan<- monitor.Broadcast,
	logger *slog.Logger,
) *Instrument {
	in := &Instrument{
		engine:     bellows.NewEngine(cfg.Params),
		inbox:      inbox,
		sink:       sink,
		pressed:    keys.NewPressedKeys(),
		holds:      keys.NewHoldTracker(cfg.HoldTimeout),
		keymap:     km,
		keymapPath: keymapPath,
		noteErrors: make(map[string]string),
		broadcasts: broadcasts,
		logger:     logger,
	}
	in.SetMasterGain(cfg.MasterGain)
	in.sink.SetBellows(0)
	return in
}

// ============================================================================
// Frame
// ============================================================================

// Frame runs one UI frame at now. It never blocks.
func (in *Instrument) Frame(now time.Time) {
	prev := in.latest
	l := in.inbox.DrainLatest()
	in.latest = l

	if l.HasStatus && (!prev.HasStatus || l.Status != prev.Status) {
		in.publish(monitor.SensorStatus{Text: l.Status, At: now})
	}
	if l.HasError && (!prev.HasError || l.Error != prev.Error) {
		in.logger.Warn("sensor error", "error", l.Error)
		in.publish(monitor.SensorError{Text: l.Error, At: now})
	}

	switch {
	case l.Fresh:
		in.out = in.engine.Update(l.Sample.AngleDeg, l.Sample.At)
		in.hasOut = true
		in.sink.SetBellows(in.out.Amp)
		in.publish(monitor.BellowsFrame{Output: in.out, Volume: in.Volume(), At: now})

	case l.Closed && !in.closed:
		// No more samples will come: let the reeds go quiet.
		in.closed = true
		in.engine.Reset()
		in.out = bellows.Output{AngleDeg: in.out.AngleDeg}
		in.sink.SetBellows(0)
		in.publish(monitor.BellowsFrame{Output: in.out, Volume: 0, At: now})
	}

	for _, r := range in.holds.Expired(now) {
		in.release(r)
	}
}

// ============================================================================
// Keys
// ============================================================================

// KeyPress handles a key going down. Repeats of a held key are ignored. The
// returned error names a note that could not start; other notes are
// unaffected.
func (in *Instrument) KeyPress(r rune) error {
	note, ok := in.pressed.KeyDown(r, in.keymap)
	if !ok {
		return nil
	}

	err := in.sink.NoteOn(note)
	if err != nil {
		in.noteErrors[note] = err.Error()
		in.message = err.Error()
		in.logger.Warn("note start failed", "note", note, "key", string(r), "error", err)
	} else {
		delete(in.noteErrors, note)
		in.logger.Debug("note on", "note", note, "key", string(r))
	}
	in.publishNotes()
	return err
}

// KeyRelease handles a key going up.
func (in *Instrument) KeyRelease(r rune) {
	in.holds.Forget(r)
	in.release(r)
}

func (in *Instrument) release(r rune) {
	note, ok := in.pressed.KeyUp(r)
	if !ok {
		return
	}
	// Another held key may still be playing the same note.
	if in.pressed.NoteSounding(note) {
		return
	}
	in.sink.NoteOff(note)
	in.logger.Debug("note off", "note", note, "key", string(r))
	in.publishNotes()
}

// TerminalKey handles a key event from a terminal, which reports presses and
// auto-repeats but never releases. The key is released once no repeat has
// arrived for the hold timeout.
func (in *Instrument) TerminalKey(r rune, now time.Time) error {
	if !in.holds.Touch(r, now) {
		return nil
	}
	return in.KeyPress(r)
}

// StopAll releases every key and silences every note.
func (in *Instrument) StopAll() {
	notes := in.pressed.ReleaseAll()
	in.holds.Reset()
	in.sink.StopAll()
	in.logger.Info("all notes stopped", "notes", len(notes))
	in.message = "All notes stopped"
	in.publishNotes()
}

// ReloadKeyMap replaces the key map from path, or from the current file when
// path is empty. On failure the previous map stays in effect. Held keys keep
// the notes they started.
func (in *Instrument) ReloadKeyMap(path string) error {
	if path == "" {
		path = in.keymapPath
	}
	if path == "" {
		err := fmt.Errorf("no key map file configured")
		in.message = err.Error()
		return err
	}

	km, err := keys.Load(path)
	if err != nil {
		in.message = err.Error()
		in.logger.Warn("key map reload failed", "path", path, "error", err)
		return err
	}

	in.keymap = km
	in.keymapPath = path
	in.message = fmt.Sprintf("Loaded %d keys from %s", km.Len(), path)
	in.logger.Info("key map reloaded", "path", path, "keys", km.Len())
	return nil
}

// ============================================================================
// Bellows and gain
// ============================================================================

// Reset returns the bellows engine to its freshly constructed state.
func (in *Instrument) Reset() {
	in.engine.Reset()
	in.out = bellows.Output{}
	in.hasOut = false
	in.sink.SetBellows(0)
	in.message = "Bellows reset"
	in.logger.Info("bellows reset")
}

// Params returns the engine's current parameters.
func (in *Instrument) Params() bellows.Params { return in.engine.Params() }

// SetParams replaces the engine's parameters. Filter memory is kept.
func (in *Instrument) SetParams(p bellows.Params) {
	in.engine.SetParams(p)
	in.logger.Debug("bellows params updated", "params", fmt.Sprintf("%+v", p))
}

// SetMasterGain sets the master gain, clamped to [0, audio.MaxMasterGain].
func (in *Instrument) SetMasterGain(g float64) {
	if math.IsNaN(g) {
		g = 0
	}
	g = math.Max(0, math.Min(g, audio.MaxMasterGain))
	in.masterGain = g
	in.sink.SetMasterGain(g)
}

// MasterGain returns the current master gain.
func (in *Instrument) MasterGain() float64 { return in.masterGain }

// Volume is the gain every sounding voice is playing at.
func (in *Instrument) Volume() float64 {
	return audio.Volume(in.masterGain, in.engine.Amp())
}

// ============================================================================
// Control events
// ============================================================================

// Apply performs a control event on behalf of a remote client.
func (in *Instrument) Apply(ev control.Event) error {
	switch ev := ev.(type) {
	case control.KeyDown:
		r, err := control.KeyRune(ev.Key)
		if err != nil {
			return err
		}
		return in.KeyPress(r)

	case control.KeyUp:
		r, err := control.KeyRune(ev.Key)
		if err != nil {
			return err
		}
		in.KeyRelease(r)
		return nil

	case control.SetParams:
		in.SetParams(ev.Apply(in.Params()))
		return nil

	case control.SetMasterGain:
		in.SetMasterGain(ev.Gain)
		return nil

	case control.ResetBellows:
		in.Reset()
		return nil

	case control.ReloadKeymap:
		return in.ReloadKeyMap(ev.Path)

	case control.StopAll:
		in.StopAll()
		return nil

	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}

// ============================================================================
// Publishing
// ============================================================================

func (in *Instrument) publish(b monitor.Broadcast) {
	if in.broadcasts == nil {
		return
	}
	select {
	case in.broadcasts <- b:
	default:
		in.dropped++
	}
}

func (in *Instrument) publishNotes() {
	in.publish(monitor.NotesChanged{Notes: in.sink.Active(), At: time.Now()})
}

// ============================================================================
// View
// ============================================================================

// View is a read-only snapshot for rendering.
type View struct {
	Output    bellows.Output
	HasOutput bool
	Phase     bellows.Phase

	Params     bellows.Params
	MasterGain float64
	Volume     float64

	Notes      []string
	NoteErrors []string

	SensorStatus string
	SensorError  string
	SensorClosed bool

	KeyMapPath string
	KeyMapSize int

	Message string

	// Monitor updates dropped because the broadcaster fell behind.
	Dropped int
}

// View returns the current state for display.
func (in *Instrument) View() View {
	v := View{
		Output:       in.out,
		HasOutput:    in.hasOut,
		Phase:        in.engine.State().Phase,
		Params:       in.engine.Params(),
		MasterGain:   in.masterGain,
		Volume:       in.Volume(),
		Notes:        in.sink.Active(),
		SensorStatus: in.latest.Status,
		SensorError:  in.latest.Error,
		SensorClosed: in.latest.Closed,
		KeyMapPath:   in.keymapPath,
		KeyMapSize:   in.keymap.Len(),
		Message:      in.message,
		Dropped:      in.dropped,
	}
	for note, text := range in.noteErrors {
		v.NoteErrors = append(v.NoteErrors, note+": "+text)
	}
	sort.Strings(v.NoteErrors)
	return v
}
