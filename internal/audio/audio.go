// Package audio plays one looping sample per sounding note, with every voice
// at the same volume: master gain times the current bellows amplitude.
package audio

import (
	"fmt"
	"sort"
)

// DefaultMasterGain is the master gain a fresh sink starts with.
const DefaultMasterGain = 0.8

// MaxMasterGain bounds SetMasterGain and the per-voice volume.
const MaxMasterGain = 2.0

// Sink is the instrument's sound output.
//
// Implementations are driven from a single goroutine (the frame loop).
type Sink interface {
	// NoteOn starts a looping voice for note. Starting a sounding note is a
	// no-op. A failure affects only this note.
	NoteOn(note string) error
	// NoteOff stops the voice for note, if any.
	NoteOff(note string)
	SetMasterGain(g float64)
	SetBellows(a float64)
	StopAll()
	// Active returns the sounding notes in ascending order.
	Active() []string
	Close() error
}

// DeviceError reports an audio output that could not be initialized.
type DeviceError struct {
	Err error
}

func (e *DeviceError) Error() string { return fmt.Sprintf("audio output init failed: %v", e.Err) }

func (e *DeviceError) Unwrap() error { return e.Err }

// FileError reports a note whose sample could not be found or decoded.
type FileError struct {
	Note string
	Path string // empty when no candidate file existed
	Err  error
}

func (e *FileError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("note %q: %v", e.Note, e.Err)
	}
	return fmt.Sprintf("note %q: %s: %v", e.Note, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Volume is the gain applied to every voice.
func Volume(master, bellows float64) float64 {
	return clamp(master*bellows, 0, MaxMasterGain)
}

func clamp(v, lo, hi float64) float64 {
	if v != v || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// levels holds the two volume inputs shared by all sinks.
type levels struct {
	master  float64
	bellows float64
}

func (l *levels) setMaster(g float64)  { l.master = clamp(g, 0, MaxMasterGain) }
func (l *levels) setBellows(a float64) { l.bellows = clamp(a, 0, 1) }
func (l levels) volume() float64       { return Volume(l.master, l.bellows) }

// NullSink tracks notes without producing sound. It stands in when no audio
// device is available so the rest of the instrument keeps working.
type NullSink struct {
	levels
	active map[string]struct{}
}

func NewNullSink() *NullSink {
	return &NullSink{
		levels: levels{master: DefaultMasterGain},
		active: make(map[string]struct{}),
	}
}

func (s *NullSink) NoteOn(note string) error {
	s.active[note] = struct{}{}
	return nil
}

func (s *NullSink) NoteOff(note string) { delete(s.active, note) }

func (s *NullSink) SetMasterGain(g float64) { s.setMaster(g) }

func (s *NullSink) SetBellows(a float64) { s.setBellows(a) }

func (s *NullSink) StopAll() { clear(s.active) }

func (s *NullSink) Active() []string { return sortedKeys(s.active) }

// Volume returns the gain voices would be playing at.
func (s *NullSink) Volume() float64 { return s.volume() }

func (s *NullSink) Close() error {
	s.StopAll()
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
