package audio

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

type fakePlayer struct {
	played  []beep.Streamer
	locks   int
	cleared bool
	closed  bool
}

func (p *fakePlayer) Play(s ...beep.Streamer) { p.played = append(p.played, s...) }
func (p *fakePlayer) Lock()                   { p.locks++ }
func (p *fakePlayer) Unlock()                 {}
func (p *fakePlayer) Clear()                  { p.cleared = true }
func (p *fakePlayer) Close()                  { p.closed = true }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeWav writes a constant-level stereo sample of n frames.
func writeWav(t *testing.T, path string, rate beep.SampleRate, level float64, n int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	left := n
	src := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if left == 0 {
			return 0, false
		}
		k := min(len(samples), left)
		for i := 0; i < k; i++ {
			samples[i] = [2]float64{level, level}
		}
		left -= k
		return k, true
	})
	format := beep.Format{SampleRate: rate, NumChannels: 2, Precision: 2}
	if err := wav.Encode(f, src, format); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

// pull streams n frames from s and returns the first left-channel value.
func pull(t *testing.T, s beep.Streamer, n int) (float64, bool) {
	t.Helper()
	buf := make([][2]float64, n)
	got, ok := s.Stream(buf)
	if !ok || got == 0 {
		return 0, false
	}
	return buf[0][0], true
}

func TestVolume(t *testing.T) {
	tests := []struct{ master, bellows, want float64 }{
		{0.8, 0.5, 0.4},
		{2, 1, 2},
		{3, 1, 2},
		{0.8, -1, 0},
		{math.NaN(), 1, 0},
	}
	for _, tt := range tests {
		if got := Volume(tt.master, tt.bellows); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Volume(%v, %v) = %v, want %v", tt.master, tt.bellows, got, tt.want)
		}
	}
}

func TestFindSample_LookupOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"c2.flac", "c2.mp3", "d2.ogg"} {
		os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644)
	}
	os.Mkdir(filepath.Join(dir, "e2.wav"), 0o755)

	if p, err := FindSample(dir, "c2"); err != nil || filepath.Base(p) != "c2.mp3" {
		t.Errorf("expected c2.mp3 before c2.flac, got %q (%v)", p, err)
	}
	if p, err := FindSample(dir, "d2"); err != nil || filepath.Base(p) != "d2.ogg" {
		t.Errorf("expected d2.ogg, got %q (%v)", p, err)
	}

	_, err := FindSample(dir, "e2")
	var fe *FileError
	if !errors.As(err, &fe) || fe.Note != "e2" || !errors.Is(err, errNoSample) {
		t.Errorf("directory must not count as a sample, got %v", err)
	}
}

func TestNullSink(t *testing.T) {
	s := NewNullSink()
	s.NoteOn("d2")
	s.NoteOn("c2")
	s.NoteOn("c2")
	if got := s.Active(); !reflect.DeepEqual(got, []string{"c2", "d2"}) {
		t.Errorf("unexpected active %v", got)
	}

	s.SetBellows(0.5)
	if got := s.Volume(); math.Abs(got-0.4) > 1e-12 {
		t.Errorf("expected default master 0.8 * 0.5, got %v", got)
	}
	s.SetMasterGain(5)
	s.SetBellows(2)
	if got := s.Volume(); got != 2 {
		t.Errorf("expected clamped volume 2, got %v", got)
	}

	s.NoteOff("c2")
	s.StopAll()
	if len(s.Active()) != 0 {
		t.Errorf("expected silence")
	}
}

func TestBeepSink_NoteLifecycle(t *testing.T) {
	dir := t.TempDir()
	writeWav(t, filepath.Join(dir, "c2.wav"), 44100, 0.5, 100)

	p := &fakePlayer{}
	s := newBeepSink(p, 44100, dir, discardLogger())
	s.SetBellows(0.5)

	if err := s.NoteOn("c2"); err != nil {
		t.Fatalf("note on: %v", err)
	}
	if err := s.NoteOn("c2"); err != nil {
		t.Fatalf("second note on: %v", err)
	}
	if len(p.played) != 1 {
		t.Fatalf("expected one voice, got %d", len(p.played))
	}
	v := p.played[0]

	got, ok := pull(t, v, 10)
	if !ok || math.Abs(got-0.5*0.4) > 1e-3 {
		t.Errorf("expected level 0.2 at volume 0.4, got %v (%v)", got, ok)
	}

	// Looping: far more frames than the sample holds keep coming.
	if _, ok := pull(t, v, 1000); !ok {
		t.Errorf("voice should loop")
	}

	s.SetBellows(1)
	got, _ = pull(t, v, 10)
	if math.Abs(got-0.5*0.8) > 1e-3 {
		t.Errorf("expected level 0.4 after bellows change, got %v", got)
	}

	s.NoteOff("c2")
	if _, ok := pull(t, v, 10); ok {
		t.Errorf("stopped voice should end so the mixer drops it")
	}
	if len(s.Active()) != 0 {
		t.Errorf("expected no active notes")
	}
	if p.locks == 0 {
		t.Errorf("voice changes must hold the player lock")
	}
}

func TestBeepSink_MissingNoteOnlyAffectsThatNote(t *testing.T) {
	dir := t.TempDir()
	writeWav(t, filepath.Join(dir, "c2.wav"), 44100, 0.5, 100)

	s := newBeepSink(&fakePlayer{}, 44100, dir, discardLogger())
	err := s.NoteOn("g9")
	var fe *FileError
	if !errors.As(err, &fe) || fe.Note != "g9" {
		t.Fatalf("expected FileError for g9, got %v", err)
	}
	if err := s.NoteOn("c2"); err != nil {
		t.Fatalf("other notes must still play: %v", err)
	}
	if got := s.Active(); !reflect.DeepEqual(got, []string{"c2"}) {
		t.Errorf("unexpected active %v", got)
	}
}

func TestBeepSink_UndecodableSample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c2.wav")
	os.WriteFile(path, []byte("not a wav file"), 0o644)

	s := newBeepSink(&fakePlayer{}, 44100, dir, discardLogger())
	err := s.NoteOn("c2")
	var fe *FileError
	if !errors.As(err, &fe) || fe.Path != path {
		t.Fatalf("expected FileError with path, got %v", err)
	}
}

func TestBeepSink_ResamplesOtherRates(t *testing.T) {
	dir := t.TempDir()
	writeWav(t, filepath.Join(dir, "a3.wav"), 22050, 0.5, 2000)

	p := &fakePlayer{}
	s := newBeepSink(p, 44100, dir, discardLogger())
	s.SetBellows(1)
	if err := s.NoteOn("a3"); err != nil {
		t.Fatal(err)
	}
	if _, ok := pull(t, p.played[0], 512); !ok {
		t.Errorf("resampled voice should stream")
	}
}

func TestBeepSink_StopAllAndClose(t *testing.T) {
	dir := t.TempDir()
	writeWav(t, filepath.Join(dir, "c2.wav"), 44100, 0.5, 100)
	writeWav(t, filepath.Join(dir, "d2.wav"), 44100, 0.5, 100)

	p := &fakePlayer{}
	s := newBeepSink(p, 44100, dir, discardLogger())
	s.NoteOn("c2")
	s.NoteOn("d2")
	s.StopAll()

	for i, v := range p.played {
		if _, ok := pull(t, v, 10); ok {
			t.Errorf("voice %d still playing after StopAll", i)
		}
	}

	// Cached samples restart without touching the disk.
	os.Remove(filepath.Join(dir, "c2.wav"))
	if err := s.NoteOn("c2"); err != nil {
		t.Errorf("expected cached sample, got %v", err)
	}

	s.Close()
	if !p.cleared || !p.closed || len(s.Active()) != 0 {
		t.Errorf("close should stop voices and release the player")
	}
}
