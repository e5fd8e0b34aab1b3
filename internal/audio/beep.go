package audio

import (
	"log/slog"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/speaker"
)

// Player is the output the voices are mixed into. The speaker package is the
// real one; Lock/Unlock guard anything its mixing goroutine reads.
type Player interface {
	Play(s ...beep.Streamer)
	Lock()
	Unlock()
	Clear()
	Close()
}

type speakerPlayer struct{}

func (speakerPlayer) Play(s ...beep.Streamer) { speaker.Play(s...) }
func (speakerPlayer) Lock()                   { speaker.Lock() }
func (speakerPlayer) Unlock()                 { speaker.Unlock() }
func (speakerPlayer) Clear()                  { speaker.Clear() }
func (speakerPlayer) Close()                  { speaker.Close() }

// BeepConfig controls the speaker output.
type BeepConfig struct {
	SamplesDir string
	SampleRate int           // output rate; 44100 when zero
	Buffer     time.Duration // speaker latency; 50ms when zero
}

// voice is one looping note. ctrl.Streamer is cleared to stop it, which makes
// the mixer drop the voice.
type voice struct {
	ctrl *beep.Ctrl
	gain *effects.Gain
}

// BeepSink plays samples through the system audio device.
type BeepSink struct {
	levels
	player Player
	rate   beep.SampleRate
	dir    string
	logger *slog.Logger

	voices map[string]*voice
	cache  map[string]*beep.Buffer
}

// NewBeepSink opens the default audio device.
func NewBeepSink(cfg BeepConfig, logger *slog.Logger) (*BeepSink, error) {
	rate := beep.SampleRate(cfg.SampleRate)
	if rate <= 0 {
		rate = 44100
	}
	latency := cfg.Buffer
	if latency <= 0 {
		latency = 50 * time.Millisecond
	}
	if err := speaker.Init(rate, rate.N(latency)); err != nil {
		return nil, &DeviceError{Err: err}
	}
	return newBeepSink(speakerPlayer{}, rate, cfg.SamplesDir, logger), nil
}

func newBeepSink(p Player, rate beep.SampleRate, dir string, logger *slog.Logger) *BeepSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &BeepSink{
		levels: levels{master: DefaultMasterGain},
		player: p,
		rate:   rate,
		dir:    dir,
		logger: logger,
		voices: make(map[string]*voice),
		cache:  make(map[string]*beep.Buffer),
	}
}

func (s *BeepSink) NoteOn(note string) error {
	if _, ok := s.voices[note]; ok {
		return nil
	}

	buf, err := s.sample(note)
	if err != nil {
		return err
	}

	var src beep.Streamer = beep.Loop(-1, buf.Streamer(0, buf.Len()))
	if buf.Format().SampleRate != s.rate {
		src = beep.Resample(4, buf.Format().SampleRate, s.rate, src)
	}

	ctrl := &beep.Ctrl{Streamer: src}
	v := &voice{
		ctrl: ctrl,
		gain: &effects.Gain{Streamer: ctrl, Gain: s.volume() - 1},
	}
	s.voices[note] = v
	s.player.Play(v.gain)

	s.logger.Debug("note on", "note", note, "volume", s.volume())
	return nil
}

// sample returns the decoded sample for note, loading it on first use.
func (s *BeepSink) sample(note string) (*beep.Buffer, error) {
	if buf, ok := s.cache[note]; ok {
		return buf, nil
	}
	path, err := FindSample(s.dir, note)
	if err != nil {
		return nil, err
	}
	buf, err := loadSample(note, path)
	if err != nil {
		return nil, err
	}
	s.cache[note] = buf
	return buf, nil
}

func (s *BeepSink) NoteOff(note string) {
	v, ok := s.voices[note]
	if !ok {
		return
	}
	delete(s.voices, note)

	s.player.Lock()
	v.ctrl.Streamer = nil
	s.player.Unlock()

	s.logger.Debug("note off", "note", note)
}

func (s *BeepSink) SetMasterGain(g float64) {
	s.setMaster(g)
	s.refresh()
}

func (s *BeepSink) SetBellows(a float64) {
	s.setBellows(a)
	s.refresh()
}

// refresh pushes the current volume to every voice.
func (s *BeepSink) refresh() {
	if len(s.voices) == 0 {
		return
	}
	g := s.volume() - 1
	s.player.Lock()
	for _, v := range s.voices {
		v.gain.Gain = g
	}
	s.player.Unlock()
}

func (s *BeepSink) StopAll() {
	s.player.Lock()
	for _, v := range s.voices {
		v.ctrl.Streamer = nil
	}
	s.player.Unlock()
	clear(s.voices)
}

func (s *BeepSink) Active() []string { return sortedKeys(s.voices) }

// Volume returns the gain voices are playing at.
func (s *BeepSink) Volume() float64 { return s.volume() }

func (s *BeepSink) Close() error {
	s.StopAll()
	s.player.Clear()
	s.player.Close()
	return nil
}
