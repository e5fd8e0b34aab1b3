package main

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"harmonium/internal/control"
	"harmonium/internal/evdev"
	"harmonium/internal/harmonium"
)

// frameMsg drives one instrument frame.
type frameMsg time.Time

// controlMsg is a control socket request waiting to be applied.
type controlMsg control.Request

// keyEventMsg is a key from an evdev keyboard.
type keyEventMsg evdev.KeyEvent

// keyboardClosedMsg reports that the evdev reader stopped.
type keyboardClosedMsg struct{}

const keyboardFallbackNotice = "Keyboard input unavailable, using terminal keys"

type modelConfig struct {
	FPS       int
	Requests  <-chan control.Request
	KeyEvents <-chan evdev.KeyEvent
	Notices   []string
}

// model is the foreground loop. Update is the only code that touches the
// instrument.
type model struct {
	inst *harmonium.Instrument

	frame     time.Duration
	requests  <-chan control.Request
	keyEvents <-chan evdev.KeyEvent
	notices   []string

	selected int
	width    int
	now      func() time.Time
}

func newModel(inst *harmonium.Instrument, cfg modelConfig) model {
	fps := cfg.FPS
	if fps <= 0 {
		fps = 60
	}
	return model{
		inst:      inst,
		frame:     time.Second / time.Duration(fps),
		requests:  cfg.Requests,
		keyEvents: cfg.KeyEvents,
		notices:   cfg.Notices,
		now:       time.Now,
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func listenForRequests(ch <-chan control.Request) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		req, ok := <-ch
		if !ok {
			return nil
		}
		return controlMsg(req)
	}
}

func listenForKeys(ch <-chan evdev.KeyEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return keyboardClosedMsg{}
		}
		return keyEventMsg(ev)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.frame),
		listenForRequests(m.requests),
		listenForKeys(m.keyEvents),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		m.inst.Frame(time.Time(msg))
		return m, tick(m.frame)

	case controlMsg:
		// Reply is buffered; the sender is waiting on it.
		msg.Reply <- m.inst.Apply(msg.Event)
		return m, listenForRequests(m.requests)

	case keyEventMsg:
		switch {
		case !msg.Down:
			m.inst.KeyRelease(msg.Rune)
		case !msg.Repeat:
			m.inst.KeyPress(msg.Rune)
		}
		return m, listenForKeys(m.keyEvents)

	case keyboardClosedMsg:
		// Terminal keys take over; keys still held on the device are let go.
		m.keyEvents = nil
		m.inst.StopAll()
		m.notices = append(append([]string(nil), m.notices...), keyboardFallbackNotice)

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "up":
		if m.selected > 0 {
			m.selected--
		}
	case "down":
		if m.selected < len(harmonium.Tunables)-1 {
			m.selected++
		}
	case "left":
		m.inst.NudgeParam(m.selected, -1)
	case "right":
		m.inst.NudgeParam(m.selected, 1)
	case "pgup":
		m.inst.NudgeMasterGain(1)
	case "pgdown":
		m.inst.NudgeMasterGain(-1)

	case "ctrl+r":
		m.inst.Reset()
	case "ctrl+k":
		m.inst.ReloadKeyMap("")
	case "ctrl+x":
		m.inst.StopAll()

	default:
		m.playKeys(msg)
	}
	return m, nil
}

// playKeys treats typed characters as note keys. With evdev keyboards
// configured the terminal copy of each key is ignored.
func (m model) playKeys(msg tea.KeyMsg) {
	if m.keyEvents != nil {
		return
	}

	var runes []rune
	switch msg.Type {
	case tea.KeyRunes:
		if msg.Alt || msg.Paste {
			return
		}
		runes = msg.Runes
	case tea.KeySpace:
		runes = []rune{' '}
	default:
		return
	}

	now := m.now()
	for _, r := range runes {
		m.inst.TerminalKey(r, now)
	}
}
