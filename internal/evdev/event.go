// Package evdev reads keyboards through Linux input event devices
// (/dev/input/event*). Unlike a terminal, evdev reports real key releases,
// so notes stop exactly when the key comes up.
package evdev

import (
	"bytes"
	"encoding/binary"
)

// Linux input event types and values (from <linux/input.h>).
const (
	EV_KEY = 0x01

	valueRelease = 0
	valuePress   = 1
	valueRepeat  = 2
)

// Event is a raw Linux input event.
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type Event struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

var eventSize = binary.Size(Event{})

// decode parses one event from buf. reader is reused between calls.
func decode(reader *bytes.Reader, buf []byte) (Event, bool) {
	reader.Reset(buf)
	var ev Event
	if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
		return Event{}, false
	}
	return ev, true
}

// KeyEvent is a key press, auto-repeat or release translated to a rune.
type KeyEvent struct {
	Rune   rune
	Down   bool
	Repeat bool
	Device string
}

// Translate converts a raw event to a KeyEvent. Non-key events and keys
// without a character are dropped.
func Translate(ev Event) (KeyEvent, bool) {
	if ev.Type != EV_KEY {
		return KeyEvent{}, false
	}
	r, ok := keyRunes[ev.Code]
	if !ok {
		return KeyEvent{}, false
	}
	switch ev.Value {
	case valuePress:
		return KeyEvent{Rune: r, Down: true}, true
	case valueRepeat:
		return KeyEvent{Rune: r, Down: true, Repeat: true}, true
	case valueRelease:
		return KeyEvent{Rune: r}, true
	default:
		return KeyEvent{}, false
	}
}

// keyRunes maps key codes of a US layout to the unshifted character.
var keyRunes = map[uint16]rune{
	2: '1', 3: '2', 4: '3', 5: '4', 6: '5', 7: '6', 8: '7', 9: '8', 10: '9', 11: '0',
	12: '-', 13: '=',
	16: 'q', 17: 'w', 18: 'e', 19: 'r', 20: 't', 21: 'y', 22: 'u', 23: 'i', 24: 'o', 25: 'p',
	26: '[', 27: ']',
	30: 'a', 31: 's', 32: 'd', 33: 'f', 34: 'g', 35: 'h', 36: 'j', 37: 'k', 38: 'l',
	39: ';', 40: '\'', 41: '`', 43: '\\',
	44: 'z', 45: 'x', 46: 'c', 47: 'v', 48: 'b', 49: 'n', 50: 'm',
	51: ',', 52: '.', 53: '/',
	57: ' ',
}
