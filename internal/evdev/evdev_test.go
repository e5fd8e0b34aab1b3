package evdev

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func encode(t *testing.T, ev Event) []byte {
	t.Helper()
	var b bytes.Buffer
	if err := binary.Write(&b, binary.LittleEndian, ev); err != nil {
		t.Fatal(err)
	}
	return b.Bytes()
}

func TestDecode(t *testing.T) {
	if eventSize != 24 {
		t.Fatalf("input_event is 24 bytes on 64-bit, got %d", eventSize)
	}

	want := Event{Sec: 12, Usec: 34, Type: EV_KEY, Code: 30, Value: valuePress}
	buf := encode(t, want)

	got, ok := decode(bytes.NewReader(nil), buf)
	if !ok || got != want {
		t.Fatalf("decode = %+v, %v", got, ok)
	}

	if _, ok := decode(bytes.NewReader(nil), buf[:10]); ok {
		t.Errorf("short buffer must not decode")
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		ev   Event
		want KeyEvent
		ok   bool
	}{
		{Event{Type: EV_KEY, Code: 30, Value: valuePress}, KeyEvent{Rune: 'a', Down: true}, true},
		{Event{Type: EV_KEY, Code: 30, Value: valueRepeat}, KeyEvent{Rune: 'a', Down: true, Repeat: true}, true},
		{Event{Type: EV_KEY, Code: 30, Value: valueRelease}, KeyEvent{Rune: 'a'}, true},
		{Event{Type: EV_KEY, Code: 11, Value: valuePress}, KeyEvent{Rune: '0', Down: true}, true},
		{Event{Type: EV_KEY, Code: 57, Value: valuePress}, KeyEvent{Rune: ' ', Down: true}, true},
		{Event{Type: EV_KEY, Code: 1, Value: valuePress}, KeyEvent{}, false},   // escape
		{Event{Type: 0x00, Code: 30, Value: valuePress}, KeyEvent{}, false},    // EV_SYN
		{Event{Type: EV_KEY, Code: 30, Value: 7}, KeyEvent{}, false},           // unknown value
		{Event{Type: EV_KEY, Code: 115, Value: valuePress}, KeyEvent{}, false}, // volume up
	}

	for _, tt := range tests {
		got, ok := Translate(tt.ev)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Translate(%+v) = %+v, %v; want %+v, %v", tt.ev, got, ok, tt.want, tt.ok)
		}
	}
}

func TestKeyRunes_Unique(t *testing.T) {
	seen := make(map[rune]uint16)
	for code, r := range keyRunes {
		if other, dup := seen[r]; dup {
			t.Errorf("rune %q mapped from codes %d and %d", r, code, other)
		}
		seen[r] = code
	}
}
