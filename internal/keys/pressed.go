package keys

import "sort"

// PressedKeys tracks which keys are down and which note each down key
// started. Every key in the key-to-note map is also in the down set.
//
// PressedKeys is single-owner; it is not safe for concurrent use.
type PressedKeys struct {
	down      map[rune]struct{}
	keyToNote map[rune]string
}

// NewPressedKeys returns an empty tracker.
func NewPressedKeys() *PressedKeys {
	return &PressedKeys{
		down:      make(map[rune]struct{}),
		keyToNote: make(map[rune]string),
	}
}

// KeyDown records a press. It returns the note to start only when this press
// activated one: repeats of a held key and unmapped keys return false.
// An unmapped key is still tracked as down.
func (p *PressedKeys) KeyDown(r rune, km *KeyMap) (string, bool) {
	if _, held := p.down[r]; held {
		return "", false
	}
	p.down[r] = struct{}{}

	note, ok := km.NoteFor(r)
	if !ok {
		return "", false
	}
	p.keyToNote[r] = note
	return note, true
}

// KeyUp records a release. It returns the note this key had started, if any,
// so that keys which never started a note produce no note-off.
func (p *PressedKeys) KeyUp(r rune) (string, bool) {
	delete(p.down, r)
	note, ok := p.keyToNote[r]
	if ok {
		delete(p.keyToNote, r)
	}
	return note, ok
}

// IsDown reports whether r is currently held.
func (p *PressedKeys) IsDown(r rune) bool {
	_, ok := p.down[r]
	return ok
}

// ActiveNotes returns the notes of all held keys, sorted for display.
func (p *PressedKeys) ActiveNotes() []string {
	notes := make([]string, 0, len(p.keyToNote))
	for _, n := range p.keyToNote {
		notes = append(notes, n)
	}
	sort.Strings(notes)
	return notes
}

// NoteSounding reports whether any held key still maps to note. Two keys can
// be mapped to the same note; releasing one must not silence the other.
func (p *PressedKeys) NoteSounding(note string) bool {
	for _, n := range p.keyToNote {
		if n == note {
			return true
		}
	}
	return false
}

// ReleaseAll forgets every held key and returns the notes that were active,
// sorted and de-duplicated.
func (p *PressedKeys) ReleaseAll() []string {
	seen := make(map[string]struct{}, len(p.keyToNote))
	notes := make([]string, 0, len(p.keyToNote))
	for _, n := range p.keyToNote {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		notes = append(notes, n)
	}
	sort.Strings(notes)

	clear(p.down)
	clear(p.keyToNote)
	return notes
}
