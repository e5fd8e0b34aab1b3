// Package keys turns raw key identities into note names.
//
// KeyMap is loaded once and never mutated; a reload builds a new KeyMap and
// the caller swaps the pointer. PressedKeys tracks press/release with repeat
// suppression so that each key starts at most one note per press.
package keys

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// ConfigError reports a key map that could not be loaded.
type ConfigError struct {
	Path string // empty when parsing from memory
	Key  string // offending key, if any
	Err  error
}

func (e *ConfigError) Error() string {
	prefix := "keymap"
	if e.Path != "" {
		prefix = "keymap " + e.Path
	}
	if e.Key != "" {
		return fmt.Sprintf("%s: invalid key %q: %v", prefix, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", prefix, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

var (
	errKeyLength   = errors.New("keys must be exactly 1 character")
	errNotMapping  = errors.New("document must be an object of key to note name")
	errNoteType    = errors.New("note name must be a string")
	errEmptyNote   = errors.New("note name must not be empty")
	errDuplicate   = errors.New("key defined more than once")
	errEmptyKeymap = errors.New("empty document")
)

// KeyMap maps a single character to a note name such as "c#3".
type KeyMap struct {
	notes map[rune]string
}

// Load reads a key map file. JSON and YAML are both accepted:
//
//	{ "z": "c2", "s": "c#2", "x": "d2" }
//
// Any failure rejects the whole file.
func Load(path string) (*KeyMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("read: %w", err)}
	}
	km, err := Parse(data)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	return km, nil
}

// Parse decodes a key map document.
func Parse(data []byte) (*KeyMap, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("parse: %w", err)}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &ConfigError{Err: errEmptyKeymap}
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ConfigError{Err: errNotMapping}
	}

	notes := make(map[rune]string, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]

		if k.Kind != yaml.ScalarNode || utf8.RuneCountInString(k.Value) != 1 {
			return nil, &ConfigError{Key: k.Value, Err: errKeyLength}
		}
		if v.Kind != yaml.ScalarNode || v.ShortTag() != "!!str" {
			return nil, &ConfigError{Key: k.Value, Err: errNoteType}
		}
		if v.Value == "" {
			return nil, &ConfigError{Key: k.Value, Err: errEmptyNote}
		}

		r, _ := utf8.DecodeRuneInString(k.Value)
		if _, dup := notes[r]; dup {
			return nil, &ConfigError{Key: k.Value, Err: errDuplicate}
		}
		notes[r] = v.Value
	}

	return &KeyMap{notes: notes}, nil
}

// New builds a KeyMap from an in-memory table. The table is copied.
func New(table map[rune]string) *KeyMap {
	notes := make(map[rune]string, len(table))
	for k, v := range table {
		notes[k] = v
	}
	return &KeyMap{notes: notes}
}

// NoteFor looks up the note for a key. A nil KeyMap maps nothing.
func (m *KeyMap) NoteFor(r rune) (string, bool) {
	if m == nil {
		return "", false
	}
	n, ok := m.notes[r]
	return n, ok
}

// Len returns the number of mapped keys.
func (m *KeyMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.notes)
}

// Keys returns the mapped keys in ascending order.
func (m *KeyMap) Keys() []rune {
	if m == nil {
		return nil
	}
	out := make([]rune, 0, len(m.notes))
	for r := range m.notes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
