package fixture

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrInvalidJSON is returned when a fixture is not valid JSON text.
var ErrInvalidJSON = errors.New("invalid json")

// Event is a parsed fixture. The bytes are kept exactly as read so the
// handler receives the document unchanged.
type Event json.RawMessage

// Resolve joins name onto base unless name is already absolute.
func Resolve(base, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(base, name)
}

// Load reads the fixture at path and checks that it holds a single JSON
// document.
func Load(path string) (Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	ev, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return ev, nil
}

// Parse validates data as JSON and returns it as an Event. Surrounding
// whitespace is trimmed.
func Parse(data []byte) (Event, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return Event(bytes.TrimSpace(data)), nil
}

// Decode returns the generic tree form of ev.
func Decode(ev Event) (any, error) {
	var v any
	if err := json.Unmarshal(ev, &v); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return v, nil
}

// Bytes returns the raw payload handed to a handler.
func (e Event) Bytes() []byte { return []byte(e) }
