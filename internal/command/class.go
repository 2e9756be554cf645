package command

import "fmt"

// Class is the static classification of a registered command. It selects
// inline vs. bridged execution on the host and timeout/settle policy on the
// client.
type Class int

const (
	ReadOnly Class = iota
	Mutating
	LongRunning
)

func (c Class) String() string {
	switch c {
	case ReadOnly:
		return "read_only"
	case Mutating:
		return "mutating"
	case LongRunning:
		return "long_running"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Valid reports whether c is one of the defined classes.
func (c Class) Valid() bool {
	return c >= ReadOnly && c <= LongRunning
}

// Bridged reports whether commands of this class run on the host main loop.
func (c Class) Bridged() bool {
	return c == Mutating || c == LongRunning
}

// ParseClass parses the String form of a class.
func ParseClass(s string) (Class, error) {
	switch s {
	case "read_only":
		return ReadOnly, nil
	case "mutating":
		return Mutating, nil
	case "long_running":
		return LongRunning, nil
	default:
		return 0, fmt.Errorf("unknown command class %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Class) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid command class %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Class) UnmarshalText(text []byte) error {
	parsed, err := ParseClass(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Classifier resolves a command name to its class.
type Classifier interface {
	Class(name string) (Class, bool)
}

// Table is a static name → class map. It is the client's view of the host
// catalogue.
type Table map[string]Class

// Class implements Classifier.
func (t Table) Class(name string) (Class, bool) {
	c, ok := t[name]
	return c, ok
}
