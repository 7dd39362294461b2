package sharing

import (
	"errors"
	"fmt"
)

// Level is a permission level. Higher levels include the lower ones.
type Level int

const (
	LevelNone Level = iota
	LevelRead
	LevelWrite
	LevelAdmin
)

// ErrInvalidLevel is returned for an unrecognized permission name.
var ErrInvalidLevel = errors.New("unknown permission level")

// ParseLevel converts the stored permission name into a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "read":
		return LevelRead, nil
	case "write":
		return LevelWrite, nil
	case "admin":
		return LevelAdmin, nil
	}
	return LevelNone, fmt.Errorf("%w %q", ErrInvalidLevel, s)
}

func (l Level) String() string {
	switch l {
	case LevelRead:
		return "read"
	case LevelWrite:
		return "write"
	case LevelAdmin:
		return "admin"
	}
	return "none"
}

// Satisfies reports whether l meets required.
func (l Level) Satisfies(required Level) bool {
	return l >= required
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
