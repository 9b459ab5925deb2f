package domain

import (
	"strings"
	"time"
)

type SessionID string

// Valid rejects blank IDs and IDs containing the key separator, which
// would let one session's key prefix cover another session's keys.
func (id SessionID) Valid() bool {
	return strings.TrimSpace(string(id)) != "" && !strings.Contains(string(id), keySeparator)
}

type Frame struct {
	Seq       uint64
	Screen    string
	EnteredAt time.Time
}

func (f Frame) IsZero() bool {
	return f.Seq == 0
}
