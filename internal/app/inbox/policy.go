package inbox

import (
	"fmt"
	"strings"
)

// OverflowPolicy decides what happens to a message arriving at a full queue.
type OverflowPolicy int

const (
	// DropOldest evicts the head of the queue to make room.
	DropOldest OverflowPolicy = iota
	// Reject discards the arriving message.
	Reject
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case Reject:
		return "reject"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(p))
	}
}

// ParsePolicy maps a config value to a policy. Empty means DropOldest.
func ParsePolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop_oldest":
		return DropOldest, nil
	case "reject":
		return Reject, nil
	default:
		return DropOldest, fmt.Errorf("unknown overflow policy %q", s)
	}
}
