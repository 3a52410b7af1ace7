package transport

import (
	"fmt"
	"strings"
)

// Status is the aggregate connection status of the transport.
type Status uint8

const (
	// Disconnected means there is nothing to talk to: no roster yet, or the
	// session is over.
	Disconnected Status = iota
	// Connecting ...
	Connecting
	// Connected means the ReadyPolicy is satisfied.
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// ReadyPolicy decides how many expected peers must have their main channel
// open for the transport to be Connected.
type ReadyPolicy uint8

const (
	// ReadyAll waits for every expected peer.
	ReadyAll ReadyPolicy = iota
	// ReadyAny is satisfied by the first one.
	ReadyAny
)

func (p ReadyPolicy) String() string {
	if p == ReadyAny {
		return "any"
	}
	return "all"
}

// ParseReadyPolicy ...
func ParseReadyPolicy(s string) (ReadyPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all", "":
		return ReadyAll, nil
	case "any":
		return ReadyAny, nil
	default:
		return ReadyAll, fmt.Errorf("unknown ready policy %q", s)
	}
}

// satisfied reports whether ready out of expected peers meets the policy.
func (p ReadyPolicy) satisfied(ready, expected int) bool {
	if expected == 0 || ready == 0 {
		return false
	}
	if p == ReadyAny {
		return true
	}
	return ready >= expected
}
