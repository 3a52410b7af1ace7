// Package ice decides which remote ICE candidates a peer connection is allowed
// to use.
//
// A Policy is a set of candidate types. Candidates received from a remote
// peer are classified by their textual type and dropped when the type is not
// in the configured set. Locally gathered candidates are never filtered.
package ice

import (
	"fmt"
	"strings"
)

// CandidateType is a single ICE candidate type, as a one-bit Policy.
type CandidateType = Policy

// Policy is a set of accepted candidate types.
type Policy uint8

const (
	// Host candidates are local interface addresses.
	Host Policy = 1 << iota
	// ServerReflexive candidates are addresses learned from a STUN server.
	ServerReflexive
	// PeerReflexive candidates are addresses learned from connectivity checks.
	PeerReflexive
	// Relay candidates are TURN allocations.
	Relay

	// Unknown is the classification of a candidate carrying no recognised
	// type.
	Unknown Policy = 0

	HostOnly               = Host
	ServerReflexiveOnly    = ServerReflexive
	PeerReflexiveOnly      = PeerReflexive
	RelayOnly              = Relay
	HostAndServerReflexive = Host | ServerReflexive
	HostAndPeerReflexive   = Host | PeerReflexive
	HostAndRelay           = Host | Relay
	ReflexiveOnly          = ServerReflexive | PeerReflexive
	HostAndReflexive       = Host | ServerReflexive | PeerReflexive
	All                    = Host | ServerReflexive | PeerReflexive | Relay
)

var policyNames = []struct {
	name   string
	policy Policy
}{
	{"all", All},
	{"host", HostOnly},
	{"srflx", ServerReflexiveOnly},
	{"prflx", PeerReflexiveOnly},
	{"relay", RelayOnly},
	{"host+srflx", HostAndServerReflexive},
	{"host+prflx", HostAndPeerReflexive},
	{"host+relay", HostAndRelay},
	{"reflexive", ReflexiveOnly},
	{"host+reflexive", HostAndReflexive},
}

var aliases = map[string]Policy{
	"hostonly":               HostOnly,
	"serverreflexiveonly":    ServerReflexiveOnly,
	"peerreflexiveonly":      PeerReflexiveOnly,
	"relayonly":              RelayOnly,
	"hostandserverreflexive": HostAndServerReflexive,
	"hostandpeerreflexive":   HostAndPeerReflexive,
	"hostandrelay":           HostAndRelay,
	"reflexiveonly":          ReflexiveOnly,
	"hostandreflexive":       HostAndReflexive,
}

// ParsePolicy converts a policy name, case-insensitively, into a Policy.
// Both the short form ("relay", "host+srflx") and the long form
// ("RelayOnly", "HostAndServerReflexive") are recognised.
func ParsePolicy(name string) (Policy, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, p := range policyNames {
		if p.name == n {
			return p.policy, nil
		}
	}
	if p, ok := aliases[n]; ok {
		return p, nil
	}
	return Unknown, fmt.Errorf("unknown candidate filter %q", name)
}

// String returns the short name of the policy.
func (p Policy) String() string {
	for _, n := range policyNames {
		if n.policy == p {
			return n.name
		}
	}
	if p == Unknown {
		return "unknown"
	}
	return fmt.Sprintf("policy(%d)", uint8(p))
}

// Contains reports whether every type in q is also in p.
func (p Policy) Contains(q Policy) bool {
	return q != Unknown && p&q == q
}

var typeTokens = []struct {
	token string
	typ   CandidateType
}{
	{"relay", Relay},
	{"srflx", ServerReflexive},
	{"prflx", PeerReflexive},
	{"host", Host},
}

// Classify returns the type of a candidate line. The "typ <type>" attribute
// is used when present; otherwise the first type keyword found anywhere in
// the text wins.
func Classify(candidate string) CandidateType {
	fields := strings.Fields(candidate)
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] != "typ" {
			continue
		}
		for _, t := range typeTokens {
			if fields[i+1] == t.token {
				return t.typ
			}
		}
	}

	for _, t := range typeTokens {
		if strings.Contains(candidate, t.token) {
			return t.typ
		}
	}
	return Unknown
}

// Accept reports whether a remote candidate passes the policy. All accepts
// everything, including candidates that cannot be classified.
func Accept(candidate string, policy Policy) bool {
	if policy == All {
		return true
	}
	return policy.Contains(Classify(candidate))
}
