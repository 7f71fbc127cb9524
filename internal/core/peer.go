// Package core contains the negotiator's domain types and the capability
// interfaces through which its collaborators are consumed.
package core

// PeerID identifies a participant within the current signaling epoch.
// The relay assigns it exactly once per connection via the welcome frame.
type PeerID string

// Role is the perfect-negotiation tie-break role for one session. It is the
// single source of asymmetry in an otherwise symmetric protocol: when both
// sides offer at once, the impolite side's offer wins and the polite side
// yields to the remote offer.
type Role int

const (
	RoleImpolite Role = iota
	RolePolite
)

func (r Role) String() string {
	if r == RolePolite {
		return "polite"
	}
	return "impolite"
}

// RoleFor derives the local side's role for a session with remote.
// The lexicographically smaller id is polite, so both sides always compute
// complementary roles from the same pair regardless of who initiates first.
func RoleFor(local, remote PeerID) Role {
	if local < remote {
		return RolePolite
	}
	return RoleImpolite
}
