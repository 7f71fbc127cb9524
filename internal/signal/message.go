// Package signal implements the participant side of the relay signaling
// channel: the JSON wire protocol and a WebSocket client with read/write
// pumps. The relay only forwards these frames, it never touches media.
package signal

import (
	"github.com/pion/webrtc/v4"

	"github.com/voicemesh/voicemesh/internal/core"
)

// MessageType identifies the kind of signaling frame.
type MessageType string

const (
	// MsgWelcome is sent by the relay exactly once per connection. It
	// assigns the local id and lists already-connected participants.
	MsgWelcome MessageType = "welcome"
	// MsgUserConnected announces a newly joined participant.
	MsgUserConnected MessageType = "user-connected"
	// MsgUserDisconnected announces a departed participant.
	MsgUserDisconnected MessageType = "user-disconnected"

	MsgOffer        MessageType = "offer"
	MsgAnswer       MessageType = "answer"
	MsgICECandidate MessageType = "ice-candidate"

	// MsgMicStatus broadcasts the sender's mute state to the whole room.
	MsgMicStatus MessageType = "mic-status"

	MsgPing MessageType = "ping"
	MsgPong MessageType = "pong"
)

// Message is the envelope relayed between participants, one frame per
// logical event. Outbound negotiation frames carry To; the relay stamps
// From on delivery. Status is the mic state: true means transmitting.
type Message struct {
	Type      MessageType              `json:"type"`
	ID        core.PeerID              `json:"id,omitempty"`
	From      core.PeerID              `json:"from,omitempty"`
	To        core.PeerID              `json:"to,omitempty"`
	Users     []core.PeerID            `json:"users,omitempty"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
	Status    bool                     `json:"status"`
}
