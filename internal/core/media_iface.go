package core

import (
	"github.com/pion/webrtc/v4"
)

// TrackSender is the outbound half of one negotiated audio transceiver.
// Replacement is in-place: it never adds a media line, so the negotiated
// SDP stays stable across track changes.
type TrackSender interface {
	// Track returns the currently attached outbound track, nil if none.
	Track() webrtc.TrackLocal
	// ReplaceTrack swaps the outbound track without renegotiating.
	ReplaceTrack(webrtc.TrackLocal) error
}

// MediaTransport abstracts the platform peer connection behind the narrow
// set of capabilities the negotiator needs. The real implementation lives in
// adapters/rtc; tests substitute a fake that completes description and
// candidate operations deterministically.
type MediaTransport interface {
	// AddAudioTransceiver creates the session's single sendrecv audio
	// transceiver and returns its sender.
	AddAudioTransceiver() (TrackSender, error)

	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error

	// HasRemoteDescription reports whether a remote description has been
	// applied. Gates candidate application and renegotiation.
	HasRemoteDescription() bool
	// SignalingState mirrors the transport's negotiation phase.
	SignalingState() webrtc.SignalingState

	// AddICECandidate applies a remote ICE candidate. Failures degrade
	// connectivity quality, they never invalidate the session.
	AddICECandidate(webrtc.ICECandidateInit) error

	// Close releases the transport. Idempotent.
	Close()

	// OnICECandidate sets a callback for newly gathered local candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnConnectionStateChange sets a callback for connectivity transitions.
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	// OnTrack sets a callback invoked when a remote track arrives.
	OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
}

// TransportFactory creates one MediaTransport per session.
type TransportFactory func() (MediaTransport, error)
