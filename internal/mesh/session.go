// Package mesh implements perfect negotiation for a full audio mesh: one
// Session per remote participant, deterministic polite/impolite roles,
// offer/answer collision resolution and out-of-order candidate buffering.
package mesh

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/voicemesh/voicemesh/internal/core"
)

// Session holds the negotiation and transport state for one remote
// participant. The transport is owned exclusively: it is created once with
// the Session and closed exactly once when the Session leaves the table.
type Session struct {
	remoteID core.PeerID
	role     core.Role // fixed at first contact, never recomputed

	transport core.MediaTransport

	// makingOffer is true only while this side is constructing and sending
	// an offer. Always cleared when that operation completes, success or not.
	makingOffer atomic.Bool

	// senderMu guards sender; the track itself is owned by the mute gate,
	// the Session only holds the transceiver's sending half.
	senderMu sync.Mutex
	sender   core.TrackSender

	// candMu guards the pending-candidate buffer. The buffer is only
	// non-empty before a remote description has been applied; after the
	// first drain it stays permanently empty.
	candMu    sync.Mutex
	pending   []webrtc.ICECandidateInit
	remoteSet bool
}

func (s *Session) RemoteID() core.PeerID { return s.remoteID }
func (s *Session) Role() core.Role       { return s.role }

// addCandidate applies cand immediately when a remote description exists,
// otherwise buffers it in arrival order. Application failures are logged and
// absorbed: candidate loss degrades connectivity, it never kills the session.
func (s *Session) addCandidate(cand webrtc.ICECandidateInit) {
	s.candMu.Lock()
	if !s.remoteSet {
		s.pending = append(s.pending, cand)
		s.candMu.Unlock()
		log.Debug().Str("module", "mesh").Str("remote", string(s.remoteID)).
			Int("buffered", len(s.pending)).Msg("candidate buffered before remote description")
		return
	}
	s.candMu.Unlock()

	if err := s.transport.AddICECandidate(cand); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("remote", string(s.remoteID)).
			Msg("add ice candidate")
	}
}

// drainCandidates marks the remote description as applied and flushes the
// buffer in original arrival order. Called immediately after every
// successful SetRemoteDescription.
func (s *Session) drainCandidates() {
	s.candMu.Lock()
	s.remoteSet = true
	queued := s.pending
	s.pending = nil
	s.candMu.Unlock()

	for _, cand := range queued {
		if err := s.transport.AddICECandidate(cand); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("remote", string(s.remoteID)).
				Msg("apply buffered candidate")
		}
	}
	if len(queued) > 0 {
		log.Debug().Str("module", "mesh").Str("remote", string(s.remoteID)).
			Int("count", len(queued)).Msg("drained buffered candidates")
	}
}

// ensureSender returns the session's single outbound audio sender, creating
// the transceiver on first use. One transceiver per session lifetime keeps
// the media line count stable across renegotiations.
func (s *Session) ensureSender() (core.TrackSender, error) {
	s.senderMu.Lock()
	defer s.senderMu.Unlock()
	if s.sender != nil {
		return s.sender, nil
	}
	snd, err := s.transport.AddAudioTransceiver()
	if err != nil {
		return nil, err
	}
	s.sender = snd
	return snd, nil
}

// attachTrack points the session's sender at track. No-op when the desired
// track is already attached; otherwise an in-place replacement that does not
// create a new negotiation unit.
func (s *Session) attachTrack(track webrtc.TrackLocal) error {
	if track == nil {
		return nil
	}
	snd, err := s.ensureSender()
	if err != nil {
		return err
	}
	if snd.Track() == track {
		return nil
	}
	return snd.ReplaceTrack(track)
}
