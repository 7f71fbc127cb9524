package mesh

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/voicemesh/voicemesh/internal/core"
	"github.com/voicemesh/voicemesh/internal/signal"
)

// LocalMedia supplies the current outbound audio track. Nil means no media
// is available yet; the negotiator attaches it lazily once it appears.
type LocalMedia interface {
	Track() webrtc.TrackLocal
}

// Negotiator is the perfect-negotiation engine. All inbound signaling frames
// flow through HandleMessage; outbound frames leave through the injected
// Sender. The protocol is designed to stay consistent under interleaving:
// races between symmetric offers are resolved by the politeness rule, not by
// mutual exclusion.
type Negotiator struct {
	signal       core.Sender
	newTransport core.TransportFactory
	media        LocalMedia
	sessions     *SessionTable
	mic          *MicStatus

	localID atomicPeerID

	onPeerJoined  func(core.PeerID)
	onPeerLeft    func(core.PeerID)
	onRemoteTrack func(core.PeerID, *webrtc.TrackRemote, *webrtc.RTPReceiver)
}

// New wires a Negotiator. media may be nil when the participant is
// receive-only.
func New(sender core.Sender, factory core.TransportFactory, media LocalMedia) *Negotiator {
	return &Negotiator{
		signal:       sender,
		newTransport: factory,
		media:        media,
		sessions:     NewSessionTable(),
		mic:          NewMicStatus(sender),
	}
}

// Mic exposes the mic-status broadcaster bound to this negotiator's
// signaling channel.
func (n *Negotiator) Mic() *MicStatus { return n.mic }

// OnPeerJoined sets a callback fired when a session is first created.
func (n *Negotiator) OnPeerJoined(fn func(core.PeerID)) { n.onPeerJoined = fn }

// OnPeerLeft sets a callback fired when a session is torn down.
func (n *Negotiator) OnPeerLeft(fn func(core.PeerID)) { n.onPeerLeft = fn }

// OnRemoteTrack sets a callback fired when a remote audio track arrives,
// keyed by the originating session's peer id.
func (n *Negotiator) OnRemoteTrack(fn func(core.PeerID, *webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	n.onRemoteTrack = fn
}

// LocalID returns the id assigned by the welcome frame, empty before it.
func (n *Negotiator) LocalID() core.PeerID { return n.localID.Load() }

// Sessions returns the live session table.
func (n *Negotiator) Sessions() *SessionTable { return n.sessions }

// HandleMessage is the single entry point for inbound signaling frames.
func (n *Negotiator) HandleMessage(msg signal.Message) {
	switch msg.Type {
	case signal.MsgWelcome:
		n.handleWelcome(msg)
	case signal.MsgUserConnected:
		n.handleUserConnected(msg.ID)
	case signal.MsgUserDisconnected:
		n.RemoveSession(msg.ID)
	case signal.MsgOffer:
		n.handleOffer(msg.From, msg.SDP)
	case signal.MsgAnswer:
		n.handleAnswer(msg.From, msg.SDP)
	case signal.MsgICECandidate:
		n.handleCandidate(msg.From, msg.Candidate)
	case signal.MsgMicStatus:
		n.handleMicStatus(msg)
	case signal.MsgPong:
		// keepalive reply, nothing to do
	default:
		log.Warn().Str("module", "mesh").Str("type", string(msg.Type)).Msg("unknown signal")
	}
}

// handleWelcome adopts the relay-assigned id and initiates a session with
// every already-connected participant. The id is immutable for the
// connection lifetime; a second welcome is dropped.
func (n *Negotiator) handleWelcome(msg signal.Message) {
	if msg.ID == "" {
		log.Warn().Str("module", "mesh").Msg("welcome without id dropped")
		return
	}
	if !n.localID.CompareAndSwap("", msg.ID) {
		log.Warn().Str("module", "mesh").Str("id", string(msg.ID)).Msg("duplicate welcome dropped")
		return
	}
	log.Info().Str("module", "mesh").Str("id", string(msg.ID)).
		Int("peers", len(msg.Users)).Msg("welcome")
	for _, remote := range msg.Users {
		n.Connect(remote)
	}
}

func (n *Negotiator) handleUserConnected(remote core.PeerID) {
	if remote == "" || remote == n.LocalID() {
		return
	}
	log.Info().Str("module", "mesh").Str("remote", string(remote)).Msg("peer connected")
	// The peer will receive our id in its welcome roster and offer to us;
	// connecting from both ends is safe, glare resolves via politeness.
	n.Connect(remote)
}

// Connect ensures a session with remote exists and initiates an offer when
// the transport is idle. Skips silently when preconditions are not met: a
// deliberate no-op, not a failure.
func (n *Negotiator) Connect(remote core.PeerID) {
	s, err := n.ensureSession(remote)
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("remote", string(remote)).Msg("create session")
		return
	}
	n.sendOffer(s)
}

// ensureSession returns the session for remote, creating transport, role and
// the single audio transceiver on first contact. Construction runs outside
// the table lock; when two triggers race, the loser's transport is closed
// and the winner's session is reused.
func (n *Negotiator) ensureSession(remote core.PeerID) (*Session, error) {
	if s, ok := n.sessions.Get(remote); ok {
		return s, nil
	}

	tr, err := n.newTransport()
	if err != nil {
		return nil, err
	}
	sess := &Session{
		remoteID:  remote,
		role:      core.RoleFor(n.LocalID(), remote),
		transport: tr,
	}
	n.wireTransport(sess)
	if _, err := sess.ensureSender(); err != nil {
		// Tolerated: attachTrack retries transceiver creation later.
		log.Warn().Err(err).Str("module", "mesh").Str("remote", string(remote)).
			Msg("create audio transceiver")
	}

	s, inserted := n.sessions.Insert(remote, sess)
	if !inserted {
		tr.Close()
		return s, nil
	}
	log.Info().Str("module", "mesh").Str("remote", string(remote)).
		Str("role", s.role.String()).Msg("session created")
	if n.onPeerJoined != nil {
		n.onPeerJoined(remote)
	}
	return s, nil
}

// wireTransport subscribes the session to its transport's events: locally
// gathered candidates go out over signaling, terminal connectivity states
// tear the session down, inbound tracks surface to the consumer.
func (n *Negotiator) wireTransport(s *Session) {
	remote := s.remoteID
	s.transport.OnICECandidate(func(cand webrtc.ICECandidateInit) {
		msg := signal.Message{Type: signal.MsgICECandidate, To: remote, Candidate: &cand}
		if err := n.signal.TrySend(msg); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("remote", string(remote)).
				Msg("send candidate")
		}
	})
	s.transport.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Info().Str("module", "mesh").Str("remote", string(remote)).
			Str("state", state.String()).Msg("connection state")
		switch state {
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
			n.RemoveSession(remote)
		}
	})
	s.transport.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().Str("module", "mesh").Str("remote", string(remote)).
			Str("kind", track.Kind().String()).Str("track_id", track.ID()).Msg("remote track")
		if n.onRemoteTrack != nil {
			n.onRemoteTrack(remote, track, receiver)
		}
	})
}

// sendOffer runs one offer-construction+send operation. Preconditions: the
// transport is stable and no offer is in flight — otherwise this is a silent
// skip and a future trigger retries. makingOffer is cleared unconditionally,
// including on failure.
func (n *Negotiator) sendOffer(s *Session) {
	if s.makingOffer.Load() || s.transport.SignalingState() != webrtc.SignalingStateStable {
		return
	}
	if err := s.attachTrack(n.localTrack()); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("remote", string(s.remoteID)).
			Msg("attach local track")
	}

	s.makingOffer.Store(true)
	defer s.makingOffer.Store(false)

	offer, err := s.transport.CreateOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("remote", string(s.remoteID)).Msg("create offer")
		return
	}
	if err := s.transport.SetLocalDescription(offer); err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("remote", string(s.remoteID)).Msg("set local offer")
		return
	}
	msg := signal.Message{Type: signal.MsgOffer, To: s.remoteID, SDP: offer.SDP}
	if err := n.signal.TrySend(msg); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("remote", string(s.remoteID)).Msg("send offer")
	}
}

// handleOffer processes a remote offer. On collision (we are mid-offer or
// not stable) the impolite side discards the offer — its own offer proceeds
// and the conflict resolves when the polite peer yields. The polite side
// proceeds anyway.
func (n *Negotiator) handleOffer(from core.PeerID, sdp string) {
	if from == "" {
		return
	}
	s, err := n.ensureSession(from)
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("remote", string(from)).Msg("create session for offer")
		return
	}

	collision := s.makingOffer.Load() || s.transport.SignalingState() != webrtc.SignalingStateStable
	if collision && s.role == core.RoleImpolite {
		log.Debug().Str("module", "mesh").Str("remote", string(from)).
			Msg("glare: impolite side ignoring remote offer")
		return
	}

	if err := s.attachTrack(n.localTrack()); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("remote", string(from)).Msg("attach local track")
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := s.transport.SetRemoteDescription(offer); err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("remote", string(from)).Msg("set remote offer")
		return
	}
	s.drainCandidates()

	answer, err := s.transport.CreateAnswer()
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("remote", string(from)).Msg("create answer")
		return
	}
	if err := s.transport.SetLocalDescription(answer); err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("remote", string(from)).Msg("set local answer")
		return
	}
	msg := signal.Message{Type: signal.MsgAnswer, To: from, SDP: answer.SDP}
	if err := n.signal.TrySend(msg); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("remote", string(from)).Msg("send answer")
	}
}

// handleAnswer applies a remote answer. Valid only while an own offer is
// outstanding; anything else is a stale or unsolicited answer from reordered
// delivery and is discarded without touching session state.
func (n *Negotiator) handleAnswer(from core.PeerID, sdp string) {
	s, ok := n.sessions.Get(from)
	if !ok {
		log.Debug().Str("module", "mesh").Str("remote", string(from)).Msg("answer for unknown session dropped")
		return
	}
	if s.transport.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		log.Debug().Str("module", "mesh").Str("remote", string(from)).
			Str("state", s.transport.SignalingState().String()).Msg("stale answer dropped")
		return
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := s.transport.SetRemoteDescription(answer); err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("remote", string(from)).Msg("set remote answer")
		return
	}
	s.drainCandidates()
}

// handleCandidate routes a remote candidate to its session, creating the
// session when the candidate outraces the first offer. Buffering happens
// inside the session until a remote description exists.
func (n *Negotiator) handleCandidate(from core.PeerID, cand *webrtc.ICECandidateInit) {
	if from == "" || cand == nil {
		return
	}
	s, err := n.ensureSession(from)
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("remote", string(from)).Msg("create session for candidate")
		return
	}
	s.addCandidate(*cand)
}

func (n *Negotiator) handleMicStatus(msg signal.Message) {
	sender := msg.ID
	if sender == "" {
		sender = msg.From
	}
	if sender == "" || sender == n.LocalID() {
		return
	}
	n.mic.ingest(sender, msg.Status)
}

// OnLocalTrackChanged republishes the current local track to every session
// and renegotiates where the handshake is already done. Sessions that are
// mid-negotiation skip silently; the next trigger retries. Mute toggles do
// not come through here — they never renegotiate.
func (n *Negotiator) OnLocalTrackChanged() {
	track := n.localTrack()
	if track == nil {
		return
	}
	for _, s := range n.sessions.All() {
		if err := s.attachTrack(track); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("remote", string(s.remoteID)).
				Msg("attach local track")
			continue
		}
		n.renegotiate(s)
	}
}

// renegotiate issues a fresh offer after a media change. Gated on an
// existing remote description, no offer in flight and a stable phase, which
// prevents glare from media-only changes.
func (n *Negotiator) renegotiate(s *Session) {
	if !s.transport.HasRemoteDescription() {
		// Initial handshake not done yet; the offer that establishes the
		// session carries the track already.
		n.sendOffer(s)
		return
	}
	if s.makingOffer.Load() || s.transport.SignalingState() != webrtc.SignalingStateStable {
		return
	}
	n.sendOffer(s)
}

// RemoveSession tears down the session for remote: table removal and
// transport close happen together, so no orphaned transports remain.
// Idempotent, and safe while a negotiation for the session is mid-flight —
// later steps hit the closed transport, log and abort.
func (n *Negotiator) RemoveSession(remote core.PeerID) {
	s, ok := n.sessions.Remove(remote)
	if !ok {
		return
	}
	s.transport.Close()
	n.mic.forget(remote)
	log.Info().Str("module", "mesh").Str("remote", string(remote)).Msg("session removed")
	if n.onPeerLeft != nil {
		n.onPeerLeft(remote)
	}
}

// Close tears down every session.
func (n *Negotiator) Close() {
	for _, s := range n.sessions.All() {
		n.RemoveSession(s.remoteID)
	}
}

func (n *Negotiator) localTrack() webrtc.TrackLocal {
	if n.media == nil {
		return nil
	}
	return n.media.Track()
}

// atomicPeerID guards the write-once local id.
type atomicPeerID struct {
	mu sync.RWMutex
	id core.PeerID
}

func (a *atomicPeerID) Load() core.PeerID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.id
}

func (a *atomicPeerID) CompareAndSwap(old, next core.PeerID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.id != old {
		return false
	}
	a.id = next
	return true
}
