package mesh

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/voicemesh/voicemesh/internal/core"
	"github.com/voicemesh/voicemesh/internal/signal"
)

// fakeSender records track attachment.
type fakeSender struct {
	mu       sync.Mutex
	track    webrtc.TrackLocal
	replaced int
}

func (f *fakeSender) Track() webrtc.TrackLocal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.track
}

func (f *fakeSender) ReplaceTrack(t webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.track = t
	f.replaced++
	return nil
}

// fakeTransport completes description and candidate operations
// deterministically, mirroring the signaling-state machine of the real
// adapter (including implicit rollback when an offer lands on a pending
// local offer).
type fakeTransport struct {
	mu        sync.Mutex
	state     webrtc.SignalingState
	remoteSet bool
	remoteSDP string
	applied   []webrtc.ICECandidateInit

	sender       *fakeSender
	transceivers int
	closed       int

	offerErr       error
	answerErr      error
	setLocalErr    error
	setRemoteErr   error
	candidateErr   error
	transceiverErr error

	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.PeerConnectionState)
	onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{state: webrtc.SignalingStateStable}
}

func (f *fakeTransport) AddAudioTransceiver() (core.TrackSender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transceiverErr != nil {
		return nil, f.transceiverErr
	}
	f.transceivers++
	f.sender = &fakeSender{}
	return f.sender, nil
}

func (f *fakeTransport) CreateOffer() (webrtc.SessionDescription, error) {
	if f.offerErr != nil {
		return webrtc.SessionDescription{}, f.offerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (f *fakeTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	if f.answerErr != nil {
		return webrtc.SessionDescription{}, f.answerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (f *fakeTransport) SetLocalDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setLocalErr != nil {
		return f.setLocalErr
	}
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		f.state = webrtc.SignalingStateHaveLocalOffer
	case webrtc.SDPTypeAnswer, webrtc.SDPTypeRollback:
		f.state = webrtc.SignalingStateStable
	}
	return nil
}

func (f *fakeTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setRemoteErr != nil {
		return f.setRemoteErr
	}
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		// implicit rollback of a pending local offer, as in the adapter
		f.state = webrtc.SignalingStateHaveRemoteOffer
	case webrtc.SDPTypeAnswer:
		f.state = webrtc.SignalingStateStable
	}
	f.remoteSet = true
	f.remoteSDP = desc.SDP
	return nil
}

func (f *fakeTransport) HasRemoteDescription() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remoteSet
}

func (f *fakeTransport) SignalingState() webrtc.SignalingState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) AddICECandidate(cand webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.candidateErr != nil {
		return f.candidateErr
	}
	f.applied = append(f.applied, cand)
	return nil
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	f.state = webrtc.SignalingStateClosed
}

func (f *fakeTransport) OnICECandidate(fn func(webrtc.ICECandidateInit)) { f.onICE = fn }
func (f *fakeTransport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	f.onState = fn
}
func (f *fakeTransport) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) { f.onTrack = fn }

func (f *fakeTransport) appliedCandidates() []webrtc.ICECandidateInit {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]webrtc.ICECandidateInit, len(f.applied))
	copy(out, f.applied)
	return out
}

// fakeSignal records outbound frames.
type fakeSignal struct {
	mu   sync.Mutex
	sent []signal.Message
	err  error
}

func (f *fakeSignal) TrySend(v any) error {
	if f.err != nil {
		return f.err
	}
	msg, ok := v.(signal.Message)
	if !ok {
		panic("fakeSignal: unexpected payload type")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSignal) byType(t signal.MessageType) []signal.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []signal.Message
	for _, msg := range f.sent {
		if msg.Type == t {
			out = append(out, msg)
		}
	}
	return out
}

func (f *fakeSignal) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

// fakeMedia supplies a swappable local track.
type fakeMedia struct {
	mu    sync.Mutex
	track webrtc.TrackLocal
}

func (f *fakeMedia) Track() webrtc.TrackLocal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.track
}

func (f *fakeMedia) set(t webrtc.TrackLocal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.track = t
}

// testRig assembles a negotiator over fakes and keeps the created
// transports in creation order.
type testRig struct {
	neg        *Negotiator
	sig        *fakeSignal
	media      *fakeMedia
	mu         sync.Mutex
	transports []*fakeTransport
}

func newTestRig() *testRig {
	rig := &testRig{sig: &fakeSignal{}, media: &fakeMedia{}}
	rig.neg = New(rig.sig, func() (core.MediaTransport, error) {
		tr := newFakeTransport()
		rig.mu.Lock()
		rig.transports = append(rig.transports, tr)
		rig.mu.Unlock()
		return tr, nil
	}, rig.media)
	return rig
}

func (r *testRig) welcome(id core.PeerID, users ...core.PeerID) {
	r.neg.HandleMessage(signal.Message{Type: signal.MsgWelcome, ID: id, Users: users})
}

func (r *testRig) transportFor(remote core.PeerID) *fakeTransport {
	s, ok := r.neg.Sessions().Get(remote)
	if !ok {
		return nil
	}
	return s.transport.(*fakeTransport)
}
