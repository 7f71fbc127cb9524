// Package rtc adapts a pion PeerConnection to the negotiator's
// MediaTransport capability interface.
package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/voicemesh/voicemesh/internal/core"
)

func DefaultConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

// ConfigWithSTUN builds a configuration from explicit STUN URLs, falling
// back to the default set when none are given.
func ConfigWithSTUN(urls []string) webrtc.Configuration {
	if len(urls) == 0 {
		return DefaultConfig()
	}
	return webrtc.Configuration{ICEServers: []webrtc.ICEServer{{URLs: urls}}}
}

// Factory returns a TransportFactory producing one Transport per session.
func Factory(cfg webrtc.Configuration) core.TransportFactory {
	return func() (core.MediaTransport, error) {
		return NewTransport(cfg)
	}
}

// Transport implements core.MediaTransport on a pion PeerConnection.
type Transport struct {
	pc        *webrtc.PeerConnection
	closeOnce sync.Once
}

func NewTransport(cfg webrtc.Configuration) (*Transport, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Transport{pc: pc}, nil
}

func (t *Transport) AddAudioTransceiver() (core.TrackSender, error) {
	tr, err := t.pc.AddTransceiverFromKind(
		webrtc.RTPCodecTypeAudio,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv},
	)
	if err != nil {
		return nil, err
	}
	return rtpSender{tr.Sender()}, nil
}

func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

func (t *Transport) SetLocalDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(desc)
}

// SetRemoteDescription applies a remote description. When an offer lands
// while our own offer is outstanding the polite engine proceeds anyway; the
// pending local offer is rolled back first so the transport accepts the
// remote one.
func (t *Transport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if desc.Type == webrtc.SDPTypeOffer && t.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
		rollback := webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}
		if err := t.pc.SetLocalDescription(rollback); err != nil {
			return err
		}
	}
	return t.pc.SetRemoteDescription(desc)
}

func (t *Transport) HasRemoteDescription() bool {
	return t.pc.RemoteDescription() != nil
}

func (t *Transport) SignalingState() webrtc.SignalingState {
	return t.pc.SignalingState()
}

func (t *Transport) AddICECandidate(cand webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(cand)
}

func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		if err := t.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("close peer connection")
		}
	})
}

func (t *Transport) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	t.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && fn != nil {
			fn(cand.ToJSON())
		}
	})
}

func (t *Transport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	t.pc.OnConnectionStateChange(fn)
}

func (t *Transport) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	t.pc.OnTrack(fn)
}

// rtpSender adapts *webrtc.RTPSender to core.TrackSender.
type rtpSender struct {
	sender *webrtc.RTPSender
}

func (s rtpSender) Track() webrtc.TrackLocal {
	return s.sender.Track()
}

func (s rtpSender) ReplaceTrack(track webrtc.TrackLocal) error {
	return s.sender.ReplaceTrack(track)
}
