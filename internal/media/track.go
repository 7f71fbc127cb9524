// Package media owns the local outbound audio: a gated track whose
// transmission can be switched off in place, the mute gate controlling it,
// and the capture-source boundary.
package media

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Gated is a local track whose transmission can be toggled without touching
// any peer connection.
type Gated interface {
	webrtc.TrackLocal
	SetEnabled(bool)
	Enabled() bool
}

// GatedTrack wraps a sample track with an enabled bit. While disabled,
// writes are swallowed before they reach any bound transport, so a mute
// costs one atomic store regardless of session count.
type GatedTrack struct {
	inner   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
}

// NewGatedTrack builds an enabled track for the given codec.
func NewGatedTrack(codec webrtc.RTPCodecCapability, id, streamID string) (*GatedTrack, error) {
	inner, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, err
	}
	t := &GatedTrack{inner: inner}
	t.enabled.Store(true)
	return t, nil
}

// WriteSample forwards the sample to every bound session, or drops it while
// the track is disabled.
func (t *GatedTrack) WriteSample(s media.Sample) error {
	if !t.enabled.Load() {
		return nil
	}
	return t.inner.WriteSample(s)
}

func (t *GatedTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }
func (t *GatedTrack) Enabled() bool           { return t.enabled.Load() }

// webrtc.TrackLocal delegation; the transport binds the inner track.

func (t *GatedTrack) Bind(ctx webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	return t.inner.Bind(ctx)
}

func (t *GatedTrack) Unbind(ctx webrtc.TrackLocalContext) error {
	return t.inner.Unbind(ctx)
}

func (t *GatedTrack) ID() string                { return t.inner.ID() }
func (t *GatedTrack) RID() string               { return t.inner.RID() }
func (t *GatedTrack) StreamID() string          { return t.inner.StreamID() }
func (t *GatedTrack) Kind() webrtc.RTPCodecType { return t.inner.Kind() }
