package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// MuteGate owns the single outbound audio track and its enabled state. The
// track is shared read-only across all sessions; only the gate flips its
// transmission. Toggling never renegotiates — it is one flag on the track,
// not a wire operation per session.
type MuteGate struct {
	mu      sync.RWMutex
	track   Gated
	enabled bool

	onTrack  func()
	onToggle func(bool)
}

func NewMuteGate() *MuteGate {
	return &MuteGate{enabled: true}
}

// OnTrackChange sets a callback fired when the capture source swaps the
// track. The negotiator uses it to republish across sessions.
func (g *MuteGate) OnTrackChange(fn func()) {
	g.onTrack = fn
}

// OnToggle sets a callback fired on every mute-state change. The mic-status
// broadcaster hangs off this.
func (g *MuteGate) OnToggle(fn func(bool)) {
	g.onToggle = fn
}

// SetTrack installs a new outbound track, carrying the current enabled state
// over to it, and notifies the track-change subscriber.
func (g *MuteGate) SetTrack(t Gated) {
	g.mu.Lock()
	g.track = t
	if t != nil {
		t.SetEnabled(g.enabled)
	}
	g.mu.Unlock()

	log.Info().Str("module", "media").Msg("local track installed")
	if g.onTrack != nil {
		g.onTrack()
	}
}

// Track returns the current outbound track, nil when no source is attached.
// Satisfies the negotiator's LocalMedia.
func (g *MuteGate) Track() webrtc.TrackLocal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.track == nil {
		return nil
	}
	return g.track
}

// SetEnabled is the mute/unmute primitive. O(1): it flips the track's gate
// and fires the toggle callback, nothing else.
func (g *MuteGate) SetEnabled(enabled bool) {
	g.mu.Lock()
	if g.enabled == enabled {
		g.mu.Unlock()
		return
	}
	g.enabled = enabled
	if g.track != nil {
		g.track.SetEnabled(enabled)
	}
	g.mu.Unlock()

	log.Info().Str("module", "media").Bool("enabled", enabled).Msg("mic toggled")
	if g.onToggle != nil {
		g.onToggle(enabled)
	}
}

// Toggle flips the mute state and returns the new value.
func (g *MuteGate) Toggle() bool {
	g.mu.RLock()
	next := !g.enabled
	g.mu.RUnlock()
	g.SetEnabled(next)
	return next
}

// Enabled reports the current mute state.
func (g *MuteGate) Enabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.enabled
}
