package mesh

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/voicemesh/voicemesh/internal/core"
	"github.com/voicemesh/voicemesh/internal/signal"
)

// MicStatus propagates the local mute state to the room and mirrors every
// remote participant's reciprocal state. It rides the signaling channel
// only — no session-table interaction, no renegotiation.
type MicStatus struct {
	signal core.Sender

	mu     sync.RWMutex
	remote map[core.PeerID]bool

	onChange func(core.PeerID, bool)
}

func NewMicStatus(sender core.Sender) *MicStatus {
	return &MicStatus{
		signal: sender,
		remote: make(map[core.PeerID]bool),
	}
}

// OnChange sets a callback fired when a remote participant's mic state
// changes. Invoked from the signaling read goroutine.
func (m *MicStatus) OnChange(fn func(core.PeerID, bool)) {
	m.onChange = fn
}

// Publish broadcasts the local mic state. The relay fans the frame out; no
// per-remote addressing happens here.
func (m *MicStatus) Publish(enabled bool) {
	msg := signal.Message{Type: signal.MsgMicStatus, Status: enabled}
	if err := m.signal.TrySend(msg); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Msg("publish mic status")
	}
}

// Remote reports the last known mic state of id. Participants that never
// announced a state report as enabled.
func (m *MicStatus) Remote(id core.PeerID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	enabled, ok := m.remote[id]
	if !ok {
		return true
	}
	return enabled
}

// All returns a snapshot of the known remote mic states.
func (m *MicStatus) All() map[core.PeerID]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[core.PeerID]bool, len(m.remote))
	for id, enabled := range m.remote {
		out[id] = enabled
	}
	return out
}

func (m *MicStatus) ingest(from core.PeerID, enabled bool) {
	m.mu.Lock()
	prev, known := m.remote[from]
	m.remote[from] = enabled
	m.mu.Unlock()

	if known && prev == enabled {
		return
	}
	log.Debug().Str("module", "mesh").Str("remote", string(from)).
		Bool("enabled", enabled).Msg("remote mic status")
	if m.onChange != nil {
		m.onChange(from, enabled)
	}
}

func (m *MicStatus) forget(id core.PeerID) {
	m.mu.Lock()
	delete(m.remote, id)
	m.mu.Unlock()
}
