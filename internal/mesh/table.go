package mesh

import (
	"sync"

	"github.com/voicemesh/voicemesh/internal/core"
)

// SessionTable is the authoritative remote-id → Session mapping. It is safe
// for concurrent use, but iteration never holds the lock across mutation:
// broadcast operations take a snapshot first.
type SessionTable struct {
	mu       sync.RWMutex
	sessions map[core.PeerID]*Session
}

func NewSessionTable() *SessionTable {
	return &SessionTable{sessions: make(map[core.PeerID]*Session)}
}

func (t *SessionTable) Get(id core.PeerID) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	return s, ok
}

// Insert adds s under id unless a Session for id already exists. The lock is
// held only for the map operation, so session construction happens outside
// it. Returns the Session now in the table and whether s won the slot; a
// losing caller owns disposing of its duplicate.
func (t *SessionTable) Insert(id core.PeerID, s *Session) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.sessions[id]; ok {
		return existing, false
	}
	t.sessions[id] = s
	return s, true
}

// Remove takes the Session for id out of the table. Idempotent: removing an
// absent id is a no-op. The caller owns closing the returned transport.
func (t *SessionTable) Remove(id core.PeerID) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return nil, false
	}
	delete(t.sessions, id)
	return s, true
}

// All returns a point-in-time snapshot for broadcast operations. Sessions may
// be added or removed by concurrently arriving signaling events while the
// caller iterates.
func (t *SessionTable) All() []*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	return out
}

func (t *SessionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
