// Package relay implements a minimal signaling relay for development: it
// assigns participant ids, fans out presence and mic-status frames and
// forwards addressed negotiation frames verbatim. It never touches media.
package relay

import (
	"sync"

	"github.com/voicemesh/voicemesh/internal/core"
)

// Room is the relay's member table. Broadcast paths snapshot it first so
// concurrently joining or leaving members never invalidate an iteration.
type Room struct {
	mu      sync.RWMutex
	members map[core.PeerID]core.Sender
}

func NewRoom() *Room {
	return &Room{members: make(map[core.PeerID]core.Sender)}
}

// Add registers a member and returns the roster as it was before the join,
// which is exactly the welcome frame's user list.
func (r *Room) Add(id core.PeerID, conn core.Sender) []core.PeerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	roster := make([]core.PeerID, 0, len(r.members))
	for existing := range r.members {
		roster = append(roster, existing)
	}
	r.members[id] = conn
	return roster
}

// Remove drops a member. Idempotent.
func (r *Room) Remove(id core.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	return true
}

func (r *Room) Get(id core.PeerID) (core.Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.members[id]
	return conn, ok
}

// Snapshot returns a point-in-time copy of the member table.
func (r *Room) Snapshot() map[core.PeerID]core.Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[core.PeerID]core.Sender, len(r.members))
	for id, conn := range r.members {
		out[id] = conn
	}
	return out
}

func (r *Room) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
