package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicemesh/voicemesh/internal/core"
)

func newTableSession(id core.PeerID) *Session {
	return &Session{remoteID: id, role: core.RolePolite, transport: newFakeTransport()}
}

func TestTableInsertKeepsFirstSession(t *testing.T) {
	tbl := NewSessionTable()

	first := newTableSession("bob")
	got, inserted := tbl.Insert("bob", first)
	require.True(t, inserted)
	assert.Same(t, first, got)

	second := newTableSession("bob")
	got, inserted = tbl.Insert("bob", second)
	assert.False(t, inserted, "a racing duplicate must lose the slot")
	assert.Same(t, first, got)
	assert.Equal(t, 1, tbl.Len())
}

func TestTableRemoveIdempotent(t *testing.T) {
	tbl := NewSessionTable()
	tbl.Insert("bob", newTableSession("bob"))

	_, ok := tbl.Remove("bob")
	assert.True(t, ok)
	_, ok = tbl.Remove("bob")
	assert.False(t, ok)
	_, ok = tbl.Remove("never-there")
	assert.False(t, ok)
}

func TestTableAllIsSnapshot(t *testing.T) {
	tbl := NewSessionTable()
	for _, id := range []core.PeerID{"bob", "carl"} {
		_, inserted := tbl.Insert(id, newTableSession(id))
		require.True(t, inserted)
	}

	snap := tbl.All()
	tbl.Remove("bob")

	assert.Len(t, snap, 2, "snapshot must survive concurrent removal")
	assert.Equal(t, 1, tbl.Len())
}
