package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleForExactlyOnePolitePerPair(t *testing.T) {
	pairs := []struct{ a, b PeerID }{
		{"alice", "bob"},
		{"bob", "carl"},
		{"alice", "carl"},
		{"9a01", "9a02"},
		{"z", "a"},
	}
	for _, p := range pairs {
		roleA := RoleFor(p.a, p.b)
		roleB := RoleFor(p.b, p.a)
		assert.NotEqual(t, roleA, roleB, "pair (%s,%s) must split roles", p.a, p.b)
	}
}

func TestRoleForStableAcrossCalls(t *testing.T) {
	first := RoleFor("alice", "bob")
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, RoleFor("alice", "bob"))
	}
}

func TestRoleForThreeParticipantRoom(t *testing.T) {
	// alice < bob < carl
	assert.Equal(t, RolePolite, RoleFor("alice", "bob"))
	assert.Equal(t, RolePolite, RoleFor("alice", "carl"))
	assert.Equal(t, RolePolite, RoleFor("bob", "carl"))
	assert.Equal(t, RoleImpolite, RoleFor("bob", "alice"))
	assert.Equal(t, RoleImpolite, RoleFor("carl", "alice"))
	assert.Equal(t, RoleImpolite, RoleFor("carl", "bob"))
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "polite", RolePolite.String())
	assert.Equal(t, "impolite", RoleImpolite.String())
}
