package signal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicemesh/voicemesh/internal/core"
)

func TestMessageRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want Message
	}{
		{
			name: "welcome with roster",
			raw:  `{"type":"welcome","id":"alice","users":["bob","carl"]}`,
			want: Message{Type: MsgWelcome, ID: "alice", Users: []core.PeerID{"bob", "carl"}},
		},
		{
			name: "user connected",
			raw:  `{"type":"user-connected","id":"dave"}`,
			want: Message{Type: MsgUserConnected, ID: "dave"},
		},
		{
			name: "offer",
			raw:  `{"type":"offer","from":"bob","sdp":"v=0"}`,
			want: Message{Type: MsgOffer, From: "bob", SDP: "v=0"},
		},
		{
			name: "mic status muted",
			raw:  `{"type":"mic-status","id":"bob","status":false}`,
			want: Message{Type: MsgMicStatus, ID: "bob", Status: false},
		},
		{
			name: "unknown type survives parsing",
			raw:  `{"type":"frobnicate"}`,
			want: Message{Type: "frobnicate"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got Message
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &got))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMessageCandidateField(t *testing.T) {
	raw := `{"type":"ice-candidate","from":"bob","candidate":{"candidate":"candidate:1 1 udp 2130706431 192.0.2.1 54321 typ host"}}`
	var got Message
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	require.NotNil(t, got.Candidate)
	assert.Contains(t, got.Candidate.Candidate, "typ host")
}

func TestMessageMalformedFrame(t *testing.T) {
	var got Message
	err := json.Unmarshal([]byte(`{"type":`), &got)
	assert.Error(t, err)
}

func TestMessageExtraFieldsTolerated(t *testing.T) {
	var got Message
	err := json.Unmarshal([]byte(`{"type":"pong","debug":"ignored"}`), &got)
	require.NoError(t, err)
	assert.Equal(t, MsgPong, got.Type)
}

func TestMicStatusFalseSurvivesMarshal(t *testing.T) {
	b, err := json.Marshal(Message{Type: MsgMicStatus, Status: false})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"status":false`, "muted state must not be omitted")
}
