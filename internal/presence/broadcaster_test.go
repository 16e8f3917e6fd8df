package presence

import (
	"testing"

	"github.com/Kukaas/Chatty/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFanout struct {
	messages []*protocol.Message
}

func (f *recordingFanout) Broadcast(m *protocol.Message) {
	f.messages = append(f.messages, m)
}

func TestOnPresenceChangeBroadcastsOnline(t *testing.T) {
	fanout := &recordingFanout{}
	b := NewBroadcaster(fanout)

	b.OnPresenceChange("alice", true)

	require.Len(t, fanout.messages, 1)
	msg := fanout.messages[0]
	assert.Equal(t, protocol.TypeUserStatusChange, msg.Type)
	assert.Equal(t, "alice", msg.UserID)
	assert.Equal(t, protocol.StatusOnline, msg.Status)
	assert.NotZero(t, msg.Timestamp)
}

func TestOnPresenceChangeBroadcastsOffline(t *testing.T) {
	fanout := &recordingFanout{}
	b := NewBroadcaster(fanout)

	b.OnPresenceChange("bob", false)

	require.Len(t, fanout.messages, 1)
	assert.Equal(t, protocol.StatusOffline, fanout.messages[0].Status)
}
