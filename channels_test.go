package irrigkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeStates(cs *ChannelStore) (states []bool) {
	for _, ch := range cs.Channels() {
		states = append(states, ch.State)
	}
	return
}

func TestChannelStoreDefaults(t *testing.T) {
	cs := NewChannelStore()

	channels := cs.Channels()
	require.Len(t, channels, ControlChannels)
	for i, ch := range channels {
		assert.Equal(t, i, ch.Index)
		assert.True(t, ch.State)
	}
	assert.Equal(t, "led/c0", channels[0].InboundTopic)
	assert.Equal(t, "irrigation/c3", channels[3].OutboundTopic)
}

func TestChannelStoreApply(t *testing.T) {
	cs := NewChannelStore()

	channel, err := cs.Apply(ControlMessage{Topic: "led/c2", Payload: []byte("false")})
	require.NoError(t, err)
	assert.Equal(t, 2, channel)
	assert.Equal(t, []bool{true, true, false, true}, storeStates(cs))

	_, err = cs.Apply(ControlMessage{Topic: "led/c2", Payload: []byte(" TRUE\n")})
	require.NoError(t, err)
	assert.True(t, cs.State(2))
}

func TestChannelStoreApplyUnknownTopic(t *testing.T) {
	cs := NewChannelStore()

	for _, topic := range []string{"led/c9", "led/c", "led/c2/x", "LED/c2", "irrigation/c2"} {
		_, err := cs.Apply(ControlMessage{Topic: topic, Payload: []byte("false")})
		assert.ErrorIs(t, err, ErrUnknownTopic, topic)
	}
	assert.Equal(t, []bool{true, true, true, true}, storeStates(cs))
}

func TestChannelStoreApplyInvalidPayload(t *testing.T) {
	cs := NewChannelStore()

	for _, payload := range []string{"maybe", "", "1", "on", `"false"`} {
		_, err := cs.Apply(ControlMessage{Topic: "led/c1", Payload: []byte(payload)})
		assert.ErrorIs(t, err, ErrInvalidPayload, payload)
	}
	assert.True(t, cs.State(1))
}

func TestChannelStoreOutOfRange(t *testing.T) {
	cs := NewChannelStore()

	assert.ErrorIs(t, cs.SetState(4, false), ErrChannelOutOfRange)
	assert.ErrorIs(t, cs.SetState(-1, false), ErrChannelOutOfRange)
	assert.False(t, cs.State(4))
	_, err := cs.Get(7)
	assert.ErrorIs(t, err, ErrChannelOutOfRange)
	assert.Equal(t, []bool{true, true, true, true}, storeStates(cs))
}

func TestChannelStoreSnapshotIsCopy(t *testing.T) {
	cs := NewChannelStore()
	channels := cs.Channels()
	channels[0].State = false
	assert.True(t, cs.State(0))
}

func TestParsePayload(t *testing.T) {
	for payload, want := range map[string]bool{"true": true, "True": true, "FALSE": false, " false ": false} {
		got, err := ParsePayload([]byte(payload))
		require.NoError(t, err, payload)
		assert.Equal(t, want, got, payload)
	}
}
