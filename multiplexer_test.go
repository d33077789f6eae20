package irrigkit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubertat/irrigkit/drivers"
)

func selectLineStates(t *testing.T, r *rig) (states []bool) {
	for _, pin := range testSelectPins {
		state, err := r.output(t, pin).GetState()
		require.NoError(t, err)
		states = append(states, state)
	}
	return
}

func TestSelectChannelWritesIndexBits(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	cases := map[int][]bool{
		0:  {false, false, false, false},
		5:  {true, false, true, false},
		10: {false, true, false, true},
		15: {true, true, true, true},
	}
	for index, want := range cases {
		require.NoError(t, r.mux.SelectChannel(ctx, index))
		assert.Equal(t, want, selectLineStates(t, r), "index %d", index)
		assert.Equal(t, index, r.selected())
	}
}

func TestSelectChannelRejectsOutOfRange(t *testing.T) {
	r := newRig(t)
	r.io.ResetWrites()

	for _, index := range []int{-1, MuxChannels, 99} {
		err := r.mux.SelectChannel(context.Background(), index)
		assert.ErrorIs(t, err, ErrChannelOutOfRange, "index %d", index)
	}
	assert.Empty(t, r.io.Writes(), "select lines must stay untouched")
}

func TestSelectChannelSettles(t *testing.T) {
	r := newRig(t)
	lines := [4]drivers.DigitalOutput{}
	for i, pin := range testSelectPins {
		lines[i] = r.output(t, pin)
	}
	mux, err := NewMultiplexer(lines, 20*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, mux.SelectChannel(context.Background(), 3))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSelectChannelSettleIsCancellable(t *testing.T) {
	r := newRig(t)
	lines := [4]drivers.DigitalOutput{}
	for i, pin := range testSelectPins {
		lines[i] = r.output(t, pin)
	}
	mux, err := NewMultiplexer(lines, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = mux.SelectChannel(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewMultiplexerNeedsAllLines(t *testing.T) {
	_, err := NewMultiplexer([4]drivers.DigitalOutput{}, 0)
	assert.Error(t, err)
}
