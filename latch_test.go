package irrigkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubertat/irrigkit/drivers"
)

func TestPack(t *testing.T) {
	assert.Equal(t, byte(0x0f), Pack([]bool{true, true, true, true}))
	assert.Equal(t, byte(0x04), Pack([]bool{false, false, true, false}))
	assert.Equal(t, byte(0x0b), Pack([]bool{true, true, false, true}))
	assert.Equal(t, byte(0x00), Pack(nil))
}

// expectedFlush is the write sequence of one flush: latch low, eight bits MSB
// first as (data, clock high, clock low), latch high.
func expectedFlush(value byte) []drivers.PinWrite {
	writes := []drivers.PinWrite{{Pin: testLatchPin, State: false}}
	for bit := 7; bit >= 0; bit-- {
		writes = append(writes,
			drivers.PinWrite{Pin: testDataPin, State: value>>bit&1 == 1},
			drivers.PinWrite{Pin: testClockPin, State: true},
			drivers.PinWrite{Pin: testClockPin, State: false},
		)
	}
	return append(writes, drivers.PinWrite{Pin: testLatchPin, State: true})
}

func TestFlushDefaults(t *testing.T) {
	r := newRig(t)
	r.io.ResetWrites()

	packed, err := r.latch.Flush()
	require.NoError(t, err)
	assert.Equal(t, byte(0x0f), packed)
	assert.Equal(t, expectedFlush(0x0f), r.latchWrites())
}

func TestFlushSingleChannel(t *testing.T) {
	r := newRig(t)
	for i := 0; i < ControlChannels; i++ {
		require.NoError(t, r.store.SetState(i, i == 2))
	}
	r.io.ResetWrites()

	packed, err := r.latch.Flush()
	require.NoError(t, err)
	assert.Equal(t, byte(0x04), packed)

	writes := r.latchWrites()
	assert.Equal(t, expectedFlush(0x04), writes)
	// bit 2 is the sixth bit shifted out
	assert.Equal(t, drivers.PinWrite{Pin: testDataPin, State: true}, writes[1+5*3])
}

func TestFlushIsIdempotent(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.store.SetState(1, false))

	r.io.ResetWrites()
	_, err := r.latch.Flush()
	require.NoError(t, err)
	first := r.latchWrites()

	r.io.ResetWrites()
	_, err = r.latch.Flush()
	require.NoError(t, err)
	assert.Equal(t, first, r.latchWrites())
}

func TestNewOutputLatchNeedsAllLines(t *testing.T) {
	r := newRig(t)
	_, err := NewOutputLatch(r.store, nil, r.output(t, testClockPin), r.output(t, testLatchPin))
	assert.Error(t, err)
}
