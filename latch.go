package irrigkit

import (
	"github.com/pkg/errors"

	"github.com/hubertat/irrigkit/drivers"
)

const shiftRegisterBits = 8

// OutputLatch drives a 74HC595 shift register (DS, SHCP, STCP) with the
// channel states, one bit per channel.
type OutputLatch struct {
	store *ChannelStore
	data  drivers.DigitalOutput
	clock drivers.DigitalOutput
	latch drivers.DigitalOutput
}

func NewOutputLatch(store *ChannelStore, data, clock, latch drivers.DigitalOutput) (*OutputLatch, error) {
	if data == nil || clock == nil || latch == nil {
		return nil, errors.New("output latch needs data, clock and latch outputs")
	}
	return &OutputLatch{store: store, data: data, clock: clock, latch: latch}, nil
}

// Pack sets bit i of the result when states[i] is true.
func Pack(states []bool) (packed byte) {
	for i, state := range states {
		if i >= shiftRegisterBits {
			break
		}
		if state {
			packed |= 1 << i
		}
	}
	return
}

func (ol *OutputLatch) states() []bool {
	states := make([]bool, ControlChannels)
	for i := range states {
		states[i] = ol.store.State(i)
	}
	return states
}

// Flush shifts the packed states out MSB first while the latch is held low,
// then raises the latch so all outputs change at once. It runs whether the
// states changed or not.
func (ol *OutputLatch) Flush() (packed byte, err error) {
	packed = Pack(ol.states())

	err = ol.latch.Set(false)
	if err != nil {
		return packed, errors.Wrap(err, "failed to pull latch low")
	}

	err = ol.shiftOut(packed)
	if err != nil {
		return
	}

	err = ol.latch.Set(true)
	if err != nil {
		err = errors.Wrap(err, "failed to release latch")
	}
	return
}

func (ol *OutputLatch) shiftOut(value byte) error {
	for bit := shiftRegisterBits - 1; bit >= 0; bit-- {
		err := ol.data.Set(value>>bit&1 == 1)
		if err != nil {
			return errors.Wrapf(err, "failed to set data line for bit %d", bit)
		}
		err = ol.clock.Set(true)
		if err != nil {
			return errors.Wrap(err, "failed to raise clock")
		}
		err = ol.clock.Set(false)
		if err != nil {
			return errors.Wrap(err, "failed to lower clock")
		}
	}
	return nil
}
