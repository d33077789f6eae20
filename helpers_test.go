package irrigkit

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hubertat/irrigkit/drivers"
)

var testSelectPins = [4]uint16{1, 2, 3, 4}

const (
	testDataPin  = 10
	testClockPin = 11
	testLatchPin = 12

	testSoilChannel     = 0
	testNutrientChannel = 1
)

type recordingSink struct {
	lock     sync.Mutex
	readings []Reading
	states   []ChannelState
	err      error
}

func (rs *recordingSink) ReportReading(r Reading) error {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	rs.readings = append(rs.readings, r)
	return rs.err
}

func (rs *recordingSink) ReportState(s ChannelState) error {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	rs.states = append(rs.states, s)
	return rs.err
}

func (rs *recordingSink) Readings() []Reading {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	return append([]Reading(nil), rs.readings...)
}

func (rs *recordingSink) States() []ChannelState {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	return append([]ChannelState(nil), rs.states...)
}

type publishedMessage struct {
	topic   string
	payload string
}

type recordingPublisher struct {
	messages []publishedMessage
	err      error
}

func (rp *recordingPublisher) Publish(topic string, payload []byte) error {
	rp.messages = append(rp.messages, publishedMessage{topic: topic, payload: string(payload)})
	return rp.err
}

// rig is a complete station on mock drivers: select lines and the shift
// register on one MockIoDriver, soil and nutrient on a MockAdc.
type rig struct {
	io      *drivers.MockIoDriver
	adc     *drivers.MockAdc
	climate *drivers.MockClimate
	sink    *recordingSink

	store   *ChannelStore
	mux     *Multiplexer
	latch   *OutputLatch
	scanner *Scanner
}

func newRig(t testing.TB) *rig {
	t.Helper()
	ctx := context.Background()

	r := &rig{
		io:      &drivers.MockIoDriver{},
		adc:     &drivers.MockAdc{},
		climate: &drivers.MockClimate{Temperature: 21.5, Humidity: 48},
		sink:    &recordingSink{},
		store:   NewChannelStore(),
	}

	pins := append(testSelectPins[:], testDataPin, testClockPin, testLatchPin)
	require.NoError(t, r.io.Setup(ctx, pins))
	require.NoError(t, r.adc.Setup(ctx, []uint16{testSoilChannel, testNutrientChannel}))
	require.NoError(t, r.climate.Setup())

	lines := [4]drivers.DigitalOutput{}
	for i, pin := range testSelectPins {
		lines[i] = r.output(t, pin)
	}
	var err error
	r.mux, err = NewMultiplexer(lines, 0)
	require.NoError(t, err)

	r.latch, err = NewOutputLatch(r.store, r.output(t, testDataPin), r.output(t, testClockPin), r.output(t, testLatchPin))
	require.NoError(t, err)

	soil, err := r.adc.GetAnalogInput(testSoilChannel)
	require.NoError(t, err)
	nutrient, err := r.adc.GetAnalogInput(testNutrientChannel)
	require.NoError(t, err)
	r.scanner = NewScanner(r.mux, soil, nutrient, r.climate, r.sink)

	return r
}

func (r *rig) output(t testing.TB, pin uint16) drivers.DigitalOutput {
	t.Helper()
	out, err := r.io.GetOutput(pin)
	require.NoError(t, err)
	return out
}

// selected decodes the multiplexer index from the select line states.
func (r *rig) selected() (index int) {
	for k, pin := range testSelectPins {
		out, err := r.io.GetOutput(pin)
		if err != nil {
			return -1
		}
		state, _ := out.GetState()
		if state {
			index |= 1 << k
		}
	}
	return
}

// wireChannel makes only multiplexer channel `channel` return samples.
func (r *rig) wireChannel(channel int, soil, nutrient uint16) {
	r.adc.Source = func(adcChannel uint16) uint16 {
		if r.selected() != channel {
			return 0
		}
		if adcChannel == testSoilChannel {
			return soil
		}
		return nutrient
	}
}

// latchWrites filters the recorded writes down to the shift register lines.
func (r *rig) latchWrites() (writes []drivers.PinWrite) {
	for _, w := range r.io.Writes() {
		if w.Pin == testDataPin || w.Pin == testClockPin || w.Pin == testLatchPin {
			writes = append(writes, w)
		}
	}
	return
}
