package drivers

import (
	"context"
	"fmt"
	"sync"
)

const mockAdcDriverName = "mock_adc"

// MockAdc serves analog samples from memory. When Source is set it is asked for
// every read, which lets a test derive the sample from other mocked pins
// (e.g. the currently selected multiplexer channel).
type MockAdc struct {
	Values map[uint16]uint16
	Source func(channel uint16) uint16

	inputs []*MockAnalogInput
	ready  bool
	lock   sync.Mutex
}

type MockAnalogInput struct {
	channel uint16
	adc     *MockAdc
}

func (mi *MockAnalogInput) Read() (uint16, error) {
	return mi.adc.value(mi.channel), nil
}

func (ma *MockAdc) value(channel uint16) uint16 {
	ma.lock.Lock()
	defer ma.lock.Unlock()

	if ma.Source != nil {
		return ma.Source(channel)
	}
	return ma.Values[channel]
}

func (ma *MockAdc) SetValue(channel uint16, value uint16) {
	ma.lock.Lock()
	defer ma.lock.Unlock()

	if ma.Values == nil {
		ma.Values = make(map[uint16]uint16)
	}
	ma.Values[channel] = value
}

func (ma *MockAdc) Setup(ctx context.Context, channels []uint16) error {
	for _, ch := range channels {
		ma.inputs = append(ma.inputs, &MockAnalogInput{channel: ch, adc: ma})
	}
	ma.ready = true
	return nil
}

func (ma *MockAdc) Close() error {
	ma.ready = false
	return nil
}

func (ma *MockAdc) String() string {
	return mockAdcDriverName
}

func (ma *MockAdc) IsReady() bool {
	return ma.ready
}

func (ma *MockAdc) GetAnalogInput(channel uint16) (AnalogInput, error) {
	for _, in := range ma.inputs {
		if in.channel == channel {
			return in, nil
		}
	}
	return nil, fmt.Errorf("mock analog input %d not found", channel)
}
