package drivers

import (
	"context"
	"fmt"
	"io"
	"sync"
)

const mockDriverName = "mock_driver"

// MockOutput keeps the state in memory; every Set is appended to the driver's write log.
type MockOutput struct {
	state            bool
	pin              uint16
	driver           *MockIoDriver
	writeTo          io.Writer
	writeStateChange bool
}

// PinWrite is a single Set call recorded by MockIoDriver.
type PinWrite struct {
	Pin   uint16
	State bool
}

func (mo *MockOutput) GetState() (bool, error) {
	return mo.state, nil
}

func (mo *MockOutput) Set(state bool) error {
	if mo.writeStateChange && state != mo.state {
		fmt.Fprintf(mo.writeTo, "[pin %d] state changed to %v\n", mo.pin, state)
	}
	mo.state = state
	if mo.driver != nil {
		mo.driver.record(mo.pin, state)
	}
	return nil
}

type MockIoDriver struct {
	outputs []*MockOutput
	ready   bool

	lock   sync.Mutex
	writes []PinWrite
}

func (md *MockIoDriver) Setup(ctx context.Context, outputs []uint16) error {
	for _, outPin := range outputs {
		if _, err := md.GetOutput(outPin); err == nil {
			continue
		}
		md.outputs = append(md.outputs, &MockOutput{pin: outPin, driver: md})
	}
	md.ready = true
	return nil
}

func (md *MockIoDriver) Close() error {
	md.ready = false
	return nil
}

func (md *MockIoDriver) String() string {
	return mockDriverName
}

func (md *MockIoDriver) IsReady() bool {
	return md.ready
}

func (md *MockIoDriver) GetOutput(pin uint16) (DigitalOutput, error) {
	for _, output := range md.outputs {
		if pin == output.pin {
			return output, nil
		}
	}
	return nil, fmt.Errorf("mock output %d not found", pin)
}

func (md *MockIoDriver) GetAllIo() (outputs []uint16) {
	for _, output := range md.outputs {
		outputs = append(outputs, output.pin)
	}
	return
}

func (md *MockIoDriver) MonitorStateChanges(writer io.Writer) {
	for _, out := range md.outputs {
		out.writeTo = writer
		out.writeStateChange = true
	}
}

func (md *MockIoDriver) record(pin uint16, state bool) {
	md.lock.Lock()
	defer md.lock.Unlock()
	md.writes = append(md.writes, PinWrite{Pin: pin, State: state})
}

// Writes returns a copy of every Set call since the last ResetWrites.
func (md *MockIoDriver) Writes() []PinWrite {
	md.lock.Lock()
	defer md.lock.Unlock()
	return append([]PinWrite(nil), md.writes...)
}

func (md *MockIoDriver) ResetWrites() {
	md.lock.Lock()
	defer md.lock.Unlock()
	md.writes = nil
}
