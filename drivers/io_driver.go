package drivers

import (
	"context"
)

// IoDriver gives access to digital output pins (mux select lines, shift register lines).
type IoDriver interface {
	Setup(ctx context.Context, outputs []uint16) error
	Close() error
	String() string
	IsReady() bool
	GetOutput(pin uint16) (DigitalOutput, error)
	GetAllIo() (outputs []uint16)
}

// AnalogDriver gives access to analog input channels of an ADC.
type AnalogDriver interface {
	Setup(ctx context.Context, channels []uint16) error
	Close() error
	String() string
	IsReady() bool
	GetAnalogInput(channel uint16) (AnalogInput, error)
}

func MapAllIoDrivers() map[string]IoDriver {
	drivers := []IoDriver{
		&GpIO{},
		&McpIO{},
		&MockIoDriver{},
	}

	mapped := make(map[string]IoDriver)
	for _, driver := range drivers {
		mapped[driver.String()] = driver
	}
	return mapped
}

type DigitalOutput interface {
	GetState() (bool, error)
	Set(bool) error
}

// AnalogInput returns raw ADC samples (0..4095 for 12-bit converters).
type AnalogInput interface {
	Read() (uint16, error)
}
