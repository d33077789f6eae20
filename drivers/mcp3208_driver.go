package drivers

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/gpio"
	"github.com/warthog618/gpio/spi/mcp3w0c"
)

const mcp3208DriverName = "mcp3208"
const mcp3208Channels = 8
const defaultMcp3208ClockNs = 500

// Mcp3208 reads the soil and nutrient lines through a bit-banged MCP3208
// (12-bit, 8 channel) SPI ADC. Pins use BCM numbering.
type Mcp3208 struct {
	Sclk    int
	Ssz     int
	Mosi    int
	Miso    int
	ClockNs int

	adc    *mcp3w0c.MCP3w0c
	inputs []*Mcp3208Input
	lock   sync.Mutex
	ready  bool
}

type Mcp3208Input struct {
	channel int
	driver  *Mcp3208
}

func (in *Mcp3208Input) Read() (uint16, error) {
	return in.driver.read(in.channel)
}

func (m *Mcp3208) read(channel int) (uint16, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if !m.ready {
		return 0, errors.Errorf("mcp3208 not ready, cannot read channel %d", channel)
	}
	return m.adc.Read(channel), nil
}

func (m *Mcp3208) Setup(ctx context.Context, channels []uint16) error {
	for _, ch := range channels {
		if ch >= mcp3208Channels {
			return errors.Errorf("mcp3208 channel %d out of range (0-%d)", ch, mcp3208Channels-1)
		}
	}

	err := gpio.Open()
	if err != nil {
		return errors.Wrap(err, "failed to open gpio for mcp3208")
	}

	tclk := time.Duration(m.ClockNs) * time.Nanosecond
	if m.ClockNs <= 0 {
		tclk = defaultMcp3208ClockNs * time.Nanosecond
	}
	m.adc = mcp3w0c.NewMCP3208(tclk, m.Sclk, m.Ssz, m.Mosi, m.Miso)

	for _, ch := range channels {
		m.inputs = append(m.inputs, &Mcp3208Input{channel: int(ch), driver: m})
	}

	m.ready = true
	return nil
}

func (m *Mcp3208) Close() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if !m.ready {
		return nil
	}
	m.ready = false
	m.adc.Close()
	return gpio.Close()
}

func (m *Mcp3208) String() string {
	return mcp3208DriverName
}

func (m *Mcp3208) IsReady() bool {
	return m.ready
}

func (m *Mcp3208) GetAnalogInput(channel uint16) (AnalogInput, error) {
	for _, in := range m.inputs {
		if in.channel == int(channel) {
			return in, nil
		}
	}
	return nil, errors.Errorf("mcp3208 input %d not set up", channel)
}
