package drivers

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/racerxdl/go-mcp23017"
)

const mcpioDriverName = "mcpio"

// McpIO drives output lines of an MCP23017 I2C port expander. Useful when the
// select lines and the shift register are wired to an expander instead of the header.
type McpIO struct {
	device *mcp23017.Device

	outputs []*McpOutput
	isReady bool

	BusNo         uint8
	DevNo         uint8
	InvertOutputs bool
}

type McpOutput struct {
	pin    uint8
	invert bool

	device *mcp23017.Device
}

func (mout *McpOutput) GetState() (state bool, err error) {
	rawState, err := mout.device.DigitalRead(mout.pin)
	if err != nil {
		return
	}

	state = bool(rawState) != mout.invert
	return
}

func (mout *McpOutput) Set(state bool) error {
	if mout.invert {
		state = !state
	}

	return mout.device.DigitalWrite(mout.pin, mcp23017.PinLevel(state))
}

func (mcp *McpIO) String() string {
	return mcpioDriverName
}

func (mcp *McpIO) IsReady() bool {
	return mcp.isReady
}

func (mcp *McpIO) Setup(ctx context.Context, outputs []uint16) (err error) {
	mcp.device, err = mcp23017.Open(mcp.BusNo, mcp.DevNo)
	if err != nil {
		return errors.Wrapf(err, "failed to open mcp23017 (bus %d, dev %d)", mcp.BusNo, mcp.DevNo)
	}

	for _, outputPin := range outputs {
		if outputPin > 15 {
			return errors.Errorf("output pin %d out of range (mcp23017 has 16 pins)", outputPin)
		}
		err = mcp.device.PinMode(uint8(outputPin), mcp23017.OUTPUT)
		if err != nil {
			return errors.Wrapf(err, "failed to set pin %d as output", outputPin)
		}
		mcp.outputs = append(mcp.outputs, &McpOutput{pin: uint8(outputPin), invert: mcp.InvertOutputs, device: mcp.device})
	}

	mcp.isReady = true
	return nil
}

func (mcp *McpIO) GetOutput(id uint16) (output DigitalOutput, err error) {
	for _, out := range mcp.outputs {
		if uint16(out.pin) == id {
			output = out
			return
		}
	}

	err = fmt.Errorf("mcpio output (id: %d) not found", id)
	return
}

func (mcp *McpIO) Close() error {
	mcp.isReady = false
	if mcp.device == nil {
		return nil
	}
	for _, output := range mcp.outputs {
		output.Set(false)
	}
	return mcp.device.Close()
}

func (mcp *McpIO) GetAllIo() (outputs []uint16) {
	for _, output := range mcp.outputs {
		outputs = append(outputs, uint16(output.pin))
	}

	return
}
