package irrigkit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Default returns a station with the wiring of the reference board: select
// lines on GPIO 17, 27, 22, 23 and the shift register on GPIO 5 (DS),
// 6 (SHCP), 13 (STCP), all on the header gpio driver.
func Default() *IrrigKit {
	return &IrrigKit{
		Name: homeKitBridgeName,
		Mux: MuxConfig{
			DriverName:    "gpio",
			SelectPins:    [4]uint16{17, 27, 22, 23},
			SettleDelayMs: int(defaultSettleDelay.Milliseconds()),
		},
		Analog: AnalogConfig{
			SoilChannel:     0,
			NutrientChannel: 1,
		},
		Latch: LatchConfig{
			DriverName: "gpio",
			DataPin:    5,
			ClockPin:   6,
			LatchPin:   13,
		},
		IrrigationThreshold: defaultIrrigationThreshold,
	}
}

// LoadConfig reads a JSON or, for .yaml/.yml files, a YAML config over the
// defaults. Keys missing in the file keep their default value.
func LoadConfig(filename string) (*IrrigKit, error) {
	ik := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open config file %s", filename)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, ik)
	default:
		err = json.Unmarshal(data, ik)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %s", filename)
	}

	if ik.Mux.SettleDelayMs <= 0 {
		ik.Mux.SettleDelayMs = int(defaultSettleDelay.Milliseconds())
	}
	if ik.IrrigationThreshold <= 0 {
		ik.IrrigationThreshold = defaultIrrigationThreshold
	}

	return ik, nil
}
