package irrigkit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/hubertat/irrigkit/drivers"
	"github.com/hubertat/irrigkit/mqtt"
)

// MuxConfig wires the four select lines (S0..S3) of the CD74HC4067.
type MuxConfig struct {
	DriverName    string    `json:"driverName" yaml:"driverName"`
	SelectPins    [4]uint16 `json:"selectPins" yaml:"selectPins"`
	SettleDelayMs int       `json:"settleDelayMs" yaml:"settleDelayMs"`
}

// AnalogConfig names the ADC channels of the shared soil and nutrient lines.
type AnalogConfig struct {
	SoilChannel     uint16 `json:"soilChannel" yaml:"soilChannel"`
	NutrientChannel uint16 `json:"nutrientChannel" yaml:"nutrientChannel"`
}

// LatchConfig wires the 74HC595 data (DS), clock (SHCP) and latch (STCP) lines.
type LatchConfig struct {
	DriverName string `json:"driverName" yaml:"driverName"`
	DataPin    uint16 `json:"dataPin" yaml:"dataPin"`
	ClockPin   uint16 `json:"clockPin" yaml:"clockPin"`
	LatchPin   uint16 `json:"latchPin" yaml:"latchPin"`
}

// IrrigKit is the station: it is unmarshalled from the config file and owns
// every driver and the control loop.
type IrrigKit struct {
	Name string `json:"name" yaml:"name"`

	Mux                 MuxConfig    `json:"mux" yaml:"mux"`
	Analog              AnalogConfig `json:"analog" yaml:"analog"`
	Latch               LatchConfig  `json:"latch" yaml:"latch"`
	IrrigationThreshold int          `json:"irrigationThreshold" yaml:"irrigationThreshold"`

	HkPin       string `json:"hkPin" yaml:"hkPin"`
	HkDirectory string `json:"hkDirectory" yaml:"hkDirectory"`
	HkAddress   string `json:"hkAddress" yaml:"hkAddress"`
	HkDebug     bool   `json:"hkDebug" yaml:"hkDebug"`

	MqttBroker string        `json:"mqttBroker" yaml:"mqttBroker"`
	HttpAddr   string        `json:"httpAddr" yaml:"httpAddr"`
	HttpToken  string        `json:"httpToken" yaml:"httpToken"`
	Influx     *InfluxConfig `json:"influx" yaml:"influx"`

	Gpio        *drivers.GpIO         `json:"gpio" yaml:"gpio"`
	Mcp23017    *drivers.McpIO        `json:"mcp23017" yaml:"mcp23017"`
	FakeDriver  *drivers.MockIoDriver `json:"fakeDriver" yaml:"fakeDriver"`
	Adc         *drivers.Mcp3208      `json:"adc" yaml:"adc"`
	FakeAdc     *drivers.MockAdc      `json:"fakeAdc" yaml:"fakeAdc"`
	Climate     *drivers.IioClimate   `json:"climate" yaml:"climate"`
	FakeClimate *drivers.MockClimate  `json:"fakeClimate" yaml:"fakeClimate"`

	ioDrivers  map[string]drivers.IoDriver
	analog     drivers.AnalogDriver
	climate    drivers.ClimateSensor
	mqttClient *mqtt.MqttClient
	influx     *InfluxSink
	metrics    *Metrics
	controller *Controller
	server     *StatusServer
	logger     *log.Logger
}

func (ik *IrrigKit) getLogger() *log.Logger {
	if ik.logger == nil {
		ik.logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "IrrigKit 🌱: ",
			Level:  log.GetLevel(),
		})
	}
	return ik.logger
}

func (ik *IrrigKit) getOutPins(driverName string) (pins []uint16) {
	if strings.EqualFold(ik.Mux.DriverName, driverName) {
		pins = append(pins, ik.Mux.SelectPins[:]...)
	}
	if strings.EqualFold(ik.Latch.DriverName, driverName) {
		pins = append(pins, ik.Latch.DataPin, ik.Latch.ClockPin, ik.Latch.LatchPin)
	}
	return
}

func (ik *IrrigKit) ioDriver(name string) (drivers.IoDriver, error) {
	for driverName, driver := range ik.ioDrivers {
		if strings.EqualFold(driverName, name) {
			return driver, nil
		}
	}
	return nil, errors.Errorf("driver %s not set up", name)
}

// InitDrivers sets up the output drivers with the pins the multiplexer and
// the latch use, then the ADC and the climate sensor.
func (ik *IrrigKit) InitDrivers(ctx context.Context) error {
	ik.ioDrivers = make(map[string]drivers.IoDriver)

	if ik.Gpio != nil {
		ik.ioDrivers[ik.Gpio.String()] = ik.Gpio
	}
	if ik.Mcp23017 != nil {
		ik.ioDrivers[ik.Mcp23017.String()] = ik.Mcp23017
	}
	if ik.FakeDriver != nil {
		ik.ioDrivers[ik.FakeDriver.String()] = ik.FakeDriver
	}

	for _, driver := range ik.ioDrivers {
		err := driver.Setup(ctx, ik.getOutPins(driver.String()))
		if err != nil {
			return errors.Wrapf(err, "failed to setup %s driver", driver)
		}
	}

	for _, name := range []string{ik.Mux.DriverName, ik.Latch.DriverName} {
		if _, err := ik.ioDriver(name); err != nil {
			return err
		}
	}

	switch {
	case ik.Adc != nil:
		ik.analog = ik.Adc
	case ik.FakeAdc != nil:
		ik.analog = ik.FakeAdc
	default:
		return errors.New("no analog driver configured (adc or fakeAdc)")
	}
	err := ik.analog.Setup(ctx, []uint16{ik.Analog.SoilChannel, ik.Analog.NutrientChannel})
	if err != nil {
		return errors.Wrapf(err, "failed to setup %s driver", ik.analog.String())
	}

	switch {
	case ik.Climate != nil:
		ik.climate = ik.Climate
	case ik.FakeClimate != nil:
		ik.climate = ik.FakeClimate
	}
	if ik.climate != nil {
		err = ik.climate.Setup()
		if err != nil {
			// the scan still runs, temperature and humidity stay at zero
			ik.getLogger().Warn("climate sensor not available", "driver", ik.climate.Name(), "err", err)
			ik.climate = nil
		}
	}

	return nil
}

func (ik *IrrigKit) output(driverName string, pin uint16) (drivers.DigitalOutput, error) {
	driver, err := ik.ioDriver(driverName)
	if err != nil {
		return nil, err
	}
	out, err := driver.GetOutput(pin)
	if err != nil {
		return nil, errors.Wrapf(err, "missing output %d on %s", pin, driverName)
	}
	return out, nil
}

func (ik *IrrigKit) buildMultiplexer() (*Multiplexer, error) {
	lines := [muxSelectLines]drivers.DigitalOutput{}
	for i, pin := range ik.Mux.SelectPins {
		out, err := ik.output(ik.Mux.DriverName, pin)
		if err != nil {
			return nil, errors.Wrapf(err, "multiplexer select line S%d", i)
		}
		lines[i] = out
	}
	return NewMultiplexer(lines, time.Duration(ik.Mux.SettleDelayMs)*time.Millisecond)
}

func (ik *IrrigKit) buildLatch(store *ChannelStore) (*OutputLatch, error) {
	pins := []uint16{ik.Latch.DataPin, ik.Latch.ClockPin, ik.Latch.LatchPin}
	outs := make([]drivers.DigitalOutput, len(pins))
	for i, pin := range pins {
		out, err := ik.output(ik.Latch.DriverName, pin)
		if err != nil {
			return nil, errors.Wrap(err, "output latch")
		}
		outs[i] = out
	}
	return NewOutputLatch(store, outs[0], outs[1], outs[2])
}

func (ik *IrrigKit) sinks() (sinks Sinks) {
	sinks = append(sinks, NewLogSink(ik.IrrigationThreshold))
	if ik.mqttClient != nil {
		sinks = append(sinks, NewMqttSink(ik.mqttClient))
	}
	if ik.Influx != nil && len(ik.Influx.Host) > 0 {
		ik.influx = NewInfluxSink(*ik.Influx, ik.IrrigationThreshold)
		sinks = append(sinks, ik.influx)
	}
	return
}

// InitController builds the control loop on top of the set up drivers. The
// mqtt client is created here (not connected yet) so the mqtt sink can be wired.
func (ik *IrrigKit) InitController() (err error) {
	if len(ik.MqttBroker) > 0 {
		ik.mqttClient, err = mqtt.NewMqttClient(ik.MqttBroker, ik.bridgeName())
		if err != nil {
			return errors.Wrap(err, "failed to create mqtt client")
		}
	}

	mux, err := ik.buildMultiplexer()
	if err != nil {
		return
	}

	soil, err := ik.analog.GetAnalogInput(ik.Analog.SoilChannel)
	if err != nil {
		return errors.Wrap(err, "soil line")
	}
	nutrient, err := ik.analog.GetAnalogInput(ik.Analog.NutrientChannel)
	if err != nil {
		return errors.Wrap(err, "nutrient line")
	}

	store := NewChannelStore()
	latch, err := ik.buildLatch(store)
	if err != nil {
		return
	}

	sink := ik.sinks()
	ik.controller = NewController(store, latch, NewScanner(mux, soil, nutrient, ik.climate, sink), sink)
	ik.metrics = NewMetrics()
	ik.controller.SetMetrics(ik.metrics)

	return nil
}

func (ik *IrrigKit) Controller() *Controller {
	return ik.controller
}

// ConnectMqtt subscribes the control topics; the broker is retried in the
// background when not reachable.
func (ik *IrrigKit) ConnectMqtt(ctx context.Context) error {
	if ik.mqttClient == nil {
		return errors.New("mqtt broker not set")
	}

	err := ik.mqttClient.Connect(ctx, []mqtt.MqttHandler{NewControlHandler(ik.controller)})
	if err != nil {
		return errors.Wrap(err, "failed to connect to mqtt broker")
	}
	return nil
}

// Run starts the optional HTTP server and blocks in the control loop.
func (ik *IrrigKit) Run(ctx context.Context, tick, report time.Duration) error {
	if ik.controller == nil {
		return errors.New("controller not initialized")
	}
	ik.controller.TickInterval = tick
	ik.controller.ReportInterval = report

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverFailed := make(chan error, 1)
	if len(ik.HttpAddr) > 0 {
		ik.server = NewStatusServer(ik.HttpAddr, ik.controller, ik.metrics.Registry)
		ik.server.Token = ik.HttpToken
		ik.server.Start()

		go func() {
			select {
			case err := <-ik.server.Err():
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverFailed <- err
					cancel()
				}
			case <-ctx.Done():
			}
		}()
	}

	err := ik.controller.Run(ctx)
	select {
	case serverErr := <-serverFailed:
		return errors.Wrap(serverErr, "status server failed")
	default:
	}
	return err
}

func (ik *IrrigKit) Close() (err error) {
	closers := []io.Closer{}
	if ik.server != nil {
		closers = append(closers, ik.server)
	}
	for _, driver := range ik.ioDrivers {
		closers = append(closers, driver)
	}
	if ik.analog != nil {
		closers = append(closers, ik.analog)
	}
	if ik.climate != nil {
		closers = append(closers, ik.climate)
	}

	for _, closer := range closers {
		closeErr := closer.Close()
		if closeErr != nil {
			err = joinErr(err, closeErr)
		}
	}

	if ik.mqttClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		disconnectErr := ik.mqttClient.Disconnect(ctx)
		if disconnectErr != nil {
			err = joinErr(err, disconnectErr)
		}
	}
	if ik.influx != nil {
		ik.influx.Close()
	}

	return
}

func (ik *IrrigKit) PrintIoStatus(writer io.Writer) {
	fmt.Fprintln(writer)
	fmt.Fprintln(writer, "=== active io drivers ===")
	for driverName, driver := range ik.ioDrivers {
		fmt.Fprintln(writer, "________")
		fmt.Fprintf(writer, "| driver: %s\n", driverName)
		fmt.Fprintf(writer, "| out pins: ")
		for _, outpin := range driver.GetAllIo() {
			fmt.Fprintf(writer, "%d, ", outpin)
		}
		fmt.Fprintln(writer)
		fmt.Fprintln(writer, "--------")
	}
	if ik.analog != nil {
		fmt.Fprintf(writer, "| analog: %s (soil %d, nutrient %d)\n", ik.analog, ik.Analog.SoilChannel, ik.Analog.NutrientChannel)
	}
	if ik.climate != nil {
		fmt.Fprintf(writer, "| climate: %s\n", ik.climate.Name())
	}
	fmt.Fprintln(writer, "-----------------------------")
	fmt.Fprintln(writer)
}
