package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hubertat/irrigkit"
	"github.com/hubertat/irrigkit/drivers"
)

var (
	Version string
	Build   string

	broker   = flag.String("broker", "", "mqtt broker url, e.g. mqtt://localhost:1883")
	httpAddr = flag.String("http", ":8090", "status server address")
	homekit  = flag.Bool("homekit", false, "start HomeKit bridge with pin 88008800")
)

// mock select lines and shift register lines
var selectPins = [4]uint16{1, 2, 3, 4}

const (
	dataPin  = 10
	clockPin = 11
	latchPin = 12
)

func main() {
	flag.Parse()
	log.SetLevel(log.DebugLevel)
	log.Info("irrigkit started")
	log.Info("mock instance for testing purposes, should work on MacOs")

	fakeDriver := &drivers.MockIoDriver{}
	fakeAdc := &drivers.MockAdc{}

	ik := &irrigkit.IrrigKit{
		Name:                "irrigkit mock",
		Mux:                 irrigkit.MuxConfig{DriverName: "mock_driver", SelectPins: selectPins, SettleDelayMs: 10},
		Analog:              irrigkit.AnalogConfig{SoilChannel: 0, NutrientChannel: 1},
		Latch:               irrigkit.LatchConfig{DriverName: "mock_driver", DataPin: dataPin, ClockPin: clockPin, LatchPin: latchPin},
		IrrigationThreshold: 30,
		MqttBroker:          *broker,
		HttpAddr:            *httpAddr,
		HkDirectory:         "./mock_homekit",
		FakeDriver:          fakeDriver,
		FakeAdc:             fakeAdc,
		FakeClimate:         &drivers.MockClimate{Temperature: 21.5, Humidity: 48},
	}
	if *homekit {
		ik.HkPin = "88008800"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := ik.InitDrivers(ctx)
	defer ik.Close()
	if err != nil {
		panic(err)
	}

	// only multiplexer channel 5 has a sensor: soil 2048, nutrient 1024
	fakeAdc.Source = func(channel uint16) uint16 {
		if selected(fakeDriver) != 5 {
			return 0
		}
		if channel == 0 {
			return 2048
		}
		return 1024
	}

	err = ik.InitController()
	if err != nil {
		panic(err)
	}

	ik.PrintIoStatus(os.Stdout)

	if len(ik.MqttBroker) > 0 {
		err = ik.ConnectMqtt(ctx)
		if err != nil {
			log.Error("mqtt disabled", "err", err)
		}
	}
	if *homekit {
		go func() {
			log.Error("HomeKit server stopped", "err", ik.StartHomeKit(ctx, "mock: "+Version))
		}()
	}

	err = ik.Run(ctx, 250*time.Millisecond, 6*time.Second)
	log.Info("mock stopped", "err", err)
}

func selected(driver *drivers.MockIoDriver) (index int) {
	for k, pin := range selectPins {
		out, err := driver.GetOutput(pin)
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
