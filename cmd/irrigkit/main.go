package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hubertat/servicemaker"
	"github.com/pkg/errors"

	"github.com/hubertat/irrigkit"
)

const defaultTickInterval = "100ms"
const defaultReportInterval = "6s"

var (
	Version string
	Build   string

	config         = flag.String("config", "config.json", "path of the configuration file (json or yaml)")
	flagInstall    = flag.Bool("install", false, "Install service in os")
	flagDebug      = flag.Bool("debug", false, "debug logging")
	tickInterval   = flag.String("tick", defaultTickInterval, "control loop tick (time.Duration)")
	reportInterval = flag.String("report", defaultReportInterval, "scan and state report interval (time.Duration)")

	irrigService = servicemaker.ServiceMaker{
		User:               "irrigkit",
		UserGroups:         []string{"gpio", "spi", "i2c"},
		ServicePath:        "/etc/systemd/system/irrigkit.service",
		ServiceDescription: "IrrigKit service: MQTT/HomeKit irrigation controller with soil and nutrient sensing. github.com/hubertat/irrigkit",
		ExecDir:            "/srv/irrigkit",
		ExecName:           "irrigkit",
	}
)

func main() {
	flag.Parse()
	if *flagDebug {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("irrigkit started", "version", Version, "build", Build)

	if *flagInstall {
		err := irrigService.InstallService()
		if err != nil {
			log.Fatal("failed to install service", "err", err)
		}
		log.Info("service installed!")
		return
	}

	tick, err := time.ParseDuration(*tickInterval)
	if err != nil {
		log.Fatal("invalid tick interval", "err", err)
	}
	report, err := time.ParseDuration(*reportInterval)
	if err != nil {
		log.Fatal("invalid report interval", "err", err)
	}

	ik, err := irrigkit.LoadConfig(*config)
	if err != nil {
		log.Fatal("config", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("will init irrigkit drivers...")
	err = ik.InitDrivers(ctx)
	defer ik.Close()
	if err != nil {
		log.Fatal("drivers", "err", err)
	}

	err = ik.InitController()
	if err != nil {
		log.Fatal("controller", "err", err)
	}
	ik.PrintIoStatus(os.Stdout)

	if len(ik.MqttBroker) > 0 {
		err = ik.ConnectMqtt(ctx)
		if err != nil {
			log.Error("mqtt disabled", "err", err)
		}
	} else {
		log.Info("mqtt broker not configured, disabled")
	}

	if len(ik.HkPin) == 8 {
		log.Info("Starting with HomeKit server")
		go func() {
			hkErr := ik.StartHomeKit(ctx, Version)
			if hkErr != nil {
				log.Error("HomeKit server stopped", "err", hkErr)
			}
		}()
	} else {
		log.Info("HomeKit not configured, disabled")
	}

	err = ik.Run(ctx, tick, report)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("control loop failed", "err", err)
	}
}
