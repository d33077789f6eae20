package irrigkit

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/hubertat/irrigkit/drivers"
)

const readingTopicPattern = "chanel/c%d"

// Reading is one multiplexed soil/nutrient sample with the station climate.
// Temperature and humidity come from the single DHT22 and are the same for
// every channel of a scan.
type Reading struct {
	Channel       int       `json:"-"`
	SoilMoisture  int       `json:"soilMoisture"`
	NutrientLevel int       `json:"nutrientLevel"`
	Temperature   float64   `json:"temperature"`
	Humidity      float64   `json:"humidity"`
	Timestamp     time.Time `json:"-"`
}

func (r Reading) Topic() string {
	return ReadingTopic(r.Channel)
}

// NeedsIrrigation reports soil moisture under the threshold percent.
func (r Reading) NeedsIrrigation(threshold int) bool {
	return r.SoilMoisture < threshold
}

func (r Reading) empty() bool {
	return r.SoilMoisture == 0 && r.NutrientLevel == 0
}

func ReadingTopic(channel int) string {
	return fmt.Sprintf(readingTopicPattern, channel)
}

// Scanner walks all multiplexer channels and forwards populated readings.
type Scanner struct {
	mux      *Multiplexer
	soil     drivers.AnalogInput
	nutrient drivers.AnalogInput
	climate  drivers.ClimateSensor
	sink     ReportingSink
	metrics  *Metrics
	logger   *log.Logger

	lastClimate drivers.Climate
}

func NewScanner(mux *Multiplexer, soil, nutrient drivers.AnalogInput, climate drivers.ClimateSensor, sink ReportingSink) *Scanner {
	return &Scanner{
		mux:      mux,
		soil:     soil,
		nutrient: nutrient,
		climate:  climate,
		sink:     sink,
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "Scanner: ",
			Level:  log.GetLevel(),
		}),
	}
}

func (sc *Scanner) readClimate() drivers.Climate {
	if sc.climate == nil {
		return sc.lastClimate
	}
	climate, err := sc.climate.Read()
	if err != nil {
		sc.logger.Warn("climate read failed, reusing last values", "err", err)
		return sc.lastClimate
	}
	sc.lastClimate = climate
	return climate
}

func (sc *Scanner) read(ctx context.Context, channel int) (reading Reading, err error) {
	err = sc.mux.SelectChannel(ctx, channel)
	if err != nil {
		return
	}

	soilRaw, err := sc.soil.Read()
	if err != nil {
		err = errors.Wrapf(err, "failed to read soil line on channel %d", channel)
		return
	}
	nutrientRaw, err := sc.nutrient.Read()
	if err != nil {
		err = errors.Wrapf(err, "failed to read nutrient line on channel %d", channel)
		return
	}
	climate := sc.readClimate()

	reading = Reading{
		Channel:       channel,
		SoilMoisture:  Percent(int(soilRaw)),
		NutrientLevel: Percent(int(nutrientRaw)),
		Temperature:   climate.Temperature,
		Humidity:      climate.Humidity,
		Timestamp:     time.Now(),
	}
	return
}

// ScanAll reads channels 0..15 one after another and forwards every reading
// with a non-zero soil or nutrient value. Empty slots are dropped silently.
// It returns the number of forwarded readings.
func (sc *Scanner) ScanAll(ctx context.Context) (forwarded int, err error) {
	for channel := 0; channel < MuxChannels; channel++ {
		reading, readErr := sc.read(ctx, channel)
		if readErr != nil {
			if ctx.Err() != nil {
				return forwarded, ctx.Err()
			}
			sc.logger.Error("channel read failed", "channel", channel, "err", readErr)
			continue
		}

		if reading.empty() {
			sc.metrics.readingDropped()
			continue
		}

		sinkErr := sc.sink.ReportReading(reading)
		if sinkErr != nil {
			sc.logger.Error("failed to report reading", "channel", channel, "err", sinkErr)
		}
		sc.metrics.readingForwarded()
		forwarded++
	}
	sc.metrics.scanDone()

	return
}
