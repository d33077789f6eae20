package irrigkit

import (
	"context"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
)

const influxWriteTimeout = 3 * time.Second
const influxBreakerFailures = 3
const influxBreakerOpen = 30 * time.Second

const readingMeasurement = "soil"
const stateMeasurement = "irrigation_state"

// InfluxConfig points the reading history at an InfluxDB v2 bucket.
type InfluxConfig struct {
	Host         string `json:"host" yaml:"host"`
	Token        string `json:"token" yaml:"token"`
	Organization string `json:"organization" yaml:"organization"`
	Bucket       string `json:"bucket" yaml:"bucket"`
	Station      string `json:"station" yaml:"station"`
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxSink stores readings and states as points. Writes go through a circuit
// breaker so an unreachable database costs one timeout per breaker period, not
// one per channel of every scan.
type InfluxSink struct {
	Threshold int

	station string
	writer  pointWriter
	client  influxdb2.Client
	breaker *gobreaker.CircuitBreaker
}

func NewInfluxSink(cfg InfluxConfig, threshold int) *InfluxSink {
	client := influxdb2.NewClient(cfg.Host, cfg.Token)
	sink := newInfluxSink(client.WriteAPIBlocking(cfg.Organization, cfg.Bucket), cfg.Station, threshold)
	sink.client = client
	return sink
}

func newInfluxSink(writer pointWriter, station string, threshold int) *InfluxSink {
	if threshold <= 0 {
		threshold = defaultIrrigationThreshold
	}
	return &InfluxSink{
		Threshold: threshold,
		station:   station,
		writer:    writer,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "influx",
			Timeout: influxBreakerOpen,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= influxBreakerFailures
			},
		}),
	}
}

func (is *InfluxSink) tags(channel int) map[string]string {
	tags := map[string]string{"channel": strconv.Itoa(channel)}
	if len(is.station) > 0 {
		tags["station"] = is.station
	}
	return tags
}

func ReadingToPoint(r Reading, tags map[string]string, threshold int) *write.Point {
	fields := map[string]interface{}{
		"soilMoisture":  r.SoilMoisture,
		"nutrientLevel": r.NutrientLevel,
		"temperature":   r.Temperature,
		"humidity":      r.Humidity,
		"irrigation":    r.NeedsIrrigation(threshold),
	}
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return influxdb2.NewPoint(readingMeasurement, tags, fields, ts)
}

// Write stores any point through the sink's breaker.
func (is *InfluxSink) Write(point *write.Point) error {
	return is.write(point)
}

func (is *InfluxSink) write(point *write.Point) error {
	_, err := is.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), influxWriteTimeout)
		defer cancel()
		return nil, is.writer.WritePoint(ctx, point)
	})
	return err
}

func (is *InfluxSink) ReportReading(r Reading) error {
	err := is.write(ReadingToPoint(r, is.tags(r.Channel), is.Threshold))
	if err != nil {
		return errors.Wrapf(err, "influx: failed to write reading of channel %d", r.Channel)
	}
	return nil
}

func (is *InfluxSink) ReportState(s ChannelState) error {
	fields := map[string]interface{}{
		"state": s.State,
		"on":    s.State == StateLabelOn,
	}
	err := is.write(influxdb2.NewPoint(stateMeasurement, is.tags(s.Channel), fields, time.Now()))
	if err != nil {
		return errors.Wrapf(err, "influx: failed to write state of channel %d", s.Channel)
	}
	return nil
}

func (is *InfluxSink) Close() {
	if is.client != nil {
		is.client.Close()
	}
}
