package irrigkit

import (
	"encoding/json"
	stderrors "errors"
	"os"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/hubertat/irrigkit/mqtt"
)

const (
	StateLabelOn  = "ON"
	StateLabelOff = "OFF"
)

const defaultIrrigationThreshold = 30

// ReportingSink accepts readings and channel state reports.
type ReportingSink interface {
	ReportReading(r Reading) error
	ReportState(s ChannelState) error
}

// ChannelState is the periodic report of one control channel.
type ChannelState struct {
	Channel int    `json:"-"`
	Topic   string `json:"-"`
	State   string `json:"state"`
}

// StateLabel inverts the stored state for the wire: true (actuator idle) is
// reported as OFF, false as ON.
func StateLabel(state bool) string {
	if !state {
		return StateLabelOn
	}
	return StateLabelOff
}

func NewChannelState(ch Channel) ChannelState {
	return ChannelState{
		Channel: ch.Index,
		Topic:   ch.OutboundTopic,
		State:   StateLabel(ch.State),
	}
}

// Sinks fans every report out to all sinks, a failing sink does not stop the others.
type Sinks []ReportingSink

func (ss Sinks) ReportReading(r Reading) (err error) {
	for _, sink := range ss {
		sinkErr := sink.ReportReading(r)
		if sinkErr != nil {
			err = joinErr(err, sinkErr)
		}
	}
	return
}

func (ss Sinks) ReportState(s ChannelState) (err error) {
	for _, sink := range ss {
		sinkErr := sink.ReportState(s)
		if sinkErr != nil {
			err = joinErr(err, sinkErr)
		}
	}
	return
}

// joinErr keeps every error in the chain, errors.Is matches any of them.
func joinErr(err, next error) error {
	if err == nil {
		return next
	}
	return stderrors.Join(err, next)
}

// LogSink writes readings and states to the log, the station's serial monitor.
type LogSink struct {
	Threshold int

	logger *log.Logger
}

func NewLogSink(threshold int) *LogSink {
	if threshold <= 0 {
		threshold = defaultIrrigationThreshold
	}
	return &LogSink{
		Threshold: threshold,
		logger: log.NewWithOptions(os.Stdout, log.Options{
			Prefix:          "Report: ",
			Level:           log.GetLevel(),
			ReportTimestamp: true,
		}),
	}
}

func (ls *LogSink) ReportReading(r Reading) error {
	ls.logger.Info("reading",
		"channel", r.Channel,
		"soil", r.SoilMoisture,
		"nutrient", r.NutrientLevel,
		"temperature", r.Temperature,
		"humidity", r.Humidity,
		"irrigation", r.NeedsIrrigation(ls.Threshold),
	)
	return nil
}

func (ls *LogSink) ReportState(s ChannelState) error {
	ls.logger.Info("channel state", "channel", s.Channel, "state", s.State)
	return nil
}

// MqttSink publishes JSON payloads on chanel/cN and irrigation/cN.
type MqttSink struct {
	publisher mqtt.Publisher
}

func NewMqttSink(publisher mqtt.Publisher) *MqttSink {
	return &MqttSink{publisher: publisher}
}

func (ms *MqttSink) ReportReading(r Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal reading of channel %d", r.Channel)
	}
	return ms.publisher.Publish(r.Topic(), payload)
}

func (ms *MqttSink) ReportState(s ChannelState) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal state of channel %d", s.Channel)
	}
	return ms.publisher.Publish(s.Topic, payload)
}
