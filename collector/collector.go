// Package collector subscribes to the station's readings and channel states
// and stores them.
package collector

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/hubertat/irrigkit"
)

const (
	ReadingsTopic = "chanel/#"
	StatesTopic   = "irrigation/#"

	readingPrefix = "chanel/c"
	statePrefix   = "irrigation/c"
)

const (
	KindReading = "reading"
	KindState   = "state"
)

var ErrUnknownTopic = errors.New("not a reading or state topic")

// Measurement is one decoded message, stamped with the time it was received.
type Measurement struct {
	Kind      string
	Topic     string
	Channel   int
	Reading   irrigkit.Reading
	State     string
	Timestamp time.Time
}

// Store persists measurements.
type Store interface {
	Save(ctx context.Context, m Measurement) error
	Close() error
}

// topicChannel parses N of prefix+N, N must be in [0, channels).
func topicChannel(topic, prefix string, channels int) (int, error) {
	channel, err := strconv.Atoi(strings.TrimPrefix(topic, prefix))
	if err != nil || channel < 0 || channel >= channels {
		return 0, errors.Wrapf(ErrUnknownTopic, "topic %s", topic)
	}
	return channel, nil
}

// Decode parses a payload published on chanel/cN or irrigation/cN.
func Decode(topic string, payload []byte, received time.Time) (m Measurement, err error) {
	m = Measurement{Topic: topic, Timestamp: received}

	switch {
	case strings.HasPrefix(topic, readingPrefix):
		m.Kind = KindReading
		m.Channel, err = topicChannel(topic, readingPrefix, irrigkit.MuxChannels)
		if err != nil {
			return
		}
		err = json.Unmarshal(payload, &m.Reading)
		if err != nil {
			err = errors.Wrapf(err, "failed to decode reading on %s", topic)
			return
		}
		m.Reading.Channel = m.Channel
		m.Reading.Timestamp = received

	case strings.HasPrefix(topic, statePrefix):
		m.Kind = KindState
		m.Channel, err = topicChannel(topic, statePrefix, irrigkit.ControlChannels)
		if err != nil {
			return
		}
		state := irrigkit.ChannelState{}
		err = json.Unmarshal(payload, &state)
		if err != nil {
			err = errors.Wrapf(err, "failed to decode state on %s", topic)
			return
		}
		if state.State != irrigkit.StateLabelOn && state.State != irrigkit.StateLabelOff {
			err = errors.Errorf("unexpected state %q on %s", state.State, topic)
			return
		}
		m.State = state.State

	default:
		err = errors.Wrapf(ErrUnknownTopic, "topic %s", topic)
	}
	return
}

// Collector decodes incoming messages and hands them to the store.
type Collector struct {
	store  Store
	runs   *RunTracker
	now    func() time.Time
	logger *log.Logger
}

func New(store Store) *Collector {
	return &Collector{
		store: store,
		runs:  NewRunTracker(),
		now:   time.Now,
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "Collector: ",
			Level:  log.GetLevel(),
		}),
	}
}

func (c *Collector) Handle(ctx context.Context, topic string, payload []byte) error {
	m, err := Decode(topic, payload, c.now())
	if err != nil {
		return err
	}
	err = c.store.Save(ctx, m)
	if err != nil {
		return errors.Wrapf(err, "failed to store %s from %s", m.Kind, topic)
	}
	c.logger.Debug("stored", "kind", m.Kind, "channel", m.Channel)

	run, finished := c.runs.Observe(m)
	if !finished {
		return nil
	}
	runStore, ok := c.store.(RunStore)
	if !ok {
		return nil
	}
	err = runStore.SaveRun(ctx, run)
	if err != nil {
		return errors.Wrapf(err, "failed to store irrigation run of channel %d", run.Channel)
	}
	c.logger.Info("irrigation run", "channel", run.Channel, "duration", run.Duration())
	return nil
}

// Run subscribes to readings and states and blocks until ctx is done.
func (c *Collector) Run(ctx context.Context, client mqtt.Client) error {
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		err := c.Handle(ctx, msg.Topic(), msg.Payload())
		if err != nil {
			c.logger.Error("message skipped", "topic", msg.Topic(), "err", err)
		}
	}

	for _, topic := range []string{ReadingsTopic, StatesTopic} {
		token := client.Subscribe(topic, 1, handler)
		if token.Wait() && token.Error() != nil {
			return errors.Wrapf(token.Error(), "failed to subscribe %s", topic)
		}
		c.logger.Info("subscribed", "topic", topic)
	}

	<-ctx.Done()

	client.Unsubscribe(ReadingsTopic, StatesTopic)
	return nil
}
