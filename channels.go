package irrigkit

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ControlChannels is the number of irrigation actuators behind the shift register.
const ControlChannels = 4

const inboundTopicPattern = "led/c%d"
const outboundTopicPattern = "irrigation/c%d"

var (
	ErrUnknownTopic   = errors.New("unknown control topic")
	ErrInvalidPayload = errors.New("invalid control payload")
)

// ControlMessage is an inbound (topic, payload) pair from MQTT, HomeKit or HTTP.
type ControlMessage struct {
	Topic   string
	Payload []byte
}

// Channel binds one actuator to its topics. State true means the actuator
// is off (outputs are active low).
type Channel struct {
	Index         int
	InboundTopic  string
	OutboundTopic string
	State         bool
}

// ChannelStore owns the actuator states. It is written from the control loop
// and read from sinks, HomeKit and the HTTP server, so access is locked.
type ChannelStore struct {
	lock     sync.RWMutex
	channels [ControlChannels]Channel
}

func NewChannelStore() *ChannelStore {
	cs := &ChannelStore{}
	for i := range cs.channels {
		cs.channels[i] = Channel{
			Index:         i,
			InboundTopic:  fmt.Sprintf(inboundTopicPattern, i),
			OutboundTopic: fmt.Sprintf(outboundTopicPattern, i),
			State:         true,
		}
	}
	return cs
}

func validChannel(channel int) bool {
	return channel >= 0 && channel < ControlChannels
}

func (cs *ChannelStore) SetState(channel int, state bool) error {
	if !validChannel(channel) {
		return errors.Wrapf(ErrChannelOutOfRange, "control channel %d", channel)
	}

	cs.lock.Lock()
	defer cs.lock.Unlock()
	cs.channels[channel].State = state
	return nil
}

// State returns the stored state, channels out of range read as false.
func (cs *ChannelStore) State(channel int) bool {
	if !validChannel(channel) {
		return false
	}

	cs.lock.RLock()
	defer cs.lock.RUnlock()
	return cs.channels[channel].State
}

// Channels returns a snapshot of all bindings.
func (cs *ChannelStore) Channels() []Channel {
	cs.lock.RLock()
	defer cs.lock.RUnlock()

	return append([]Channel(nil), cs.channels[:]...)
}

func (cs *ChannelStore) Get(channel int) (Channel, error) {
	if !validChannel(channel) {
		return Channel{}, errors.Wrapf(ErrChannelOutOfRange, "control channel %d", channel)
	}

	cs.lock.RLock()
	defer cs.lock.RUnlock()
	return cs.channels[channel], nil
}

// Lookup finds the channel whose inbound topic equals topic exactly.
func (cs *ChannelStore) Lookup(topic string) (int, bool) {
	for i := range cs.channels {
		if cs.channels[i].InboundTopic == topic {
			return i, true
		}
	}
	return -1, false
}

func ParsePayload(payload []byte) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, errors.Wrapf(ErrInvalidPayload, "payload %q", payload)
}

// Apply maps a control message onto its channel. Unknown topics and payloads
// other than true/false leave the store untouched.
func (cs *ChannelStore) Apply(msg ControlMessage) (int, error) {
	channel, found := cs.Lookup(msg.Topic)
	if !found {
		return -1, errors.Wrapf(ErrUnknownTopic, "topic %s", msg.Topic)
	}

	state, err := ParsePayload(msg.Payload)
	if err != nil {
		return channel, err
	}

	return channel, cs.SetState(channel, state)
}
