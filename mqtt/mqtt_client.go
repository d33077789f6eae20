package mqtt

import (
	"context"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/pkg/errors"
)

const subscribeTimeoutSeconds = 15
const connectionTimeoutSeconds = 5
const publishTimeoutSeconds = 4

// MqttHandler receives every message whose topic matches its subscription filter.
type MqttHandler interface {
	MqttHandle(pub *paho.Publish)
	MqttSubscribeTopic() string
}

type Publisher interface {
	Publish(topic string, payload []byte) error
}

type MqttClient struct {
	config autopaho.ClientConfig
	conn   *autopaho.ConnectionManager
	logger *log.Logger

	lock     sync.RWMutex
	handlers []MqttHandler
}

func (mc *MqttClient) Publish(topic string, payload []byte) (err error) {
	if mc.conn == nil {
		return errors.Errorf("cannot publish to %s, mqtt client not connected", topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeoutSeconds*time.Second)
	defer cancel()

	_, err = mc.conn.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     1,
		Payload: payload,
	})
	if err != nil {
		err = errors.Wrapf(err, "failed to publish to %s", topic)
	}
	return
}

func (mc *MqttClient) subscriptions() []paho.SubscribeOptions {
	mc.lock.RLock()
	defer mc.lock.RUnlock()

	subs := []paho.SubscribeOptions{}
	for _, h := range mc.handlers {
		subs = append(subs, paho.SubscribeOptions{
			QoS:   1,
			Topic: h.MqttSubscribeTopic(),
		})
	}
	return subs
}

// onConnUp subscribes again on every (re)connection, the broker session may be gone.
func (mc *MqttClient) onConnUp(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
	mc.logger.Info("Connected to MQTT broker")

	subs := mc.subscriptions()
	if len(subs) == 0 {
		return
	}
	mc.logger.Debug("subscribing mqtt", "subs", subs)

	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeoutSeconds*time.Second)
	defer cancel()

	_, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: subs,
	})
	if err != nil {
		mc.logger.Error("Failed to subscribe to topics", "err", err)
	}
}

func (mc *MqttClient) onConnError(err error) {
	mc.logger.Error("Received Mqtt connection error", "err", err)
}

func (mc *MqttClient) onSrvDisconnect(d *paho.Disconnect) {
	mc.logger.Info("Disconnected from MQTT broker")
}

func (mc *MqttClient) route(pr paho.PublishReceived) (bool, error) {
	mc.lock.RLock()
	defer mc.lock.RUnlock()

	handled := false
	for _, h := range mc.handlers {
		if TopicMatches(h.MqttSubscribeTopic(), pr.Packet.Topic) {
			h.MqttHandle(pr.Packet)
			handled = true
		}
	}
	if !handled {
		mc.logger.Warn("received message on unhandled topic", "topic", pr.Packet.Topic)
	}
	return handled, nil
}

func (mc *MqttClient) onPublishRecv() []func(paho.PublishReceived) (bool, error) {
	return []func(paho.PublishReceived) (bool, error){
		mc.route,
	}
}

func (mc *MqttClient) Connect(ctx context.Context, handlers []MqttHandler) (err error) {
	mc.lock.Lock()
	mc.handlers = handlers
	mc.lock.Unlock()

	for _, h := range handlers {
		mc.logger.Debug("setting up mqtt topics config", "topic", h.MqttSubscribeTopic())
	}

	cm, err := autopaho.NewConnection(ctx, mc.config)
	if err != nil {
		return errors.Wrap(err, "failed to create mqtt connection")
	}
	mc.conn = cm

	awaitCtx, cancel := context.WithTimeout(ctx, connectionTimeoutSeconds*time.Second)
	defer cancel()

	err = cm.AwaitConnection(awaitCtx)
	if err != nil {
		// autopaho keeps retrying in the background, the first connection only timed out
		mc.logger.Warn("mqtt broker not reachable yet, will keep retrying", "err", err)
		err = nil
	}

	return
}

func (mc *MqttClient) Disconnect(ctx context.Context) error {
	mc.lock.Lock()
	mc.handlers = nil
	mc.lock.Unlock()

	if mc.conn == nil {
		return nil
	}
	return mc.conn.Disconnect(ctx)
}

// TopicMatches reports whether topic matches an MQTT subscription filter
// (supports the + and # wildcards).
func TopicMatches(filter, topic string) bool {
	filterLevels := strings.Split(filter, "/")
	topicLevels := strings.Split(topic, "/")

	for i, level := range filterLevels {
		if level == "#" {
			return true
		}
		if i >= len(topicLevels) {
			return false
		}
		if level != "+" && level != topicLevels[i] {
			return false
		}
	}

	return len(filterLevels) == len(topicLevels)
}

func NewMqttClient(broker string, clientId string) (mc *MqttClient, err error) {
	addr, err := url.Parse(broker)
	if err != nil {
		err = errors.Wrapf(err, "failed to parse broker url %s", broker)
		return
	}

	mc = &MqttClient{
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "MqttClient 🐰: ",
			Level:  log.GetLevel(),
		}),
	}

	mc.config = autopaho.ClientConfig{
		BrokerUrls:            []*url.URL{addr},
		KeepAlive:             20,
		SessionExpiryInterval: 60,
		OnConnectionUp:        mc.onConnUp,
		OnConnectError:        mc.onConnError,
		ClientConfig: paho.ClientConfig{
			ClientID:           clientId,
			OnClientError:      mc.onConnError,
			OnServerDisconnect: mc.onSrvDisconnect,
			OnPublishReceived:  mc.onPublishRecv(),
		},
	}

	if addr.User != nil {
		mc.config.ConnectUsername = addr.User.Username()
		password, _ := addr.User.Password()
		mc.config.ConnectPassword = []byte(password)
	}

	return
}
