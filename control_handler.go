package irrigkit

import (
	"context"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.golang/paho"
)

const controlSubscribeTopic = "led/#"
const deliverTimeout = 2 * time.Second

// ControlHandler hands inbound MQTT control messages over to the control loop.
// It runs on the MQTT client goroutine and never touches the store itself.
type ControlHandler struct {
	controller *Controller
	logger     *log.Logger
}

func NewControlHandler(controller *Controller) *ControlHandler {
	return &ControlHandler{
		controller: controller,
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "ControlHandler: ",
			Level:  log.GetLevel(),
		}),
	}
}

func (ch *ControlHandler) MqttSubscribeTopic() string {
	return controlSubscribeTopic
}

func (ch *ControlHandler) MqttHandle(pub *paho.Publish) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	ch.logger.Debug("control message received", "topic", pub.Topic, "payload", string(pub.Payload))
	err := ch.controller.Deliver(ctx, ControlMessage{
		Topic:   pub.Topic,
		Payload: append([]byte(nil), pub.Payload...),
	})
	if err != nil {
		ch.logger.Error("control message lost", "topic", pub.Topic, "err", err)
	}
}
