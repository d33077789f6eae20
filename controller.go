package irrigkit

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

const defaultTickInterval = 100 * time.Millisecond
const defaultReportInterval = 6 * time.Second
const inboundQueueSize = 32

var ErrStopped = errors.New("controller stopped")

// Controller is the single control loop. Inbound control messages are queued
// and applied by the loop only, so their order is kept and the latch never
// sees a half-applied batch.
type Controller struct {
	TickInterval   time.Duration
	ReportInterval time.Duration

	store   *ChannelStore
	latch   *OutputLatch
	scanner *Scanner
	sink    ReportingSink
	metrics *Metrics
	logger  *log.Logger

	inbound chan ControlMessage
	done    chan struct{}
	started atomic.Bool
	ticks   uint64

	observersLock sync.Mutex
	observers     []func([]Channel)
}

func NewController(store *ChannelStore, latch *OutputLatch, scanner *Scanner, sink ReportingSink) *Controller {
	return &Controller{
		TickInterval:   defaultTickInterval,
		ReportInterval: defaultReportInterval,
		store:          store,
		latch:          latch,
		scanner:        scanner,
		sink:           sink,
		inbound:        make(chan ControlMessage, inboundQueueSize),
		done:           make(chan struct{}),
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "Controller: ",
			Level:  log.GetLevel(),
		}),
	}
}

func (c *Controller) SetMetrics(m *Metrics) {
	c.metrics = m
	if c.scanner != nil {
		c.scanner.metrics = m
	}
}

// OnStateChange registers fn to be called with a snapshot of all channels
// after control messages were applied and on every periodic report.
func (c *Controller) OnStateChange(fn func([]Channel)) {
	c.observersLock.Lock()
	defer c.observersLock.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Controller) Store() *ChannelStore {
	return c.store
}

// Deliver queues a control message for the loop. It blocks while the queue is
// full and fails once the loop has stopped.
func (c *Controller) Deliver(ctx context.Context, msg ControlMessage) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}

	select {
	case c.inbound <- msg:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) reportEvery() uint64 {
	if c.TickInterval <= 0 || c.ReportInterval <= c.TickInterval {
		return 1
	}
	return uint64(c.ReportInterval / c.TickInterval)
}

func (c *Controller) apply(msg ControlMessage) bool {
	channel, err := c.store.Apply(msg)
	switch {
	case errors.Is(err, ErrUnknownTopic):
		c.logger.Warn("ignoring control message, unknown topic", "topic", msg.Topic)
		c.metrics.control(controlUnknownTopic)
		return false
	case errors.Is(err, ErrInvalidPayload):
		c.logger.Warn("ignoring control message, payload is not true/false", "topic", msg.Topic, "payload", string(msg.Payload))
		c.metrics.control(controlInvalidPayload)
		return false
	case err != nil:
		c.logger.Error("control message failed", "topic", msg.Topic, "err", err)
		return false
	}

	c.logger.Info("channel updated", "channel", channel, "state", c.store.State(channel))
	c.metrics.control(controlApplied)
	return true
}

// dispatch applies every message queued so far without waiting for more.
func (c *Controller) dispatch() (applied int) {
	for {
		select {
		case msg := <-c.inbound:
			if c.apply(msg) {
				applied++
			}
		default:
			if applied > 0 {
				c.notify()
			}
			return
		}
	}
}

func (c *Controller) notify() {
	channels := c.store.Channels()
	c.metrics.states(channels)

	c.observersLock.Lock()
	defer c.observersLock.Unlock()
	for _, fn := range c.observers {
		fn(channels)
	}
}

func (c *Controller) flush() {
	packed, err := c.latch.Flush()
	c.metrics.flushed(packed, err)
	if err != nil {
		c.logger.Error("failed to flush output latch", "err", err)
	}
}

// ReportStates emits the inverted state of every channel.
func (c *Controller) ReportStates() {
	for _, ch := range c.store.Channels() {
		err := c.sink.ReportState(NewChannelState(ch))
		if err != nil {
			c.logger.Error("failed to report channel state", "channel", ch.Index, "err", err)
		}
	}
	c.notify()
}

func (c *Controller) periodic(ctx context.Context) {
	c.ticks++
	if c.ticks%c.reportEvery() != 0 {
		return
	}

	if c.scanner != nil {
		forwarded, err := c.scanner.ScanAll(ctx)
		if err != nil {
			c.logger.Warn("scan interrupted", "err", err)
			return
		}
		c.logger.Debug("scan done", "forwarded", forwarded)
	}
	c.ReportStates()
}

// Tick runs one loop iteration without the sleep: apply queued control
// messages, flush the latch, then scan and report when the interval is due.
func (c *Controller) Tick(ctx context.Context) {
	c.dispatch()
	c.flush()
	c.periodic(ctx)
}

// Run loops until ctx is done. The report interval is counted in ticks.
// A controller runs once, later calls return ErrStopped.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrStopped
	}
	defer close(c.done)

	tickInterval := c.TickInterval
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	c.logger.Info("control loop started", "tick", tickInterval, "report", c.ReportInterval)
	for {
		c.dispatch()
		c.flush()

		select {
		case <-ctx.Done():
			c.logger.Info("control loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}

		c.periodic(ctx)
	}
}
