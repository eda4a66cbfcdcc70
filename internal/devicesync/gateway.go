package devicesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/nerrad567/module-manager/internal/infrastructure/mqtt"
	"github.com/nerrad567/module-manager/internal/module"
)

// defaultMessageTimeout bounds store work for one inbound message.
const defaultMessageTimeout = 10 * time.Second

// Subscriber registers topic handlers. *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Lifecycle handles the two device topics. *LifecycleHandler satisfies it.
type Lifecycle interface {
	HandleNewConnection(ctx context.Context, payload []byte) error
	HandleLastWill(ctx context.Context, payload []byte) error
}

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	// Client is the broker connection.
	Client Subscriber

	// Lifecycle receives validated messages.
	Lifecycle Lifecycle

	// QoS is the subscription level for the device topics.
	QoS byte

	// MessageTimeout bounds store access per message. Zero means 10s.
	MessageTimeout time.Duration

	// Logger is the microcontrollers category logger. Optional.
	Logger module.Logger
}

// Gateway routes inbound device messages to the lifecycle handler.
//
// No error or panic escapes a message callback: malformed input is logged
// and dropped, and the transport recovers panics.
type Gateway struct {
	client    Subscriber
	lifecycle Lifecycle
	qos       byte
	timeout   time.Duration
	logger    module.Logger
	topics    mqtt.Topics

	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once
}

// NewGateway creates a gateway. Call Start to subscribe.
func NewGateway(opts GatewayOptions) (*Gateway, error) {
	if opts.Client == nil {
		return nil, errors.New("devicesync: MQTT client is required")
	}
	if opts.Lifecycle == nil {
		return nil, errors.New("devicesync: lifecycle handler is required")
	}
	if opts.QoS > 2 {
		return nil, mqtt.ErrInvalidQoS
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		client:    opts.Client,
		lifecycle: opts.Lifecycle,
		qos:       opts.QoS,
		timeout:   opts.MessageTimeout,
		logger:    opts.Logger,
		ctx:       ctx,
		ctxCancel: cancel,
	}
	if g.timeout <= 0 {
		g.timeout = defaultMessageTimeout
	}
	if g.logger == nil {
		g.logger = discardLogger{}
	}
	return g, nil
}

// Start subscribes to new_connection and last_will. Subscriptions survive
// reconnects.
func (g *Gateway) Start() error {
	for _, topic := range g.topics.Inbound() {
		if err := g.client.Subscribe(topic, g.qos, g.HandleMessage); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		g.logger.Info("MQTT Subscribed",
			"description", fmt.Sprintf("listening for device messages on %s", topic),
			"topic", topic)
	}
	return nil
}

// Stop cancels store work for messages still in flight.
func (g *Gateway) Stop() {
	g.stopOnce.Do(g.ctxCancel)
}

// HandleMessage validates the payload encoding and dispatches by exact
// topic. It always returns nil.
func (g *Gateway) HandleMessage(topic string, payload []byte) error {
	g.logger.Debug("Raw MQTT Message Received",
		"description", fmt.Sprintf("message on topic %s", topic),
		"topic", topic, "payload", string(payload))

	if !utf8.Valid(payload) || !json.Valid(payload) {
		g.logger.Error("MQTT Payload JSON Error",
			"description", fmt.Sprintf("failed to decode JSON from topic %s", topic),
			"topic", topic, "payload", string(payload))
		return nil
	}

	ctx, cancel := context.WithTimeout(g.ctx, g.timeout)
	defer cancel()

	switch topic {
	case g.topics.NewConnection():
		_ = g.lifecycle.HandleNewConnection(ctx, payload)
	case g.topics.LastWill():
		_ = g.lifecycle.HandleLastWill(ctx, payload)
	default:
		g.logger.Info("Unhandled MQTT Topic",
			"description", fmt.Sprintf("received message on unhandled topic %s", topic),
			"topic", topic, "payload", string(payload))
	}
	return nil
}
