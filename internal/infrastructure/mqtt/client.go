package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/nerrad567/module-manager/internal/infrastructure/config"
)

// Client wraps the paho MQTT client with subscription tracking, panic-safe
// handlers and asynchronous publishing.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	// subscriptions are re-issued on every (re)connect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	inflight sync.WaitGroup
}

// Logger defines the logging interface used by the client.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// subscription tracks a subscription for restoration after reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler processes an inbound message. A returned error is logged;
// it never reaches paho.
type MessageHandler func(topic string, payload []byte) error

// NewClientFunc constructs the underlying paho client. Tests substitute a fake.
type NewClientFunc func(opts *pahomqtt.ClientOptions) pahomqtt.Client

// Option customises Connect.
type Option func(*Client, *NewClientFunc)

// WithLogger sets the logger before the first connection attempt.
func WithLogger(logger Logger) Option {
	return func(c *Client, _ *NewClientFunc) {
		c.logger = logger
	}
}

// WithNewClient replaces pahomqtt.NewClient.
func WithNewClient(fn NewClientFunc) Option {
	return func(_ *Client, newClient *NewClientFunc) {
		*newClient = fn
	}
}

// Connect establishes a connection to the broker.
//
// A refused login is returned as ErrAuthFailed and is not retried. Any
// other failure is returned as ErrConnectionFailed. After a successful
// connect, dropped connections are re-established by paho and every
// tracked subscription is restored.
//
// Parameters:
//   - cfg: MQTT configuration
//   - opts: Optional logger and client factory
//
// Returns:
//   - *Client: Connected client
//   - error: ErrAuthFailed, ErrConnectionFailed, or a TLS setup error
func Connect(cfg config.MQTTConfig, opts ...Option) (*Client, error) {
	clientOpts, err := buildClientOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		cfg:           cfg,
		options:       clientOpts,
		subscriptions: make(map[string]subscription),
	}

	newClient := NewClientFunc(pahomqtt.NewClient)
	for _, opt := range opts {
		opt(c, &newClient)
	}

	clientOpts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	clientOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	clientOpts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Info("MQTT Reconnecting", "description", "attempting to reconnect to broker")
		}
	})

	c.client = newClient(clientOpts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		err = classifyConnectError(token, err)
		if logger := c.getLogger(); logger != nil {
			logger.Error("MQTT Connection Error", "description", "could not connect to broker", "error", err)
		}
		return nil, err
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return c, nil
}

// classifyConnectError separates credential refusals from transient failures.
func classifyConnectError(token pahomqtt.Token, err error) error {
	auth := errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) ||
		errors.Is(err, packets.ErrorRefusedNotAuthorised)
	if ct, ok := token.(*pahomqtt.ConnectToken); ok {
		switch ct.ReturnCode() {
		case packets.ErrRefusedBadUsernameOrPassword, packets.ErrRefusedNotAuthorised:
			auth = true
		}
	}
	if auth {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
}

// handleConnect runs on every successful connection, including reconnects.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Info("MQTT Connected", "description", "connected to broker", "broker", c.brokerAddr())
	}

	c.restoreSubscriptions()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection drops unexpectedly.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT Connection Lost", "description", "connection to broker lost, reconnecting", "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-issues every tracked subscription. Subscribing to
// an already active topic is harmless, so this runs on every connect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.subMu.RUnlock()

	for _, sub := range subs {
		if err := c.subscribe(sub); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("MQTT Resubscribe Failed", "description", "could not restore subscription", "topic", sub.topic, "error", err)
			}
		}
	}
}

func (c *Client) brokerAddr() string {
	return fmt.Sprintf("%s:%d", c.cfg.Broker.Host, c.cfg.Broker.Port)
}

// Close waits for in-flight publishes and disconnects from the broker.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.inflight.Wait()
	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck reports whether the broker session is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns true if the client is currently connected.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetOnConnect sets a callback invoked after every successful (re)connect,
// after subscriptions have been restored.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the connection drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for handler errors and connection events.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler adapts a MessageHandler to paho and contains panics, so a
// bad message can never take down the client's router goroutine.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT Handler Panic",
						"description", "panic recovered in message handler",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT Handler Error",
					"description", "message handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
