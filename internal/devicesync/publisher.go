package devicesync

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/nerrad567/module-manager/internal/infrastructure/mqtt"
	"github.com/nerrad567/module-manager/internal/module"
)

// publishQoS is the delivery level for configuration pushes.
const publishQoS = 1

// Transport hands messages to the broker without waiting for delivery.
// *mqtt.Client satisfies it.
type Transport interface {
	PublishAsync(topic string, payload []byte, qos byte, retained bool) error
}

// PushRecorder is told about every configuration handed to the broker.
// It is optional and must not block.
type PushRecorder interface {
	RecordPush(m *module.Module)
}

// configPayload is the wire form of a module's desired state. Field order
// is fixed, so an unchanged module always encodes to the same bytes.
type configPayload struct {
	On        bool    `json:"on"`
	Color     *string `json:"color"`
	Animation string  `json:"animation"`
	Number    *int    `json:"number"`
}

// EncodeConfig returns the on_module_update payload for m.
//
// An unset colour is sent as null. Number is null for arrow modules.
func EncodeConfig(m *module.Module) ([]byte, error) {
	p := configPayload{
		On:        m.On,
		Animation: m.Animation,
	}
	if m.Color != "" {
		color := m.Color
		p.Color = &color
	}
	if m.IsNumeric() && m.Number != nil {
		n := *m.Number
		p.Number = &n
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding config for %s: %w", m.MAC, err)
	}
	return data, nil
}

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	// Transport is the broker connection.
	Transport Transport

	// Retain publishes with the retained flag set.
	Retain bool

	// Logger receives "MQTT Config Published" lines. Optional.
	Logger module.Logger

	// Recorder is notified of each push. Optional.
	Recorder PushRecorder
}

// Publisher pushes module configuration to devices. It implements
// module.ConfigPusher.
type Publisher struct {
	transport Transport
	retain    bool
	logger    module.Logger
	recorder  PushRecorder
	topics    mqtt.Topics
}

// NewPublisher creates a Publisher.
func NewPublisher(opts PublisherOptions) *Publisher {
	p := &Publisher{
		transport: opts.Transport,
		retain:    opts.Retain,
		logger:    opts.Logger,
		recorder:  opts.Recorder,
	}
	if p.logger == nil {
		p.logger = discardLogger{}
	}
	return p
}

// Push sends the full desired state of m to on_module_update/<mac>.
//
// The message is handed to the broker connection and Push returns without
// waiting for the acknowledgement. Delivery failures are logged by the
// transport. A disconnected transport returns mqtt.ErrNotConnected.
func (p *Publisher) Push(_ context.Context, m *module.Module) error {
	if m == nil {
		return module.ErrInvalidModule
	}

	payload, err := EncodeConfig(m)
	if err != nil {
		return err
	}

	topic := p.topics.ModuleUpdate(m.MAC)
	if err := p.transport.PublishAsync(topic, payload, publishQoS, p.retain); err != nil {
		return fmt.Errorf("publishing config for %s: %w", m.MAC, err)
	}

	p.logger.Info("MQTT Config Published",
		"description", fmt.Sprintf("configuration sent to module %s (%s)", m.MAC, m.Place),
		"mac", m.MAC,
		"place", m.Place,
		"topic", topic,
		"payload", string(payload),
	)

	if p.recorder != nil {
		p.recorder.RecordPush(m)
	}
	return nil
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}
