package module

import (
	"context"
	"time"
)

// Type classifies a module's display hardware.
type Type string

// Module types announced by devices.
const (
	TypeNumeric Type = "numeric"
	TypeArrow   Type = "arrow"
)

// AllTypes returns every supported module type.
func AllTypes() []Type {
	return []Type{TypeNumeric, TypeArrow}
}

// Valid reports whether t is a supported module type.
func (t Type) Valid() bool {
	return t == TypeNumeric || t == TypeArrow
}

// Defaults applied to a module on its first announcement.
const (
	DefaultPlace     = "NEW MODULE"
	DefaultAnimation = "none"
	DefaultNumber    = 0

	// DefaultColor is used when an edit leaves the colour empty.
	DefaultColor = "#ffffff"

	// ColorRandom asks the firmware to pick colours itself.
	ColorRandom = "random"
)

// Number bounds for numeric modules.
const (
	MinNumber = 0
	MaxNumber = 99
)

// Module is one physical display device.
type Module struct {
	ID        int64  `json:"id"`
	MAC       string `json:"mac"`
	Type      Type   `json:"type"`
	Number    *int   `json:"number"`
	Animation string `json:"animation"`

	// Color is "#RRGGBB", ColorRandom, or empty when never configured.
	Color string `json:"color"`
	Place string `json:"place"`

	// On is the desired power state pushed to the device.
	On bool `json:"on"`

	// Online reflects MQTT liveness only.
	Online bool `json:"online"`

	LastSeen   *time.Time `json:"last_seen,omitempty"`
	LastUpdate *time.Time `json:"last_update,omitempty"`
}

// New builds the record created when an unseen MAC first announces itself.
func New(mac string, t Type, now time.Time) *Module {
	m := &Module{
		MAC:       mac,
		Type:      t,
		Animation: DefaultAnimation,
		Place:     DefaultPlace,
		On:        false,
		Online:    true,
	}
	if t == TypeNumeric {
		n := DefaultNumber
		m.Number = &n
	}
	seen := now.UTC()
	m.LastSeen = &seen
	updated := seen
	m.LastUpdate = &updated
	return m
}

// IsNumeric reports whether the module shows a number.
func (m *Module) IsNumeric() bool {
	return m.Type == TypeNumeric
}

// Clone returns a deep copy of the module.
func (m *Module) Clone() *Module {
	if m == nil {
		return nil
	}
	c := *m
	if m.Number != nil {
		n := *m.Number
		c.Number = &n
	}
	if m.LastSeen != nil {
		t := *m.LastSeen
		c.LastSeen = &t
	}
	if m.LastUpdate != nil {
		t := *m.LastUpdate
		c.LastUpdate = &t
	}
	return &c
}

// Overview is the dashboard view of all modules.
type Overview struct {
	Modules      []Module `json:"modules"`
	NumericCount int      `json:"numeric_count"`
	ArrowCount   int      `json:"arrow_count"`
}

// Action names a module lifecycle event.
type Action string

// Lifecycle actions.
const (
	ActionCreated     Action = "module.created"
	ActionReconnected Action = "module.reconnected"
	ActionTypeChanged Action = "module.type_changed"
	ActionOffline     Action = "module.offline"
	ActionUpdated     Action = "module.updated"
	ActionDeleted     Action = "module.deleted"
)

// Sources of a lifecycle event.
const (
	SourceDevice = "mqtt"
	SourceWeb    = "web"
)

// Event describes a committed change to a module.
type Event struct {
	Action  Action
	Module  *Module // snapshot after the change
	Actor   string  // username for web changes, empty for device changes
	Source  string
	Details map[string]any
	At      time.Time
}

// Observer is notified after a module change has been committed.
// Implementations must not block: they run on the MQTT callback path.
type Observer interface {
	ModuleEvent(ctx context.Context, e Event)
}

// Observers fans an event out to several observers in order.
type Observers []Observer

// ModuleEvent implements Observer.
func (o Observers) ModuleEvent(ctx context.Context, e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.ModuleEvent(ctx, e)
		}
	}
}

type noopObserver struct{}

func (noopObserver) ModuleEvent(context.Context, Event) {}

// Logger defines the logging interface used by this package.
// It is compatible with slog.Logger and logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
