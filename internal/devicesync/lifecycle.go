package devicesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/nerrad567/module-manager/internal/module"
)

// newConnectionMessage is published by a device each time it connects.
type newConnectionMessage struct {
	MAC  string      `json:"mac"`
	Type module.Type `json:"type"`
}

// lastWillMessage is the will a device registers with the broker.
type lastWillMessage struct {
	MAC string `json:"mac"`
}

// LifecycleHandler applies device announcements and last wills to the store.
//
// State per module: unknown → online ⇄ offline. Modules are only ever
// created here, never deleted.
type LifecycleHandler struct {
	store    module.Store
	pusher   module.ConfigPusher
	observer module.Observer
	logger   module.Logger
	schemas  *payloadSchemas
	now      func() time.Time
}

// NewLifecycleHandler creates a handler.
//
// Parameters:
//   - store: Module persistence
//   - pusher: Sends configuration after each announcement
func NewLifecycleHandler(store module.Store, pusher module.ConfigPusher) (*LifecycleHandler, error) {
	if store == nil {
		return nil, errors.New("devicesync: store is required")
	}
	if pusher == nil {
		return nil, errors.New("devicesync: pusher is required")
	}
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &LifecycleHandler{
		store:    store,
		pusher:   pusher,
		observer: module.Observers{},
		logger:   discardLogger{},
		schemas:  schemas,
		now:      time.Now,
	}, nil
}

// SetLogger sets the logger (microcontrollers category).
func (h *LifecycleHandler) SetLogger(logger module.Logger) {
	if logger == nil {
		logger = discardLogger{}
	}
	h.logger = logger
}

// SetObserver sets the observer notified after each committed transition.
func (h *LifecycleHandler) SetObserver(observer module.Observer) {
	if observer == nil {
		observer = module.Observers{}
	}
	h.observer = observer
}

// announcement is the result of applying a new_connection message.
type announcement struct {
	module       *module.Module
	created      bool
	previousType module.Type
}

// HandleNewConnection registers or revives the announcing module and pushes
// its configuration.
//
// Invalid payloads are logged and return ErrInvalidPayload or
// ErrUnknownType without touching the store. The device's announced type
// always replaces the stored one.
func (h *LifecycleHandler) HandleNewConnection(ctx context.Context, payload []byte) error {
	msg, err := h.decodeNewConnection(payload)
	if err != nil {
		return err
	}

	h.logger.Debug("New Module Connection Attempt",
		"description", fmt.Sprintf("module %s of type %s attempting connection", msg.MAC, msg.Type),
		"mac", msg.MAC, "type", string(msg.Type))

	now := h.now().UTC()
	var result announcement
	err = h.store.WithTx(ctx, func(tx module.Store) error {
		existing, err := tx.GetByMAC(ctx, msg.MAC)
		if errors.Is(err, module.ErrModuleNotFound) {
			m := module.New(msg.MAC, msg.Type, now)
			if err := tx.Create(ctx, m); err != nil {
				return err
			}
			result = announcement{module: m, created: true}
			return nil
		}
		if err != nil {
			return err
		}

		result = announcement{module: existing, previousType: existing.Type}
		existing.Online = true
		existing.Type = msg.Type
		if existing.IsNumeric() && existing.Number == nil {
			n := module.DefaultNumber
			existing.Number = &n
		}
		seen := now
		existing.LastSeen = &seen
		return tx.Update(ctx, existing)
	})
	if err != nil {
		h.logger.Error("Module Connection Error",
			"description", "could not persist module announcement, message dropped",
			"mac", msg.MAC, "type", string(msg.Type), "error", err)
		return fmt.Errorf("recording connection of %s: %w", msg.MAC, err)
	}

	m := result.module
	if result.created {
		h.logger.Info("New Module Created",
			"description", fmt.Sprintf("new module %s of type %s created in database", m.MAC, m.Type),
			"mac", m.MAC, "type", string(m.Type), "module_id", m.ID)
		h.notify(ctx, module.ActionCreated, m, nil, now)
	} else {
		if result.previousType != m.Type {
			h.logger.Warn("Module Type Changed",
				"description", fmt.Sprintf("module %s reported type %s, stored type was %s", m.MAC, m.Type, result.previousType),
				"mac", m.MAC, "previous_type", string(result.previousType), "type", string(m.Type))
			h.notify(ctx, module.ActionTypeChanged, m, map[string]any{
				"previous_type": string(result.previousType),
				"type":          string(m.Type),
			}, now)
		}
		h.logger.Info("Existing Module Reconnected",
			"description", fmt.Sprintf("module %s of type %s marked as online, last seen updated", m.MAC, m.Type),
			"mac", m.MAC, "type", string(m.Type), "module_id", m.ID)
		h.notify(ctx, module.ActionReconnected, m, nil, now)
	}

	if err := h.pusher.Push(ctx, m); err != nil {
		h.logger.Warn("Module Config Push Failed",
			"description", "configuration not handed to the broker after connection",
			"mac", m.MAC, "module_id", m.ID, "error", err)
	}
	return nil
}

// HandleLastWill marks the module offline. Nothing else about it changes.
func (h *LifecycleHandler) HandleLastWill(ctx context.Context, payload []byte) error {
	if err := validatePayload(h.schemas.lastWill, payload); err != nil {
		h.logger.Warn("Invalid Last Will Payload",
			"description", "missing or malformed 'mac' in last will payload",
			"payload", string(payload), "error", err)
		return ErrInvalidPayload
	}

	var msg lastWillMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		h.logger.Warn("Invalid Last Will Payload",
			"description", "last will payload could not be decoded",
			"payload", string(payload), "error", err)
		return ErrInvalidPayload
	}

	var (
		offline *module.Module
		known   = true
	)
	err := h.store.WithTx(ctx, func(tx module.Store) error {
		m, err := tx.GetByMAC(ctx, msg.MAC)
		if errors.Is(err, module.ErrModuleNotFound) {
			known = false
			return nil
		}
		if err != nil {
			return err
		}
		m.Online = false
		if err := tx.Update(ctx, m); err != nil {
			return err
		}
		offline = m
		return nil
	})
	if err != nil {
		h.logger.Error("Module Disconnection Error",
			"description", "could not persist last will, message dropped",
			"mac", msg.MAC, "error", err)
		return fmt.Errorf("recording last will of %s: %w", msg.MAC, err)
	}

	if !known {
		h.logger.Warn("Unknown Module Disconnected (Last Will)",
			"description", fmt.Sprintf("received last will for unknown MAC %s", msg.MAC),
			"mac", msg.MAC)
		return nil
	}

	h.logger.Info("Module Disconnected (Last Will)",
		"description", fmt.Sprintf("module %s (%s) marked as offline due to last will", offline.MAC, offline.Place),
		"mac", offline.MAC, "place", offline.Place, "module_id", offline.ID)
	h.notify(ctx, module.ActionOffline, offline, nil, h.now().UTC())
	return nil
}

func (h *LifecycleHandler) decodeNewConnection(payload []byte) (*newConnectionMessage, error) {
	err := validatePayload(h.schemas.newConnection, payload)
	if errors.Is(err, ErrUnknownType) {
		var msg newConnectionMessage
		_ = json.Unmarshal(payload, &msg)
		h.logger.Warn("Invalid Module Type",
			"description", fmt.Sprintf("received invalid module type %q for MAC %s", msg.Type, msg.MAC),
			"mac", msg.MAC, "type", string(msg.Type), "payload", string(payload))
		return nil, ErrUnknownType
	}
	if err != nil {
		h.logger.Warn("Invalid New Connection Payload",
			"description", "missing or malformed 'mac' or 'type' in payload",
			"payload", string(payload), "error", err)
		return nil, ErrInvalidPayload
	}

	var msg newConnectionMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		h.logger.Warn("Invalid New Connection Payload",
			"description", "payload could not be decoded",
			"payload", string(payload), "error", err)
		return nil, ErrInvalidPayload
	}

	// The MAC becomes a topic level; the schema alone cannot rule out
	// wildcards or whitespace.
	if err := module.ValidateMAC(msg.MAC); err != nil {
		h.logger.Warn("Invalid New Connection Payload",
			"description", "MAC cannot be used as a topic level",
			"payload", string(payload), "error", err)
		return nil, ErrInvalidPayload
	}
	return &msg, nil
}

func (h *LifecycleHandler) notify(ctx context.Context, action module.Action, m *module.Module, details map[string]any, at time.Time) {
	h.observer.ModuleEvent(ctx, module.Event{
		Action:  action,
		Module:  m.Clone(),
		Source:  module.SourceDevice,
		Details: details,
		At:      at,
	})
}
