package module

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ConfigPusher sends a module's full desired state to its device.
// devicesync.Publisher is the production implementation.
type ConfigPusher interface {
	Push(ctx context.Context, m *Module) error
}

// Service holds the staff-facing operations on modules: listing, editing
// and deleting. Modules are never created here; only devices create them.
//
// Thread Safety:
//   - Safe for concurrent use. Serialisation happens in the Store.
type Service struct {
	store    Store
	pusher   ConfigPusher
	observer Observer
	logger   Logger
	now      func() time.Time
}

// NewService creates a Service.
//
// Parameters:
//   - store: Module persistence
//   - pusher: Publishes configuration after each committed change
func NewService(store Store, pusher ConfigPusher) *Service {
	return &Service{
		store:    store,
		pusher:   pusher,
		observer: noopObserver{},
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger used for the api log category.
func (s *Service) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetObserver sets the observer notified after committed changes.
func (s *Service) SetObserver(observer Observer) {
	if observer == nil {
		observer = noopObserver{}
	}
	s.observer = observer
}

// Overview returns every module together with per-type counts.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	modules, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	numeric, err := s.store.CountByType(ctx, TypeNumeric)
	if err != nil {
		return nil, err
	}
	arrow, err := s.store.CountByType(ctx, TypeArrow)
	if err != nil {
		return nil, err
	}
	return &Overview{
		Modules:      modules,
		NumericCount: numeric,
		ArrowCount:   arrow,
	}, nil
}

// Get returns one module by id.
func (s *Service) Get(ctx context.Context, id int64) (*Module, error) {
	return s.store.GetByID(ctx, id)
}

// Update applies a staff edit, commits it, then pushes the new
// configuration to the device.
//
// Validation happens before any write: an out-of-range number leaves the
// stored module exactly as it was. A failed push is logged but does not
// undo the committed edit; the device resyncs on its next reconnect.
//
// Parameters:
//   - ctx: Context for the store transaction and the push
//   - id: Module id
//   - edit: Requested configuration
//   - actor: Username recorded in logs and the event log
//
// Returns:
//   - *Module: The module as committed
//   - error: ErrModuleNotFound, a validation error, or a wrapped store error
func (s *Service) Update(ctx context.Context, id int64, edit Edit, actor string) (*Module, error) {
	var updated *Module
	err := s.store.WithTx(ctx, func(tx Store) error {
		m, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := edit.Apply(m, s.now()); err != nil {
			return err
		}
		if err := tx.Update(ctx, m); err != nil {
			return err
		}
		updated = m
		return nil
	})

	switch {
	case errors.Is(err, ErrModuleNotFound):
		s.logger.Warn("Module Update Failed (Not Found)",
			"description", "attempt to update non-existent module",
			"module_id", id, "user", actor)
		return nil, err
	case IsValidationError(err):
		s.logger.Warn("Module Update Rejected",
			"description", "edit failed validation, module unchanged",
			"module_id", id, "user", actor, "error", err)
		return nil, err
	case err != nil:
		s.logger.Error("Module Update Error",
			"description", "error updating module, changes rolled back",
			"module_id", id, "user", actor, "error", err)
		return nil, fmt.Errorf("updating module %d: %w", id, err)
	}

	s.push(ctx, updated, actor)

	s.logger.Info("Module Update Success",
		"description", "module updated successfully",
		"module_id", updated.ID, "place", updated.Place, "user", actor)

	s.observer.ModuleEvent(ctx, Event{
		Action: ActionUpdated,
		Module: updated.Clone(),
		Actor:  actor,
		Source: SourceWeb,
		At:     s.now().UTC(),
	})
	return updated, nil
}

// Delete switches the device off and then removes its record.
//
// The off push is always sent before the row is deleted, so a deleted
// module never keeps displaying stale content. A failed push is logged and
// the deletion still proceeds.
//
// Returns:
//   - error: ErrModuleNotFound, or a wrapped store error
func (s *Service) Delete(ctx context.Context, id int64, actor string) error {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrModuleNotFound) {
			s.logger.Warn("Module Deletion Failed (Not Found)",
				"description", "attempt to delete non-existent module",
				"module_id", id, "user", actor)
		}
		return err
	}

	m.On = false
	s.push(ctx, m, actor)

	err = s.store.WithTx(ctx, func(tx Store) error {
		return tx.Delete(ctx, id)
	})
	if err != nil {
		if errors.Is(err, ErrModuleNotFound) {
			return err
		}
		s.logger.Error("Module Deletion Error",
			"description", "error deleting module",
			"module_id", id, "place", m.Place, "user", actor, "error", err)
		return fmt.Errorf("deleting module %d: %w", id, err)
	}

	s.logger.Info("Module Deletion Success",
		"description", "module deleted successfully",
		"module_id", id, "place", m.Place, "user", actor)

	s.observer.ModuleEvent(ctx, Event{
		Action: ActionDeleted,
		Module: m,
		Actor:  actor,
		Source: SourceWeb,
		At:     s.now().UTC(),
	})
	return nil
}

func (s *Service) push(ctx context.Context, m *Module, actor string) {
	if s.pusher == nil {
		return
	}
	if err := s.pusher.Push(ctx, m); err != nil {
		s.logger.Warn("Module Config Push Failed",
			"description", "configuration not handed to the broker; device resyncs on reconnect",
			"module_id", m.ID, "mac", m.MAC, "user", actor, "error", err)
	}
}
