package module

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/module-manager/internal/infrastructure/database"
)

// Store defines module persistence. Both the MQTT lifecycle handler and the
// web service mutate modules through it.
type Store interface {
	// GetAll returns every module ordered by id.
	GetAll(ctx context.Context) ([]Module, error)

	// GetByID returns ErrModuleNotFound if no module has this id.
	GetByID(ctx context.Context, id int64) (*Module, error)

	// GetByMAC returns ErrModuleNotFound if no module has this MAC.
	GetByMAC(ctx context.Context, mac string) (*Module, error)

	// CountByType returns how many modules are of type t.
	CountByType(ctx context.Context, t Type) (int, error)

	// Create inserts m and sets m.ID.
	// Returns ErrModuleExists if the MAC is already registered.
	Create(ctx context.Context, m *Module) error

	// Update writes every mutable field of m.
	// Returns ErrModuleNotFound if m.ID does not exist.
	Update(ctx context.Context, m *Module) error

	// Delete removes a module by id.
	// Returns ErrModuleNotFound if the module does not exist.
	Delete(ctx context.Context, id int64) error

	// WithTx runs fn against a Store bound to one transaction. Returning an
	// error from fn rolls back all of its writes.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	q  querier
	tx bool
}

// NewSQLiteStore creates a new SQLite-backed store.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, q: db}
}

const selectColumns = `
	SELECT id, mac, type, number, animation, color, place, is_on, online, last_seen, last_update
	FROM modules`

// GetAll returns every module ordered by id.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]Module, error) {
	rows, err := s.q.QueryContext(ctx, selectColumns+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying modules: %w", err)
	}
	defer rows.Close()

	modules := []Module{}
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning module: %w", err)
		}
		modules = append(modules, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating modules: %w", err)
	}
	return modules, nil
}

// GetByID returns a module by its surrogate id.
func (s *SQLiteStore) GetByID(ctx context.Context, id int64) (*Module, error) {
	m, err := scanModule(s.q.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrModuleNotFound
		}
		return nil, fmt.Errorf("querying module by id: %w", err)
	}
	return m, nil
}

// GetByMAC returns a module by its MAC address.
func (s *SQLiteStore) GetByMAC(ctx context.Context, mac string) (*Module, error) {
	m, err := scanModule(s.q.QueryRowContext(ctx, selectColumns+" WHERE mac = ?", mac))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrModuleNotFound
		}
		return nil, fmt.Errorf("querying module by mac: %w", err)
	}
	return m, nil
}

// CountByType returns how many modules are of type t.
func (s *SQLiteStore) CountByType(ctx context.Context, t Type) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM modules WHERE type = ?", string(t)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting modules by type: %w", err)
	}
	return n, nil
}

// Create inserts m and sets m.ID.
func (s *SQLiteStore) Create(ctx context.Context, m *Module) error {
	if err := ValidateModule(m); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
		INSERT INTO modules (
			mac, type, number, animation, color, place, is_on, online, last_seen, last_update
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.MAC,
		string(m.Type),
		nullableInt(m.Number),
		nullableString(m.Animation),
		nullableString(m.Color),
		nullableString(m.Place),
		boolToInt(m.On),
		boolToInt(m.Online),
		nullableTime(m.LastSeen),
		nullableTime(m.LastUpdate),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrModuleExists
		}
		return fmt.Errorf("inserting module: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading module id: %w", err)
	}
	m.ID = id
	return nil
}

// Update writes every mutable field of m. The MAC is never rewritten.
func (s *SQLiteStore) Update(ctx context.Context, m *Module) error {
	if err := ValidateModule(m); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE modules SET
			type = ?, number = ?, animation = ?, color = ?, place = ?,
			is_on = ?, online = ?, last_seen = ?, last_update = ?
		WHERE id = ?`,
		string(m.Type),
		nullableInt(m.Number),
		nullableString(m.Animation),
		nullableString(m.Color),
		nullableString(m.Place),
		boolToInt(m.On),
		boolToInt(m.Online),
		nullableTime(m.LastSeen),
		nullableTime(m.LastUpdate),
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("updating module: %w", err)
	}
	return requireRow(result)
}

// Delete removes a module by id.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	result, err := s.q.ExecContext(ctx, "DELETE FROM modules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting module: %w", err)
	}
	return requireRow(result)
}

// WithTx runs fn in a transaction. Nested calls join the outer transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.tx {
		return fn(s)
	}
	return database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&SQLiteStore{db: s.db, q: tx, tx: true})
	})
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrModuleNotFound
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanModule(row rowScanner) (*Module, error) {
	var m Module
	var moduleType, animation, color, place sql.NullString
	var number sql.NullInt64
	var on, online int
	var lastSeen, lastUpdate sql.NullString

	if err := row.Scan(
		&m.ID, &m.MAC, &moduleType, &number, &animation, &color, &place,
		&on, &online, &lastSeen, &lastUpdate,
	); err != nil {
		return nil, err
	}

	m.Type = Type(moduleType.String)
	if number.Valid {
		n := int(number.Int64)
		m.Number = &n
	}
	m.Animation = animation.String
	m.Color = color.String
	m.Place = place.String
	m.On = on != 0
	m.Online = online != 0
	m.LastSeen = parseTime(lastSeen)
	m.LastUpdate = parseTime(lastUpdate)
	return &m, nil
}

func nullableInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
