package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/module-manager/internal/infrastructure/database"
	"github.com/nerrad567/module-manager/internal/module"
	_ "github.com/nerrad567/module-manager/migrations"
)

var testNow = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	require.NoError(t, db.Migrate(ctx))
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_CreateAndList(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	e := &Event{
		Action:    string(module.ActionCreated),
		ModuleID:  7,
		MAC:       "AA:BB:CC:DD:EE:FF",
		Source:    module.SourceDevice,
		Details:   map[string]any{"type": "numeric"},
		CreatedAt: testNow,
	}
	require.NoError(t, repo.Create(ctx, e))
	assert.NotEmpty(t, e.ID)

	res, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, defaultLimit, res.Limit)

	got := res.Events[0]
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "module.created", got.Action)
	assert.Equal(t, int64(7), got.ModuleID)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", got.MAC)
	assert.Empty(t, got.Actor)
	assert.Equal(t, "numeric", got.Details["type"])
	assert.True(t, got.CreatedAt.Equal(testNow))
}

func TestSQLiteRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	// Sub-second spacing checks the fixed-width timestamp ordering.
	for i, offset := range []time.Duration{0, 500 * time.Millisecond, 2 * time.Second, 2*time.Second + time.Millisecond} {
		require.NoError(t, repo.Create(ctx, &Event{
			Action:    string(module.ActionUpdated),
			ModuleID:  int64(i + 1),
			Source:    module.SourceWeb,
			CreatedAt: testNow.Add(offset),
		}))
	}

	res, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, res.Events, 4)
	assert.Equal(t, []int64{4, 3, 2, 1}, []int64{
		res.Events[0].ModuleID, res.Events[1].ModuleID, res.Events[2].ModuleID, res.Events[3].ModuleID,
	})
}

func TestSQLiteRepository_ListFilters(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	seed := []Event{
		{Action: "module.created", MAC: "AA", Source: module.SourceDevice},
		{Action: "module.offline", MAC: "AA", Source: module.SourceDevice},
		{Action: "module.created", MAC: "BB", Source: module.SourceDevice},
		{Action: "module.updated", MAC: "BB", Actor: "operator", Source: module.SourceWeb},
	}
	for i := range seed {
		seed[i].CreatedAt = testNow.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Create(ctx, &seed[i]))
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"by action", Filter{Action: "module.created"}, 2},
		{"by mac", Filter{MAC: "BB"}, 2},
		{"by action and mac", Filter{Action: "module.offline", MAC: "AA"}, 1},
		{"no match", Filter{MAC: "CC"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, res.Events, tt.want)
			assert.Equal(t, tt.want, res.Total)
			assert.NotNil(t, res.Events)
		})
	}
}

func TestSQLiteRepository_ListPagination(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &Event{
			Action:    "module.updated",
			ModuleID:  int64(i + 1),
			Source:    module.SourceWeb,
			CreatedAt: testNow.Add(time.Duration(i) * time.Minute),
		}))
	}

	res, err := repo.List(ctx, Filter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	require.Len(t, res.Events, 2)
	assert.Equal(t, int64(4), res.Events[0].ModuleID)
	assert.Equal(t, int64(3), res.Events[1].ModuleID)

	res, err = repo.List(ctx, Filter{Limit: 1000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, maxLimit, res.Limit)
	assert.Equal(t, 0, res.Offset)
}

// =============================================================================
// Recorder
// =============================================================================

type fakeRepo struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (f *fakeRepo) Create(_ context.Context, e *Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeRepo) List(context.Context, Filter) (*ListResult, error) {
	return &ListResult{}, nil
}

func (f *fakeRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type countingLogger struct {
	mu    sync.Mutex
	warns int
}

func (l *countingLogger) Warn(string, ...any) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}

func (l *countingLogger) Error(string, ...any) {}

func TestRecorder_WritesEvents(t *testing.T) {
	repo := &fakeRepo{}
	rec := NewRecorder(repo, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()

	m := module.New("AA:BB:CC:DD:EE:01", module.TypeArrow, testNow)
	m.ID = 3
	rec.ModuleEvent(ctx, module.Event{
		Action: module.ActionCreated,
		Module: m,
		Source: module.SourceDevice,
		At:     testNow,
	})

	require.Eventually(t, func() bool { return repo.count() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done

	got := repo.events[0]
	assert.Equal(t, "module.created", got.Action)
	assert.Equal(t, int64(3), got.ModuleID)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", got.MAC)
	assert.Equal(t, "NEW MODULE", got.Details["place"])
}

func TestRecorder_DrainsOnShutdown(t *testing.T) {
	repo := &fakeRepo{}
	rec := NewRecorder(repo, 8, nil)

	for i := 0; i < 3; i++ {
		rec.Record(Event{Action: "module.updated", Source: module.SourceWeb})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Run(ctx)

	assert.Equal(t, 3, repo.count())
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	repo := &fakeRepo{}
	logger := &countingLogger{}
	rec := NewRecorder(repo, 1, logger)

	rec.Record(Event{Action: "module.updated"})
	rec.Record(Event{Action: "module.updated"})
	rec.Record(Event{Action: "module.updated"})

	assert.Equal(t, int64(2), rec.Dropped())
	assert.Equal(t, 2, logger.warns)
}

func TestFromModuleEvent_DoesNotShareDetails(t *testing.T) {
	details := map[string]any{"previous_type": "arrow"}
	m := module.New("AA", module.TypeNumeric, testNow)
	m.Place = "Lab"

	ev := FromModuleEvent(module.Event{Action: module.ActionTypeChanged, Module: m, Details: details})

	assert.Equal(t, "Lab", ev.Details["place"])
	assert.Equal(t, "arrow", ev.Details["previous_type"])
	assert.NotContains(t, details, "place")
}
