package module

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPusher captures pushed snapshots and whether the module still
// existed in the store at push time.
type recordingPusher struct {
	mu          sync.Mutex
	store       Store
	pushed      []Module
	existedThen []bool
	err         error
}

func (p *recordingPusher) Push(ctx context.Context, m *Module) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, *m.Clone())
	if p.store != nil {
		_, err := p.store.GetByID(ctx, m.ID)
		p.existedThen = append(p.existedThen, err == nil)
	}
	return p.err
}

type recordingObserver struct {
	events []Event
}

func (o *recordingObserver) ModuleEvent(_ context.Context, e Event) {
	o.events = append(o.events, e)
}

func setupService(t *testing.T) (*Service, *SQLiteStore, *recordingPusher, *recordingObserver) {
	t.Helper()
	store := setupStore(t)
	pusher := &recordingPusher{}
	obs := &recordingObserver{}
	svc := NewService(store, pusher)
	svc.SetObserver(obs)
	svc.now = func() time.Time { return testNow.Add(time.Minute) }
	return svc, store, pusher, obs
}

func TestService_Overview(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := setupService(t)

	require.NoError(t, store.Create(ctx, New("AA:00:00:00:00:01", TypeNumeric, testNow)))
	require.NoError(t, store.Create(ctx, New("AA:00:00:00:00:02", TypeArrow, testNow)))
	require.NoError(t, store.Create(ctx, New("AA:00:00:00:00:03", TypeArrow, testNow)))

	ov, err := svc.Overview(ctx)
	require.NoError(t, err)
	assert.Len(t, ov.Modules, 3)
	assert.Equal(t, 1, ov.NumericCount)
	assert.Equal(t, 2, ov.ArrowCount)
}

func TestService_UpdateRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, store, pusher, obs := setupService(t)

	m := New("AA:BB:CC:DD:EE:10", TypeNumeric, testNow)
	require.NoError(t, store.Create(ctx, m))

	updated, err := svc.Update(ctx, m.ID, Edit{
		On:     true,
		Color:  "#ff0000",
		Number: intPtr(42),
		Place:  "Aula Magna",
	}, "mrossi")
	require.NoError(t, err)
	assert.Equal(t, 42, *updated.Number)

	stored, err := store.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, *stored.Number)
	assert.Equal(t, "#ff0000", stored.Color)
	assert.True(t, stored.On)
	assert.True(t, stored.LastUpdate.Equal(testNow.Add(time.Minute)))

	require.Len(t, pusher.pushed, 1)
	pushed := pusher.pushed[0]
	assert.True(t, pushed.On)
	assert.Equal(t, "#ff0000", pushed.Color)
	assert.Equal(t, 42, *pushed.Number)

	require.Len(t, obs.events, 1)
	assert.Equal(t, ActionUpdated, obs.events[0].Action)
	assert.Equal(t, "mrossi", obs.events[0].Actor)
	assert.Equal(t, SourceWeb, obs.events[0].Source)
}

func TestService_UpdateBoundaryRejected(t *testing.T) {
	ctx := context.Background()
	svc, store, pusher, obs := setupService(t)

	m := New("AA:BB:CC:DD:EE:11", TypeNumeric, testNow)
	require.NoError(t, store.Create(ctx, m))

	for _, n := range []int{100, -1} {
		_, err := svc.Update(ctx, m.ID, Edit{On: true, Number: intPtr(n), Place: "changed"}, "mrossi")
		require.ErrorIs(t, err, ErrInvalidNumber)
	}

	stored, err := store.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, *stored.Number)
	assert.False(t, stored.On)
	assert.Equal(t, DefaultPlace, stored.Place)
	assert.Empty(t, pusher.pushed, "rejected edit must not publish")
	assert.Empty(t, obs.events)
}

func TestService_UpdateNotFound(t *testing.T) {
	svc, _, pusher, _ := setupService(t)

	_, err := svc.Update(context.Background(), 404, Edit{}, "mrossi")
	assert.ErrorIs(t, err, ErrModuleNotFound)
	assert.Empty(t, pusher.pushed)
}

func TestService_UpdatePushFailureKeepsCommit(t *testing.T) {
	ctx := context.Background()
	svc, store, pusher, _ := setupService(t)
	pusher.err = errors.New("not connected")

	m := New("AA:BB:CC:DD:EE:12", TypeArrow, testNow)
	require.NoError(t, store.Create(ctx, m))

	_, err := svc.Update(ctx, m.ID, Edit{On: true, Place: "Lab"}, "mrossi")
	require.NoError(t, err)

	stored, err := store.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, stored.On)
	assert.Equal(t, "Lab", stored.Place)
}

func TestService_DeletePushesOffFirst(t *testing.T) {
	ctx := context.Background()
	svc, store, pusher, obs := setupService(t)
	pusher.store = store

	m := New("AA:BB:CC:DD:EE:13", TypeNumeric, testNow)
	m.On = true
	require.NoError(t, store.Create(ctx, m))

	require.NoError(t, svc.Delete(ctx, m.ID, "mrossi"))

	require.Len(t, pusher.pushed, 1)
	assert.False(t, pusher.pushed[0].On)
	assert.Equal(t, []bool{true}, pusher.existedThen, "off push must precede removal")

	_, err := store.GetByID(ctx, m.ID)
	assert.ErrorIs(t, err, ErrModuleNotFound)

	require.Len(t, obs.events, 1)
	assert.Equal(t, ActionDeleted, obs.events[0].Action)
}

func TestService_DeleteProceedsWhenPushFails(t *testing.T) {
	ctx := context.Background()
	svc, store, pusher, _ := setupService(t)
	pusher.err = errors.New("not connected")

	m := New("AA:BB:CC:DD:EE:14", TypeArrow, testNow)
	require.NoError(t, store.Create(ctx, m))

	require.NoError(t, svc.Delete(ctx, m.ID, "mrossi"))
	_, err := store.GetByID(ctx, m.ID)
	assert.ErrorIs(t, err, ErrModuleNotFound)
}

func TestService_DeleteNotFound(t *testing.T) {
	svc, _, pusher, _ := setupService(t)

	err := svc.Delete(context.Background(), 404, "mrossi")
	assert.ErrorIs(t, err, ErrModuleNotFound)
	assert.Empty(t, pusher.pushed)
}
