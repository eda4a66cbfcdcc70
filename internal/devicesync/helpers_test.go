package devicesync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/module-manager/internal/infrastructure/database"
	"github.com/nerrad567/module-manager/internal/infrastructure/mqtt"
	"github.com/nerrad567/module-manager/internal/module"
	_ "github.com/nerrad567/module-manager/migrations"
)

var testNow = time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) *module.SQLiteStore {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	require.NoError(t, db.Migrate(ctx))
	return module.NewSQLiteStore(db.DB)
}

type sentMessage struct {
	topic    string
	payload  string
	qos      byte
	retained bool
}

// fakeTransport records publishes.
type fakeTransport struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeTransport) PublishAsync(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{topic: topic, payload: string(payload), qos: qos, retained: retained})
	return nil
}

func (f *fakeTransport) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

// fakeSubscriber records subscriptions.
type fakeSubscriber struct {
	handlers map[string]mqtt.MessageHandler
	qos      map[string]byte
	err      error
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{
		handlers: make(map[string]mqtt.MessageHandler),
		qos:      make(map[string]byte),
	}
}

func (f *fakeSubscriber) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	if f.err != nil {
		return f.err
	}
	f.handlers[topic] = handler
	f.qos[topic] = qos
	return nil
}

type logLine struct {
	level string
	title string
	args  []any
}

// recordingLogger captures log titles by level.
type recordingLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *recordingLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	l.lines = append(l.lines, logLine{level: level, title: msg, args: args})
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *recordingLogger) titles(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, line := range l.lines {
		if line.level == level {
			out = append(out, line.title)
		}
	}
	return out
}

type recordingObserver struct {
	mu     sync.Mutex
	events []module.Event
}

func (o *recordingObserver) ModuleEvent(_ context.Context, e module.Event) {
	o.mu.Lock()
	o.events = append(o.events, e)
	o.mu.Unlock()
}

func (o *recordingObserver) actions() []module.Action {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]module.Action, 0, len(o.events))
	for _, e := range o.events {
		out = append(out, e.Action)
	}
	return out
}

type recordingPushes struct {
	macs []string
}

func (r *recordingPushes) RecordPush(m *module.Module) {
	r.macs = append(r.macs, m.MAC)
}

func intPtr(n int) *int { return &n }
