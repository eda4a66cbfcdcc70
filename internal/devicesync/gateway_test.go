package devicesync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/module-manager/internal/module"
)

// stubLifecycle records dispatched payloads.
type stubLifecycle struct {
	newConnections [][]byte
	lastWills      [][]byte
	deadlines      []bool
	err            error
}

func (s *stubLifecycle) HandleNewConnection(ctx context.Context, payload []byte) error {
	_, ok := ctx.Deadline()
	s.deadlines = append(s.deadlines, ok)
	s.newConnections = append(s.newConnections, payload)
	return s.err
}

func (s *stubLifecycle) HandleLastWill(ctx context.Context, payload []byte) error {
	_, ok := ctx.Deadline()
	s.deadlines = append(s.deadlines, ok)
	s.lastWills = append(s.lastWills, payload)
	return s.err
}

func newTestGateway(t *testing.T, lc Lifecycle) (*Gateway, *fakeSubscriber, *recordingLogger) {
	t.Helper()
	sub := newFakeSubscriber()
	logger := &recordingLogger{}
	g, err := NewGateway(GatewayOptions{
		Client:    sub,
		Lifecycle: lc,
		QoS:       1,
		Logger:    logger,
	})
	require.NoError(t, err)
	t.Cleanup(g.Stop)
	return g, sub, logger
}

func TestNewGateway_Validation(t *testing.T) {
	_, err := NewGateway(GatewayOptions{Lifecycle: &stubLifecycle{}})
	assert.Error(t, err)

	_, err = NewGateway(GatewayOptions{Client: newFakeSubscriber()})
	assert.Error(t, err)

	_, err = NewGateway(GatewayOptions{Client: newFakeSubscriber(), Lifecycle: &stubLifecycle{}, QoS: 3})
	assert.Error(t, err)
}

func TestGateway_StartSubscribesDeviceTopics(t *testing.T) {
	g, sub, _ := newTestGateway(t, &stubLifecycle{})

	require.NoError(t, g.Start())

	assert.Len(t, sub.handlers, 2)
	assert.Contains(t, sub.handlers, "new_connection")
	assert.Contains(t, sub.handlers, "last_will")
	assert.Equal(t, byte(1), sub.qos["new_connection"])
}

func TestGateway_StartSubscribeError(t *testing.T) {
	g, sub, _ := newTestGateway(t, &stubLifecycle{})
	sub.err = errors.New("not authorised")

	assert.Error(t, g.Start())
}

func TestGateway_Dispatch(t *testing.T) {
	lc := &stubLifecycle{}
	g, _, _ := newTestGateway(t, lc)

	require.NoError(t, g.HandleMessage("new_connection", []byte(`{"mac":"AA","type":"arrow"}`)))
	require.NoError(t, g.HandleMessage("last_will", []byte(`{"mac":"AA"}`)))

	require.Len(t, lc.newConnections, 1)
	require.Len(t, lc.lastWills, 1)
	assert.Equal(t, []bool{true, true}, lc.deadlines)
}

func TestGateway_HandlerErrorsDoNotEscape(t *testing.T) {
	lc := &stubLifecycle{err: errors.New("database is locked")}
	g, _, _ := newTestGateway(t, lc)

	assert.NoError(t, g.HandleMessage("new_connection", []byte(`{"mac":"AA","type":"arrow"}`)))
}

func TestGateway_RejectsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"not json", []byte(`mac=AA`)},
		{"truncated json", []byte(`{"mac":"AA"`)},
		{"invalid utf-8", []byte{'{', '"', 'm', '"', ':', '"', 0xff, 0xfe, '"', '}'}},
		{"empty", []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := &stubLifecycle{}
			g, _, logger := newTestGateway(t, lc)

			assert.NoError(t, g.HandleMessage("new_connection", tt.payload))

			assert.Empty(t, lc.newConnections)
			assert.Equal(t, []string{"MQTT Payload JSON Error"}, logger.titles("error"))
		})
	}
}

func TestGateway_UnhandledTopic(t *testing.T) {
	lc := &stubLifecycle{}
	g, _, logger := newTestGateway(t, lc)

	assert.NoError(t, g.HandleMessage("on_module_update/AA", []byte(`{"on":true}`)))

	assert.Empty(t, lc.newConnections)
	assert.Empty(t, lc.lastWills)
	assert.Contains(t, logger.titles("info"), "Unhandled MQTT Topic")
}

func TestGateway_StopCancelsMessageContext(t *testing.T) {
	f := setupLifecycle(t)
	g, _, _ := newTestGateway(t, f.handler)
	g.Stop()

	require.NoError(t, g.HandleMessage("new_connection", []byte(`{"mac":"AA:BB:CC:DD:EE:10","type":"arrow"}`)))

	_, err := f.store.GetByMAC(context.Background(), "AA:BB:CC:DD:EE:10")
	assert.ErrorIs(t, err, module.ErrModuleNotFound)
}

func TestGateway_EndToEnd(t *testing.T) {
	f := setupLifecycle(t)
	g, sub, _ := newTestGateway(t, f.handler)
	require.NoError(t, g.Start())

	deliver := func(topic, payload string) {
		require.NoError(t, sub.handlers[topic](topic, []byte(payload)))
	}

	deliver("new_connection", `{"mac":"AA:BB:CC:DD:EE:11","type":"numeric"}`)

	m, err := f.store.GetByMAC(context.Background(), "AA:BB:CC:DD:EE:11")
	require.NoError(t, err)
	assert.True(t, m.Online)

	sent := f.transport.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "on_module_update/AA:BB:CC:DD:EE:11", sent[0].topic)

	f.handler.now = func() time.Time { return testNow.Add(time.Minute) }
	deliver("last_will", `{"mac":"AA:BB:CC:DD:EE:11"}`)

	m, err = f.store.GetByMAC(context.Background(), "AA:BB:CC:DD:EE:11")
	require.NoError(t, err)
	assert.False(t, m.Online)
	assert.Len(t, f.transport.messages(), 1)
}
