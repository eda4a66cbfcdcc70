package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/module-manager/internal/module"
)

// Measurement names.
const (
	MeasurementLiveness   = "module_liveness"
	MeasurementConfigPush = "module_config_push"
)

// PointWriter accepts points without blocking. *Client satisfies it.
type PointWriter interface {
	WritePoint(p *write.Point)
}

// Telemetry turns module events into points. It implements module.Observer
// and devicesync.PushRecorder.
type Telemetry struct {
	writer PointWriter
	now    func() time.Time
}

// NewTelemetry creates a Telemetry writing through w.
func NewTelemetry(w PointWriter) *Telemetry {
	return &Telemetry{writer: w, now: time.Now}
}

// ModuleEvent records online/offline transitions. Other actions are ignored.
func (t *Telemetry) ModuleEvent(_ context.Context, e module.Event) {
	if e.Module == nil {
		return
	}

	var online bool
	switch e.Action {
	case module.ActionCreated, module.ActionReconnected:
		online = true
	case module.ActionOffline:
		online = false
	default:
		return
	}

	at := e.At
	if at.IsZero() {
		at = t.now()
	}

	t.writer.WritePoint(write.NewPoint(
		MeasurementLiveness,
		map[string]string{
			"mac":  e.Module.MAC,
			"type": string(e.Module.Type),
		},
		map[string]interface{}{
			"online": online,
		},
		at,
	))
}

// RecordPush records a configuration handed to the broker.
func (t *Telemetry) RecordPush(m *module.Module) {
	fields := map[string]interface{}{
		"on": m.On,
	}
	if m.IsNumeric() && m.Number != nil {
		fields["number"] = *m.Number
	}

	t.writer.WritePoint(write.NewPoint(
		MeasurementConfigPush,
		map[string]string{"mac": m.MAC},
		fields,
		t.now(),
	))
}
