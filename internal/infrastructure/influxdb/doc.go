// Package influxdb records module liveness and configuration pushes as
// time series.
//
// Telemetry is optional. When influxdb.enabled is false, Connect returns
// ErrDisabled and the service runs without it.
//
// # Measurements
//
//	module_liveness,mac=<mac>,type=<type> online=<bool>
//	module_config_push,mac=<mac> on=<bool>,number=<int>
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	telemetry := influxdb.NewTelemetry(client)
//	// register telemetry as a module.Observer and devicesync.PushRecorder
//
// Writes are non-blocking and batched (batch_size, flush_interval).
// Asynchronous write errors are delivered to the SetOnError callback.
package influxdb
