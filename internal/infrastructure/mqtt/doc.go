// Package mqtt provides the broker connection used to talk to display modules.
//
// This package manages:
//   - Connection to the broker with TLS, credentials and auto-reconnect
//   - Subscription tracking, re-issued on every reconnect
//   - Panic-safe message handlers, invoked one at a time in arrival order
//   - Synchronous and fire-and-forget publishing
//
// # Topics
//
//	new_connection            device → server  {"mac","type"}
//	last_will                 device → server  {"mac"}
//	on_module_update/<mac>    server → device  {"on","color","animation","number"}
//
// # Failure handling
//
// A broker that refuses the credentials yields ErrAuthFailed from Connect
// and is not retried. Network failures after the first connection are
// retried by paho with exponential backoff; the session is clean, so
// subscriptions are restored by this package on each connect.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.LastWill(), 1, func(topic string, payload []byte) error {
//	    return nil
//	})
package mqtt
