// Package devicesync keeps display modules and their database records in step.
//
// Three pieces cooperate:
//
//   - Gateway subscribes to the device topics and routes each message.
//   - LifecycleHandler turns announcements and last wills into store changes.
//   - Publisher pushes a module's full desired configuration to its device.
//
// A device announces itself on new_connection every time it connects. An
// unseen MAC creates a module with default settings; a known MAC is marked
// online. Either way the stored configuration is pushed back, so a device
// that rebooted or missed an update converges on the next connect. When a
// device drops off, the broker delivers its last will and the module is
// marked offline.
//
// Inbound messages are handled one at a time in arrival order. Nothing in
// this package waits for a broker acknowledgement on that path.
package devicesync
