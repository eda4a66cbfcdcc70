package mqtt

import "fmt"

// Topic names shared with the module firmware. Changing them breaks
// deployed devices.
const (
	// TopicNewConnection carries {"mac","type"} when a device (re)connects.
	TopicNewConnection = "new_connection"

	// TopicLastWill carries {"mac"}; devices register it as their will.
	TopicLastWill = "last_will"

	// TopicModuleUpdatePrefix is followed by /<mac> for configuration pushes.
	TopicModuleUpdatePrefix = "on_module_update"
)

// Topics builds topic strings.
//
// Example:
//
//	topic := mqtt.Topics{}.ModuleUpdate("AA:BB:CC:DD:EE:FF")
//	// "on_module_update/AA:BB:CC:DD:EE:FF"
type Topics struct{}

// NewConnection returns the device announcement topic.
func (Topics) NewConnection() string {
	return TopicNewConnection
}

// LastWill returns the device last-will topic.
func (Topics) LastWill() string {
	return TopicLastWill
}

// ModuleUpdate returns the configuration topic for one device.
func (Topics) ModuleUpdate(mac string) string {
	return fmt.Sprintf("%s/%s", TopicModuleUpdatePrefix, mac)
}

// Inbound returns every topic the server listens on.
func (t Topics) Inbound() []string {
	return []string{t.NewConnection(), t.LastWill()}
}
