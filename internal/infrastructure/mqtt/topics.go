package mqtt

import "fmt"

// Fan controller topics. The ESP32 firmware subscribes to the command topics
// and publishes its own state changes on the same names, plus a structured
// snapshot on TopicUpdate.
const (
	TopicPrefixFan = "fan"

	TopicMode      = TopicPrefixFan + "/mode"
	TopicControl   = TopicPrefixFan + "/control"
	TopicThreshold = TopicPrefixFan + "/threshold"
	TopicUpdate    = TopicPrefixFan + "/update"

	// TopicPrefixBridge is the base for fanbridge's own topics. It is kept
	// outside the fan/ tree so the firmware never sees bridge traffic.
	TopicPrefixBridge = "fanbridge"
)

// Topics provides builders for fanbridge topics.
type Topics struct{}

// Inbound returns every topic the bridge subscribes to.
func (Topics) Inbound() []string {
	return []string{TopicMode, TopicControl, TopicThreshold, TopicUpdate}
}

// BridgeStatus returns the retained online/offline status topic for a client.
//
// Example: fanbridge/fanbridge-01/status
func (Topics) BridgeStatus(clientID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixBridge, clientID)
}
