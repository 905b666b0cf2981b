package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every Aura Bridge topic.
const TopicPrefix = "aurabridge"

// Topics provides builders for Aura Bridge MQTT topics.
// Using these helpers keeps topic naming consistent between the bridge,
// its tests and anything on the host side that talks to it.
//
//	topics := mqtt.Topics{}
//	topics.State("living-room", "volume")
//	// Returns: "aurabridge/state/living-room/volume"
type Topics struct{}

// =============================================================================
// Per-control topics
// =============================================================================

// State returns the retained state topic of a control.
//
// Example: aurabridge/state/living-room/volume
func (Topics) State(bridgeID, controlID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, bridgeID, controlID)
}

// Command returns the topic the host publishes control commands on.
//
// Example: aurabridge/command/living-room/volume
func (Topics) Command(bridgeID, controlID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, bridgeID, controlID)
}

// =============================================================================
// Bridge topics
// =============================================================================

// Health returns the retained health topic of a bridge.
//
// Example: aurabridge/health/living-room
func (Topics) Health(bridgeID string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, bridgeID)
}

// Status returns the connection status topic of an MQTT client.
// It carries the Last Will and Testament.
//
// Example: aurabridge/status/aurabridge-living-room
func (Topics) Status(clientID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefix, clientID)
}

// External returns the default topic carrying an external entity's state.
//
// Example: aurabridge/external/media_player.living_room
func (Topics) External(entityID string) string {
	return fmt.Sprintf("%s/external/%s", TopicPrefix, entityID)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllCommands returns a pattern matching every command for one bridge.
//
// Pattern: aurabridge/command/living-room/+
func (Topics) AllCommands(bridgeID string) string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, bridgeID)
}

// ControlFromTopic extracts the control ID from a command or state topic.
// It returns "" when the topic does not have the expected shape.
func (Topics) ControlFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[3] == "" {
		return ""
	}
	return parts[3]
}
