package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes. All console topics live under one root so a single
// wildcard subscription can follow everything the service emits.
const (
	// TopicRoot is the base for all console topics.
	TopicRoot = "avops"

	// TopicPrefixSystem is the base for system status topics.
	TopicPrefixSystem = "avops/system"
)

// Topics provides builders for console MQTT topics. Using these helpers
// keeps topic naming consistent between publishers and subscribers.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.ZoneState("zone-3")
//	// Returns: "avops/state/zone/zone-3"
type Topics struct{}

// ZoneState returns the retained state topic for one audio zone.
//
// Example: avops/state/zone/zone-3
func (Topics) ZoneState(zoneID string) string {
	return fmt.Sprintf("%s/state/zone/%s", TopicRoot, zoneID)
}

// AllZoneStates returns the wildcard pattern matching every zone state topic.
func (Topics) AllZoneStates() string {
	return TopicRoot + "/state/zone/+"
}

// CommandEvent returns the topic for command outcomes from one device.
//
// Example: avops/event/command/matrix-main
func (Topics) CommandEvent(deviceID string) string {
	return fmt.Sprintf("%s/event/command/%s", TopicRoot, deviceID)
}

// AllCommandEvents returns the wildcard pattern matching every command
// outcome topic.
func (Topics) AllCommandEvents() string {
	return TopicRoot + "/event/command/+"
}

// ZoneCommand returns the inbound command topic for one audio zone.
//
// Example: avops/command/zone/zone-3
func (Topics) ZoneCommand(zoneID string) string {
	return fmt.Sprintf("%s/command/zone/%s", TopicRoot, zoneID)
}

// AllZoneCommands returns the wildcard pattern the console subscribes to
// for external zone control.
func (Topics) AllZoneCommands() string {
	return TopicRoot + "/command/zone/+"
}

// SweepReport returns the topic for completed switch-test reports.
//
// Example: avops/event/sweep/matrix-main
func (Topics) SweepReport(deviceID string) string {
	return fmt.Sprintf("%s/event/sweep/%s", TopicRoot, deviceID)
}

// SystemStatus returns the console's online/offline status topic.
// Retained; also used as the Last Will topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// ZoneIDFromCommandTopic extracts the zone ID from an inbound zone command
// topic. Returns false when the topic is not a zone command topic.
func ZoneIDFromCommandTopic(topic string) (string, bool) {
	const prefix = TopicRoot + "/command/zone/"
	id, ok := strings.CutPrefix(topic, prefix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
