// Package mqtt wraps paho.mqtt.golang for the operations console's event
// surface.
//
// The console publishes command outcomes and retained zone state so
// dashboards and site integrations can follow what the hardware is doing,
// and subscribes to zone command topics so external systems can drive
// volume and mute without going through the HTTP API.
//
// Topic scheme:
//
//	avops/state/zone/{zoneID}      retained zone state
//	avops/event/command/{deviceID} command outcomes, not retained
//	avops/command/zone/{zoneID}    inbound zone actions
//	avops/system/status            online/offline status with LWT
//
// Connections auto-reconnect with exponential backoff and restore their
// subscriptions on reconnect.
package mqtt
