// Package influxdb records command and sweep telemetry in InfluxDB v2.
//
// Every device command contributes a duration/success point; completed
// sweeps contribute an aggregate success-rate point; zone state changes
// contribute a volume point. Writes are non-blocking and batched by the
// underlying client, so a slow or absent InfluxDB never delays a command.
//
// The integration is optional: when disabled in config the service runs
// without it and Connect returns ErrDisabled.
package influxdb
