// Package control owns the command-and-control connections to AV hardware.
//
// Each physical unit (matrix switcher, audio zone processor) is represented
// by a Conn bound to one Endpoint. A Conn serialises commands: the devices
// speak ad-hoc ASCII line protocols with no request framing, so exactly one
// command may be on the wire per endpoint at a time. Replies are classified
// by a family-specific Classifier fed with the accumulated response bytes.
//
// Connection lifecycle per command (TCP): dial, write, read until the
// classifier reaches a verdict or the timeout fires, close. UDP commands are
// fire-and-forget datagrams. The Conn itself is long-lived and is looked up
// through the Registry by device id.
//
// This layer never retries; retry and backoff policy belongs to callers.
package control
