// Package schedule runs the keep-awake loop: periodic re-assertion of
// configured matrix routes so displays and scalers on the far end never
// drop into standby during service hours.
//
// The loop is deliberately dumb. It re-sends the same switch commands at a
// fixed interval and lets the audit trail record the outcomes; route
// failures are logged and retried on the next tick rather than escalated.
package schedule
