// Package matrix implements the video matrix switcher protocol family.
//
// The switcher speaks a terse ASCII protocol: a routing command is
// "{input}X{output}." (1-based channels) and replies are free-form ASCII
// that may contain an OK token, an ERR token, a bare echo of the command,
// or nothing at all before the socket closes. Classification is therefore
// a small ordered rule list over the accumulated bytes, unit-testable
// without any socket I/O.
//
// # Key Responsibilities
//
//   - Encode routing commands for TCP (line-terminated) and UDP transports
//   - Classify raw response bytes into accept/reject/pending verdicts
//   - Drive a full input×output verification sweep with inter-command
//     pacing, producing a per-pair report and batch summary
//
// # The echo-length heuristic
//
// Some switcher firmware acknowledges a command only by echoing it back,
// without a status word. When enabled, a response that grows a configurable
// margin beyond the echoed command counts as an implicit acknowledgement.
// This is a per-family policy, not universal truth: it can mask genuine
// partial failures, so families with explicit replies keep it disabled.
//
// # Thread Safety
//
// Classifier is stateless. Orchestrator is safe for concurrent use, though
// sweeps against the same endpoint serialise on the connection's queue.
package matrix
