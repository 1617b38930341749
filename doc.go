// Package acarsplit reassembles ACARS log messages from unframed UDP text
// streams and routes them into per-bucket output files.
//
// # Architecture
//
// Decoder front-ends (Jaero instances) emit decoded ACARS log text over UDP
// with no framing: a datagram boundary has no relation to a message
// boundary. The only reliable signal is the timestamp header line
// ("HH:MM:SS DD-MM-YY UTC") that starts every logical message. acarsplit
// accumulates each port's stream in an independent source buffer, cuts
// complete messages between adjacent timestamp headers, and force-flushes
// stale partials on a timer so silence never strands a message forever.
//
// Data flow:
//
//	UDP datagram → input/udp Listener → stream.Source buffer
//	    → stream framing (timestamp headers) → classify strategy
//	    → output/file bucket writer
//
// Components follow the lifecycle contract in the component package
// (Initialize / Start / Stop) and are wired together by the engine package.
// The splitfile package applies the same framing and classification to a
// static log file in one shot.
//
// Packages:
//
//   - config: JSON configuration loading and validation
//   - errors: transient/invalid/fatal error classification
//   - metric: Prometheus registry and metrics HTTP server
//   - component: lifecycle and discovery contracts
//   - stream: per-source buffering, framing, and the timeout sweeper
//   - classify: label/tail/type/keyword classification strategies
//   - input/udp: per-port UDP listeners
//   - output/file: per-bucket append writer
//   - splitfile: one-shot log file splitting
//   - engine: wiring and lifecycle orchestration
package acarsplit
