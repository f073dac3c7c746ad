// Package ipc carries the two dynpower buses: the privileged daemon's
// "Dynpower" service and the per-session "DynpowerSession" service.
//
// Both use JSON-RPC over Unix domain sockets. Request and response DTOs live
// in types.go and keep the wire names stable for the CLI and for sessions
// talking to a daemon from a different release. The servers depend only on
// the DaemonHandler and SessionHandler interfaces, so the daemon and session
// packages can embed a server without an import cycle.
//
// Mode strings are parsed here. An unrecognized mode is answered with
// OK=false and never reaches the arbitration loop. Every client call is
// bounded by a timeout; a timed-out client closes its connection and must be
// redialed, which keeps an unreachable peer from stalling a cycle.
//
// Each accepted connection gets its own rpc.Server bound to the peer's
// SO_PEERCRED identity so the daemon can attribute forwarded process
// overrides to the uid that actually sent them.
package ipc
