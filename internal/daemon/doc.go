// Package daemon runs the privileged dynpowerd arbitration loop.
//
// A single goroutine owns the arbitration context. Each cycle samples the
// sensors, expires forwarded process overrides that sessions stopped
// refreshing, resolves the remaining ones, and hands the inputs to the
// arbiter engine, which applies and publishes the result. Confirmed profile
// changes are followed by the optional EPP write and persisted to the state
// store so `dynpower status` can report the last known state while the
// daemon is down.
//
// Bus mutations never touch the context directly: they are queued to the
// loop, applied between cycles, followed by an immediate cycle, and only then
// answered. Queries read the state publisher and never wait on the loop.
// Configuration reloads are swapped in the same way.
//
// flock-based locking prevents two daemons from arbitrating at once.
package daemon
