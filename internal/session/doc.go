// Package session runs the unprivileged per-user loop.
//
// The session owns what only the user's login can see: which processes are
// running under the user's uid and the user's manual override. Each cycle it
// samples the sensors, resolves configured process rules against the scan,
// and forwards the inputs to the daemon over the system bus. It then runs the
// same arbiter engine the daemon runs, but with a mirror applier whose
// read-back is the daemon's published state. The session's predicted
// decision is therefore confirmed against the authoritative one with the
// same bounded retry, and disagreements surface as a failed apply in
// `dynpower status` instead of silently diverging.
//
// Bus failures never stop the loop. Whatever could not be delivered stays
// dirty and is re-sent on the next cycle over a fresh connection.
//
// Power source transitions are published as PowerStateChanged events on the
// session bus and drive the optional panel overdrive command.
package session
