// Package daemonctl holds client-side helpers shared by CLI commands: bus
// connections that map a missing socket to a sentinel error, the status
// snapshot with its offline fallback to the state database, and pid file
// lookups.
package daemonctl
