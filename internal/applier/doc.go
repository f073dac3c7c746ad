// Package applier changes the machine's CPU power profile.
//
// Three backends satisfy the Applier interface: powerprofilesctl (the
// default, talking to power-profiles-daemon through its CLI), a direct
// writer for the ACPI platform_profile sysfs attribute, and an in-memory
// noop used for dry runs. Every backend treats a request for the already
// active profile as a successful no-op, and each exposes Active so callers
// can confirm an apply by reading the state back.
//
// EPPWriter adjusts the per-CPU energy performance preference after a
// profile change. It is a secondary knob: failures are reported to the
// caller for logging but never fail the profile apply.
package applier
