// Package sensors samples the inputs each arbitration cycle depends on: the
// active power source, battery charge, and the one-minute load average.
//
// Reader walks the power_supply class in sysfs and reads /proc/loadavg under
// configurable roots so tests can build fake trees with t.TempDir. Missing or
// unreadable files degrade to PowerSource Unknown and a zero load instead of
// surfacing errors; the next cycle simply samples again.
//
// UeventMonitor listens for power_supply udev events over netlink and wakes
// the cycle loop early when a charger is plugged in or removed. A netlink
// connection failure is logged and the loop falls back to its regular tick.
package sensors
