// Package daemonrun wires configuration, logging, sensors, the applier, the
// bus servers, and the metrics endpoint into a running dynpowerd daemon or
// per-user session process.
package daemonrun
