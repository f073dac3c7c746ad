// Package power defines the vocabulary shared by every dynpower component:
// power sources, load levels, profiles, override modes, hysteresis thresholds,
// and the decision and state records that flow between the arbitration engine,
// the state publisher, and the bus.
//
// The types here carry no behaviour beyond parsing, normalization, and
// clamping. Keeping them dependency-free lets the sensors, resolver, engine,
// and IPC layers agree on one representation without import cycles.
package power
