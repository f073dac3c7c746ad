// Package logs tails the per-run log files written by dynpowerd and the
// session process.
//
// Each run writes a fresh timestamped file and repoints the stable
// `<name>.log` entry at it, so follow mode reopens the pointer whenever the
// underlying file changes or shrinks. Memory use stays bounded by the number
// of lines requested.
package logs
