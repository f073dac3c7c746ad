// Package procscan lists the command names of processes owned by one user.
//
// Process override rules are matched against this set, so ownership is
// checked on every /proc entry: a rule never fires because another user on
// the machine happens to run the same program.
package procscan
