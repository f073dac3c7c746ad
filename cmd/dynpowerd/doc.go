// Package main is the dynpowerd entrypoint. It refuses to start unless run
// as root, then hands off to daemonrun.
package main
