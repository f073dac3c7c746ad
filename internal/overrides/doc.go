// Package overrides matches configured process override rules against the
// set of running processes and picks the winning rule.
//
// The winner is the matched rule with the highest priority. Ties go to the
// rule listed first, so resolution is deterministic across runs. Resolve also
// returns every match in rank order for the session bus and the CLI.
package overrides
