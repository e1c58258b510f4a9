// Package script parses and runs authored quest logic: Conditions are boolean
// tests over game state and Microscripts are state mutations, optionally
// deferred to a Scheduler.
//
// Flag, NoFlag, Variable, Quest and Exec nodes are handled natively. Every
// other kind, including extension kinds registered with a Parser, is claimed
// by a resolver from a Registry.
package script
