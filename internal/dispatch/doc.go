// Package dispatch turns one decoded request into exactly one response
// envelope.
//
// The dispatcher resolves the command by exact name in the registry and
// selects the execution path from the command's class:
//   - read_only runs inline on the calling network goroutine
//   - mutating and long_running run on the host main loop through the bridge
//
// Every failure becomes an error envelope: unknown names ("Unknown command:
// <name>"), handler errors and panics, bridge timeouts, and results that
// cannot be encoded. Nothing is invoked for an unknown name.
//
// Each dispatch gets a uuid correlation id. The outcome is logged with its
// duration, written to the optional journal and published on the optional
// events hub as "command.completed".
package dispatch
