// Package broadcast is the process-local fan-out layer.
//
// A Bus hands every published event to each open Mailbox. Mailboxes are
// bounded rings: when one is full the oldest event is dropped for that
// mailbox only and the next receive reports a LagError, so publishers never
// wait on a slow session. The Registry owns per-session subscription state
// and decides which delivered events a session actually wants.
package broadcast
