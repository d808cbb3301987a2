// Package channel is the notification surface errors are reported to.
//
// Channel covers the message lifecycle (post, edit, fetch, delete) and
// Responder answers a user action, either privately or with a silent
// acknowledgement. Client implements both against a Discord webhook and the
// interaction callback API; MemoryChannel implements both in process for
// tests and dry runs.
//
// Delete is idempotent on every implementation: removing a message that is
// already gone returns nil.
package channel
