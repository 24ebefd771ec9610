// Package transport implements the ODO message transport: connection
// lifecycle, host resolution, and byte-exact framed send/receive over plain
// TCP or TLS streams.
//
// Every message on the wire is a textual header block (newline-terminated
// lines, blank separator line) followed by exactly Content-Length body bytes.
// Header construction and parsing live in pkg/wire; this package owns the
// sockets and the framing discipline: bounded header accumulation, exact
// body reads with partial-read retry, and fail-fast short writes.
//
// A Conn is owned by exactly one onboarding session and must be closed
// exactly once; Close is safe to call in any state.
package transport
