package imap

import "fmt"

// ProtocolError reports malformed wire data from the server. It is fatal:
// the connection is torn down and every outstanding command fails with it.
type ProtocolError struct {
	Line   string
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("imap: protocol error: %s", e.Reason)
	}
	return fmt.Sprintf("imap: protocol error: %s in %q", e.Reason, e.Line)
}

func protocolErrorf(line string, format string, args ...any) *ProtocolError {
	return &ProtocolError{Line: line, Reason: fmt.Sprintf(format, args...)}
}

// ServerError is a tagged NO or BAD completion. It is local to the one
// command it resolves; the pipeline keeps running.
type ServerError struct {
	Status string // "NO" or "BAD"
	Text   string // server's human-readable text
	Cmd    string // command verb that failed
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("imap: %s failed (%s): %s", e.Cmd, e.Status, e.Text)
}

// TimeoutError reports a connection, authentication, or command deadline
// firing. It is fatal to the connection.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("imap: %s timed out", e.Op)
}

// ValidationError reports malformed caller input (criteria, options,
// capability-gated commands against servers lacking the capability). It is
// raised before any bytes are written; the connection is unaffected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "imap: " + e.Reason
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// CancelledError resolves a pending command withdrawn by the caller. The
// command may already be on the wire; its late tagged response is dropped.
type CancelledError struct {
	Tag string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("imap: command %s cancelled", e.Tag)
}
