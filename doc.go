// Package imap implements an IMAP4rev1 (RFC 3501) client protocol engine.
//
// The engine is built from a handful of cooperating pieces:
//
//   - A wire reader that turns the server byte stream into classified
//     response lines, reassembling {n} literals across read boundaries
//   - A command pipeline that assigns tags, serializes writes, and matches
//     tagged completions back to their callers (pipelining safe)
//   - A session tracker for connection state, capabilities, and the
//     selected mailbox, including sequence-number renumbering on EXPUNGE
//   - A search criteria compiler producing RFC 3501 search arguments
//   - An event dispatcher for server-pushed updates (new mail, expunge,
//     flag changes, alerts) that never blocks the pipeline
//
// TLS setup is a collaborator, not part of the engine: NewClient accepts any
// Transport, and Dial provides the usual TLS-with-retry convenience. The
// Gmail extensions (X-GM-RAW, X-GM-THRID, X-GM-MSGID, X-GM-LABELS) are
// available on servers advertising X-GM-EXT-1.
package imap
