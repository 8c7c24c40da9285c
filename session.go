package imap

import (
	"strings"
	"sync"
)

// ConnState is the connection's lifecycle position. Transitions only move
// forward through authentication and selection; any state can fall to
// StateDisconnected, but only through the client's teardown path, which
// emits the end/close events.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnected
	StateAuthenticated
	StateSelected
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateSelected:
		return "selected"
	}
	return "unknown"
}

// Mailbox is the snapshot of the currently selected mailbox. It is owned by
// the connection and replaced wholesale on each select; callers get copies.
type Mailbox struct {
	Name           string
	Delimiter      string
	Flags          []string
	PermanentFlags []string
	ReadOnly       bool

	// UIDValidity is the epoch for UIDs in this mailbox; when it changes,
	// every previously cached UID for the mailbox is invalid.
	UIDValidity uint32
	UIDNext     uint32

	Exists uint32
	Recent uint32
	Unseen uint32
}

// Namespace is one entry of the server's NAMESPACE response.
type Namespace struct {
	Prefix    string
	Delimiter string
}

// session tracks authenticated/selected state, the capability set, and the
// authoritative sequence-number-to-UID table for the selected mailbox.
// Untagged updates stream in from the read loop independent of whatever
// command is pending, so everything is guarded by one mutex.
type session struct {
	mu sync.Mutex

	state      ConnState
	caps       map[string]bool
	namespaces []Namespace

	mailbox *Mailbox

	// seqToUID[i] is the UID of sequence number i+1, or 0 when unknown.
	// This is the single authoritative table; it is never copied into
	// caller-held caches.
	seqToUID []uint32
}

func newSession() *session {
	return &session{caps: make(map[string]bool)}
}

func (s *session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) setState(st ConnState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// setCaps replaces the capability set from a CAPABILITY response or code.
func (s *session) setCaps(words []string) {
	s.mu.Lock()
	s.caps = make(map[string]bool, len(words))
	for _, w := range words {
		if w != "" {
			s.caps[strings.ToUpper(w)] = true
		}
	}
	s.mu.Unlock()
}

func (s *session) hasCap(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps[strings.ToUpper(name)]
}

func (s *session) capabilities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.caps))
	for c := range s.caps {
		out = append(out, c)
	}
	return out
}

func (s *session) setNamespaces(ns []Namespace) {
	s.mu.Lock()
	s.namespaces = ns
	s.mu.Unlock()
}

func (s *session) namespaceList() []Namespace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Namespace(nil), s.namespaces...)
}

// resetMailbox installs a fresh mailbox snapshot after SELECT/EXAMINE and
// rebuilds the sequence table with unknown UIDs.
func (s *session) resetMailbox(mb *Mailbox) {
	s.mu.Lock()
	s.mailbox = mb
	s.seqToUID = make([]uint32, mb.Exists)
	s.state = StateSelected
	s.mu.Unlock()
}

// closeMailbox drops the selected mailbox on CLOSE, returning to
// authenticated state.
func (s *session) closeMailbox() {
	s.mu.Lock()
	s.mailbox = nil
	s.seqToUID = nil
	if s.state == StateSelected {
		s.state = StateAuthenticated
	}
	s.mu.Unlock()
}

// Mailbox returns a copy of the selected mailbox snapshot, or nil.
func (s *session) currentMailbox() *Mailbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mailbox == nil {
		return nil
	}
	mb := *s.mailbox
	return &mb
}

func (s *session) mailboxName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mailbox == nil {
		return ""
	}
	return s.mailbox.Name
}

// applyExists handles "* n EXISTS": the mailbox now holds n messages. The
// sequence table grows with unknown UIDs for the new tail.
func (s *session) applyExists(n uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mailbox == nil {
		return
	}
	s.mailbox.Exists = n
	for uint32(len(s.seqToUID)) < n {
		s.seqToUID = append(s.seqToUID, 0)
	}
	if uint32(len(s.seqToUID)) > n {
		s.seqToUID = s.seqToUID[:n]
	}
}

func (s *session) applyRecent(n uint32) {
	s.mu.Lock()
	if s.mailbox != nil {
		s.mailbox.Recent = n
	}
	s.mu.Unlock()
}

// applyExpunge handles "* seq EXPUNGE": the message at seq is gone and every
// sequence number above it shifts down by one. Removing the table entry
// performs the renumbering in one step; UIDs are untouched. Returns the UID
// of the expunged message, or 0 if it was never learned.
func (s *session) applyExpunge(seq uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mailbox == nil || seq == 0 || seq > uint32(len(s.seqToUID)) {
		return 0
	}
	uid := s.seqToUID[seq-1]
	s.seqToUID = append(s.seqToUID[:seq-1], s.seqToUID[seq:]...)
	if s.mailbox.Exists > 0 {
		s.mailbox.Exists--
	}
	return uid
}

// noteUID records a seq→UID mapping learned from a FETCH response.
func (s *session) noteUID(seq, uid uint32) {
	s.mu.Lock()
	if seq != 0 && seq <= uint32(len(s.seqToUID)) {
		s.seqToUID[seq-1] = uid
	}
	s.mu.Unlock()
}

// uidForSeq returns the UID cached for a sequence number, or 0.
func (s *session) uidForSeq(seq uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq == 0 || seq > uint32(len(s.seqToUID)) {
		return 0
	}
	return s.seqToUID[seq-1]
}

// applyUIDValidity handles a UIDVALIDITY change mid-session: every cached
// UID is from a dead epoch, so the table is wiped. Reports whether the epoch
// actually changed.
func (s *session) applyUIDValidity(v uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mailbox == nil || s.mailbox.UIDValidity == v {
		return false
	}
	s.mailbox.UIDValidity = v
	for i := range s.seqToUID {
		s.seqToUID[i] = 0
	}
	return true
}
