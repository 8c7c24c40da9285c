package imap

import (
	"testing"
)

func TestSessionStateTransitions(t *testing.T) {
	s := newSession()
	if s.State() != StateDisconnected {
		t.Fatalf("initial state = %v, want disconnected", s.State())
	}
	s.setState(StateConnected)
	s.setState(StateAuthenticated)
	s.resetMailbox(&Mailbox{Name: "INBOX", Exists: 2})
	if s.State() != StateSelected {
		t.Fatalf("state after resetMailbox = %v, want selected", s.State())
	}
	s.closeMailbox()
	if s.State() != StateAuthenticated {
		t.Fatalf("state after closeMailbox = %v, want authenticated", s.State())
	}
	if s.currentMailbox() != nil {
		t.Error("mailbox still set after closeMailbox")
	}
}

func TestSessionMailboxSnapshotIsCopied(t *testing.T) {
	s := newSession()
	s.resetMailbox(&Mailbox{Name: "INBOX", Exists: 5})

	mb := s.currentMailbox()
	mb.Exists = 99
	if got := s.currentMailbox().Exists; got != 5 {
		t.Errorf("caller mutation leaked into session: Exists = %d, want 5", got)
	}
}

func TestApplyExistsGrowsAndTruncates(t *testing.T) {
	s := newSession()
	s.resetMailbox(&Mailbox{Name: "INBOX", Exists: 2})
	s.noteUID(1, 101)
	s.noteUID(2, 102)

	s.applyExists(4)
	if got := s.currentMailbox().Exists; got != 4 {
		t.Fatalf("Exists = %d, want 4", got)
	}
	if s.uidForSeq(3) != 0 || s.uidForSeq(4) != 0 {
		t.Error("new tail sequence numbers should have unknown UIDs")
	}
	if s.uidForSeq(1) != 101 {
		t.Error("existing UID mapping lost on grow")
	}

	s.applyExists(1)
	if s.uidForSeq(2) != 0 {
		t.Error("truncated sequence number still resolves")
	}
	if s.uidForSeq(1) != 101 {
		t.Error("surviving UID mapping lost on truncate")
	}
}

func TestApplyExpungeRenumbers(t *testing.T) {
	s := newSession()
	s.resetMailbox(&Mailbox{Name: "INBOX", Exists: 3})
	s.noteUID(1, 101)
	s.noteUID(2, 102)
	s.noteUID(3, 103)

	// expunging seq 2 shifts seq 3 down to 2; UIDs never change
	if uid := s.applyExpunge(2); uid != 102 {
		t.Fatalf("applyExpunge returned uid %d, want 102", uid)
	}
	if got := s.currentMailbox().Exists; got != 2 {
		t.Errorf("Exists = %d, want 2", got)
	}
	if s.uidForSeq(1) != 101 {
		t.Errorf("uidForSeq(1) = %d, want 101", s.uidForSeq(1))
	}
	if s.uidForSeq(2) != 103 {
		t.Errorf("uidForSeq(2) = %d, want 103", s.uidForSeq(2))
	}
	if s.uidForSeq(3) != 0 {
		t.Errorf("uidForSeq(3) = %d, want 0", s.uidForSeq(3))
	}

	// out-of-range expunge is ignored
	if uid := s.applyExpunge(9); uid != 0 {
		t.Errorf("out-of-range applyExpunge returned %d", uid)
	}
	if got := s.currentMailbox().Exists; got != 2 {
		t.Errorf("Exists changed by out-of-range expunge: %d", got)
	}
}

func TestApplyUIDValidityWipesTable(t *testing.T) {
	s := newSession()
	s.resetMailbox(&Mailbox{Name: "INBOX", Exists: 2, UIDValidity: 1000})
	s.noteUID(1, 101)

	if s.applyUIDValidity(1000) {
		t.Error("unchanged epoch reported as changed")
	}
	if s.uidForSeq(1) != 101 {
		t.Error("unchanged epoch wiped the table")
	}

	if !s.applyUIDValidity(2000) {
		t.Fatal("changed epoch not reported")
	}
	if s.uidForSeq(1) != 0 {
		t.Error("stale UID survived an epoch change")
	}
	if got := s.currentMailbox().UIDValidity; got != 2000 {
		t.Errorf("UIDValidity = %d, want 2000", got)
	}
}

func TestCapabilities(t *testing.T) {
	s := newSession()
	s.setCaps([]string{"IMAP4rev1", "idle", "X-GM-EXT-1"})
	if !s.hasCap("IDLE") || !s.hasCap("x-gm-ext-1") {
		t.Error("capability lookup should be case-insensitive")
	}
	if s.hasCap("MOVE") {
		t.Error("unadvertised capability reported present")
	}
	s.setCaps([]string{"IMAP4rev1"})
	if s.hasCap("IDLE") {
		t.Error("capability survived replacement")
	}
}
