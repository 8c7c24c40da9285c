package imap

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestTagFormat(t *testing.T) {
	p := newPipeline(&bytes.Buffer{}, "test")
	for i := 0; i < 100; i++ {
		tag := p.nextTag()
		if !strings.HasPrefix(tag, "c") {
			t.Fatalf("tag %q lacks prefix", tag)
		}
		for _, ch := range tag[1:] {
			if !((ch >= '0' && ch <= '9') || (ch >= 'A' && ch <= 'Z')) {
				t.Fatalf("tag contains invalid character %q in %q", string(ch), tag)
			}
		}
	}
}

func TestTagUniqueness(t *testing.T) {
	p := newPipeline(&bytes.Buffer{}, "test")
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		tag := p.nextTag()
		if _, ok := seen[tag]; ok {
			t.Fatalf("duplicate tag generated: %q", tag)
		}
		seen[tag] = struct{}{}
	}
}

func TestEnqueueWritesTaggedLine(t *testing.T) {
	buf := &bytes.Buffer{}
	p := newPipeline(buf, "test")

	pc, err := p.enqueue("NOOP", nil)
	if err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	want := pc.tag + " NOOP\r\n"
	if buf.String() != want {
		t.Errorf("wire = %q, want %q", buf.String(), want)
	}
	if pc.verb != "NOOP" {
		t.Errorf("verb = %q, want NOOP", pc.verb)
	}
	if p.outstanding() != 1 {
		t.Errorf("outstanding = %d, want 1", p.outstanding())
	}
}

func TestResolveMatchesByTag(t *testing.T) {
	p := newPipeline(&bytes.Buffer{}, "test")
	a, _ := p.enqueue("NOOP", nil)
	b, _ := p.enqueue(`UID SEARCH UNSEEN`, nil)

	// completions arrive out of submission order
	if err := p.resolve(&respLine{Kind: respTagged, Tag: b.tag, Status: "NO", Text: "nope"}); err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if err := p.resolve(&respLine{Kind: respTagged, Tag: a.tag, Status: "OK"}); err != nil {
		t.Fatalf("resolve error: %v", err)
	}

	if err := <-a.done; err != nil {
		t.Errorf("first command error = %v, want nil", err)
	}
	var se *ServerError
	if err := <-b.done; !errors.As(err, &se) {
		t.Fatalf("second command error type %T, want *ServerError", err)
	} else if se.Status != "NO" || se.Cmd != "UID SEARCH" || se.Text != "nope" {
		t.Errorf("unexpected server error %+v", se)
	}
	if p.outstanding() != 0 {
		t.Errorf("outstanding = %d, want 0", p.outstanding())
	}
}

func TestResolveUnknownTagIsProtocolError(t *testing.T) {
	p := newPipeline(&bytes.Buffer{}, "test")
	err := p.resolve(&respLine{Kind: respTagged, Tag: "c99", Status: "OK", Raw: "c99 OK"})
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("resolve unknown tag error type %T, want *ProtocolError", err)
	}
}

func TestCancelTombstonesTag(t *testing.T) {
	p := newPipeline(&bytes.Buffer{}, "test")
	pc, _ := p.enqueue("NOOP", nil)

	if !p.cancel(pc.tag) {
		t.Fatal("cancel returned false for pending tag")
	}
	var ce *CancelledError
	if err := <-pc.done; !errors.As(err, &ce) {
		t.Fatalf("cancelled command error type %T, want *CancelledError", err)
	}
	if p.cancel(pc.tag) {
		t.Error("cancel returned true for already-cancelled tag")
	}

	// the late tagged response for the cancelled tag is dropped, not fatal
	if err := p.resolve(&respLine{Kind: respTagged, Tag: pc.tag, Status: "OK"}); err != nil {
		t.Errorf("resolve of cancelled tag error = %v, want nil", err)
	}
	// a second response for the same tag no longer has a tombstone
	if err := p.resolve(&respLine{Kind: respTagged, Tag: pc.tag, Status: "OK"}); err == nil {
		t.Error("resolve after tombstone consumed error = nil, want error")
	}
}

func TestFailAllResolvesEverythingWithSameError(t *testing.T) {
	p := newPipeline(&bytes.Buffer{}, "test")
	cmds := make([]*pendingCommand, 3)
	for i := range cmds {
		cmds[i], _ = p.enqueue("NOOP", nil)
	}

	boom := protocolErrorf("", "stream broke")
	p.failAll(boom)

	for i, pc := range cmds {
		if err := <-pc.done; !errors.Is(err, boom) {
			t.Errorf("command %d error = %v, want %v", i, err, boom)
		}
	}
	if _, err := p.enqueue("NOOP", nil); !errors.Is(err, boom) {
		t.Errorf("enqueue after failAll error = %v, want %v", err, boom)
	}
}

func TestOfferUntaggedFIFO(t *testing.T) {
	p := newPipeline(&bytes.Buffer{}, "test")

	var got []string
	first, _ := p.enqueue("UID SEARCH UNSEEN", func(l *respLine) bool {
		if l.Keyword == "SEARCH" {
			got = append(got, "first")
			return true
		}
		return false
	})
	_, _ = p.enqueue("NOOP", func(l *respLine) bool {
		got = append(got, "second")
		return true
	})

	// the oldest interested command claims the line
	if !p.offerUntagged(&respLine{Kind: respUntagged, Keyword: "SEARCH", Text: "1 2"}) {
		t.Fatal("offerUntagged not claimed")
	}
	if len(got) != 1 || got[0] != "first" {
		t.Fatalf("claim order = %v, want [first]", got)
	}

	// lines the first collector declines fall through to the next
	if !p.offerUntagged(&respLine{Kind: respUntagged, Keyword: "FLAGS", Text: "()"}) {
		t.Fatal("offerUntagged not claimed by second collector")
	}
	if len(got) != 2 || got[1] != "second" {
		t.Fatalf("claim order = %v, want [first second]", got)
	}

	// resolved commands no longer receive offers
	_ = p.resolve(&respLine{Kind: respTagged, Tag: first.tag, Status: "OK"})
	<-first.done
	got = nil
	p.offerUntagged(&respLine{Kind: respUntagged, Keyword: "SEARCH", Text: "3"})
	if len(got) != 1 || got[0] != "second" {
		t.Fatalf("claim order after resolve = %v, want [second]", got)
	}
}

func TestCommandVerb(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"NOOP", "NOOP"},
		{`LOGIN "u" "p"`, "LOGIN"},
		{"UID SEARCH UNSEEN", "UID SEARCH"},
		{"uid fetch 1:* ALL", "UID FETCH"},
	}
	for _, tt := range tests {
		if got := commandVerb(tt.text); got != tt.want {
			t.Errorf("commandVerb(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
