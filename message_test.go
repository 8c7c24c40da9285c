package imap

import (
	"sort"
	"strings"
	"testing"
)

func TestFlagsLists(t *testing.T) {
	add, remove := Flags{
		Seen:     FlagAdd,
		Deleted:  FlagRemove,
		Answered: FlagAdd,
		Keywords: map[string]bool{"$Important": true, "Old": false},
	}.lists()

	sort.Strings(add)
	sort.Strings(remove)
	if strings.Join(add, " ") != `$Important \Answered \Seen` {
		t.Errorf("add = %v", add)
	}
	if strings.Join(remove, " ") != `Old \Deleted` {
		t.Errorf("remove = %v", remove)
	}

	add, remove = Flags{}.lists()
	if len(add) != 0 || len(remove) != 0 {
		t.Errorf("zero Flags produced %v / %v", add, remove)
	}
}

func TestUIDSetString(t *testing.T) {
	tests := []struct {
		uids []uint32
		want string
	}{
		{nil, "1:*"},
		{[]uint32{7}, "7"},
		{[]uint32{1, 2, 9}, "1,2,9"},
		{[]uint32{0, 5, 0, 6}, "5,6"},
	}
	for _, tt := range tests {
		if got := uidSetString(tt.uids); got != tt.want {
			t.Errorf("uidSetString(%v) = %q, want %q", tt.uids, got, tt.want)
		}
	}
}

func TestEmailAddressesString(t *testing.T) {
	if got := (EmailAddresses{"a@b.com": ""}).String(); got != "a@b.com" {
		t.Errorf("bare address = %q", got)
	}
	if got := (EmailAddresses{"a@b.com": "Alice"}).String(); got != "Alice <a@b.com>" {
		t.Errorf("named address = %q", got)
	}
	if got := (EmailAddresses{"a@b.com": "Lastname, First"}).String(); got != `"Lastname, First" <a@b.com>` {
		t.Errorf("comma name = %q", got)
	}
}

func TestEmailStringTruncatesBody(t *testing.T) {
	e := Email{
		Subject: "hi",
		Text:    strings.Repeat("x", 100),
	}
	s := e.String()
	if !strings.Contains(s, "Subject: hi") {
		t.Errorf("missing subject in %q", s)
	}
	if !strings.Contains(s, strings.Repeat("x", 20)+"...") {
		t.Errorf("long text not truncated in %q", s)
	}
	if strings.Contains(s, strings.Repeat("x", 21)) {
		t.Errorf("text not truncated to 20 chars in %q", s)
	}
	if !strings.Contains(s, "100 B") {
		t.Errorf("missing humanized size in %q", s)
	}
}
