package imap

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// drip returns one byte per Read call, forcing every line and literal to be
// reassembled across chunk boundaries.
type drip struct {
	r io.Reader
}

func (d drip) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return d.r.Read(p)
}

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    respLine
		wantErr bool
	}{
		{
			name: "tagged OK",
			raw:  "c1 OK LOGIN completed",
			want: respLine{Kind: respTagged, Tag: "c1", Status: "OK", Text: "LOGIN completed"},
		},
		{
			name: "tagged NO",
			raw:  "c2 NO [AUTHENTICATIONFAILED] nope",
			want: respLine{Kind: respTagged, Tag: "c2", Status: "NO", Text: "[AUTHENTICATIONFAILED] nope"},
		},
		{
			name: "continuation",
			raw:  "+ idling",
			want: respLine{Kind: respContinuation, Text: "idling"},
		},
		{
			name: "bare continuation",
			raw:  "+",
			want: respLine{Kind: respContinuation},
		},
		{
			name: "untagged numeric",
			raw:  "* 23 EXISTS",
			want: respLine{Kind: respUntaggedNum, Num: 23, Keyword: "EXISTS"},
		},
		{
			name: "untagged numeric with payload",
			raw:  "* 4 FETCH (UID 8 FLAGS ())",
			want: respLine{Kind: respUntaggedNum, Num: 4, Keyword: "FETCH", Text: "(UID 8 FLAGS ())"},
		},
		{
			name: "untagged status",
			raw:  "* OK [UIDVALIDITY 857529045] UIDs valid",
			want: respLine{Kind: respUntagged, Status: "OK", Text: "[UIDVALIDITY 857529045] UIDs valid"},
		},
		{
			name: "untagged keyword",
			raw:  "* SEARCH 101 102",
			want: respLine{Kind: respUntagged, Keyword: "SEARCH", Text: "101 102"},
		},
		{
			name: "untagged BYE",
			raw:  "* BYE shutting down",
			want: respLine{Kind: respUntagged, Status: "BYE", Text: "shutting down"},
		},
		{name: "empty line", raw: "", wantErr: true},
		{name: "lone word", raw: "garbage", wantErr: true},
		{name: "numeric without keyword", raw: "* 23", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := classifyLine(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("classifyLine(%q) error = nil, want error", tt.raw)
				}
				var pe *ProtocolError
				if !errors.As(err, &pe) {
					t.Errorf("classifyLine(%q) error type %T, want *ProtocolError", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("classifyLine(%q) error = %v", tt.raw, err)
			}
			tt.want.Raw = tt.raw
			if *got != tt.want {
				t.Errorf("classifyLine(%q)\n got %+v\nwant %+v", tt.raw, *got, tt.want)
			}
		})
	}
}

func TestReadWireLineLiteral(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain line",
			input: "* OK ready\r\n",
			want:  "* OK ready",
		},
		{
			name:  "single literal",
			input: "* 1 FETCH (BODY[TEXT] {5}\r\nhello)\r\n",
			want:  "* 1 FETCH (BODY[TEXT] {5}\r\nhello)",
		},
		{
			name:  "empty literal",
			input: "* 1 FETCH (BODY[TEXT] {0}\r\n)\r\n",
			want:  "* 1 FETCH (BODY[TEXT] {0}\r\n)",
		},
		{
			name:  "literal containing CRLF",
			input: "* 1 FETCH (BODY[] {12}\r\nline1\r\nline2)\r\n",
			want:  "* 1 FETCH (BODY[] {12}\r\nline1\r\nline2)",
		},
		{
			name:  "two literals in one line",
			input: "* 1 FETCH (BODY[1] {2}\r\nab BODY[2] {2}\r\ncd)\r\n",
			want:  "* 1 FETCH (BODY[1] {2}\r\nab BODY[2] {2}\r\ncd)",
		},
		{
			name:  "brace without digits is not a literal",
			input: "* OK {not a literal}\r\n",
			want:  "* OK {not a literal}",
		},
		{
			name:  "literal content ending in a brace count",
			input: "* LIST () \"/\" {7}\r\nabcd{3}\r\n",
			want:  "* LIST () \"/\" {7}\r\nabcd{3}",
		},
		{
			name:  "second literal after content ending in a brace count",
			input: "* 1 FETCH (BODY[1] {4}\r\na{2} BODY[2] {2}\r\nok)\r\n",
			want:  "* 1 FETCH (BODY[1] {4}\r\na{2} BODY[2] {2}\r\nok)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// one byte per read so partial lines and literals cross
			// transport chunk boundaries
			rr := newRespReader(drip{strings.NewReader(tt.input)})
			line, err := rr.readWireLine()
			if err != nil {
				t.Fatalf("readWireLine error: %v", err)
			}
			if got := string(dropNl(line)); got != tt.want {
				t.Errorf("readWireLine = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRespReaderNextSequence(t *testing.T) {
	input := "* OK ready\r\n* 3 EXISTS\r\nc1 OK done\r\n"
	rr := newRespReader(strings.NewReader(input))

	l1, err := rr.next()
	if err != nil || l1.Kind != respUntagged || l1.Status != "OK" {
		t.Fatalf("first line = %+v, %v", l1, err)
	}
	l2, err := rr.next()
	if err != nil || l2.Kind != respUntaggedNum || l2.Num != 3 || l2.Keyword != "EXISTS" {
		t.Fatalf("second line = %+v, %v", l2, err)
	}
	l3, err := rr.next()
	if err != nil || l3.Kind != respTagged || l3.Tag != "c1" {
		t.Fatalf("third line = %+v, %v", l3, err)
	}
	if _, err := rr.next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

// A mailbox name whose literal bytes end in "{n}" must not swallow the
// following response as literal data.
func TestRespReaderLiteralTailIsNotAnnouncement(t *testing.T) {
	input := "* LIST () \"/\" {7}\r\nabcd{3}\r\n* 5 EXISTS\r\n"
	rr := newRespReader(drip{strings.NewReader(input)})

	l1, err := rr.next()
	if err != nil {
		t.Fatalf("first line error: %v", err)
	}
	if l1.Keyword != "LIST" || !strings.HasSuffix(l1.Raw, "abcd{3}") {
		t.Fatalf("first line = %+v", l1)
	}
	l2, err := rr.next()
	if err != nil || l2.Kind != respUntaggedNum || l2.Num != 5 || l2.Keyword != "EXISTS" {
		t.Fatalf("second line = %+v, %v", l2, err)
	}
}

func TestRespCode(t *testing.T) {
	tests := []struct {
		text     string
		wantCode string
		wantArgs string
	}{
		{"[UIDVALIDITY 857529045] UIDs valid", "UIDVALIDITY", "857529045"},
		{"[ALERT] disk is full", "ALERT", ""},
		{"[CAPABILITY IMAP4rev1 IDLE] ready", "CAPABILITY", "IMAP4rev1 IDLE"},
		{"no code here", "", ""},
		{"[unclosed", "", ""},
	}

	for _, tt := range tests {
		code, args := respCode(tt.text)
		if code != tt.wantCode || args != tt.wantArgs {
			t.Errorf("respCode(%q) = %q, %q; want %q, %q", tt.text, code, args, tt.wantCode, tt.wantArgs)
		}
	}
}
