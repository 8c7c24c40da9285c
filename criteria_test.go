package imap

import (
	"errors"
	"testing"
	"time"
)

func TestCompile(t *testing.T) {
	feb1994 := time.Date(1994, time.February, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		criteria []Criterion
		want     string
	}{
		{
			name:     "string match with flag",
			criteria: []Criterion{Match("FROM", "a@b.com"), Flag("UNSEEN")},
			want:     `FROM "a@b.com" UNSEEN`,
		},
		{
			name:     "flag only",
			criteria: []Criterion{Flag("deleted")},
			want:     "DELETED",
		},
		{
			name:     "header",
			criteria: []Criterion{Header("Message-ID", "<x@y>")},
			want:     `HEADER "Message-ID" "<x@y>"`,
		},
		{
			name:     "date drops time of day",
			criteria: []Criterion{Since(feb1994)},
			want:     "SINCE 1-Feb-1994",
		},
		{
			name:     "sent date",
			criteria: []Criterion{SentBefore(feb1994)},
			want:     "SENTBEFORE 1-Feb-1994",
		},
		{
			name:     "size",
			criteria: []Criterion{Larger(50000)},
			want:     "LARGER 50000",
		},
		{
			name:     "uid set",
			criteria: []Criterion{UIDSet("1:5,9")},
			want:     "UID 1:5,9",
		},
		{
			name:     "sequence set",
			criteria: []Criterion{SeqSet("2:4")},
			want:     "2:4",
		},
		{
			name:     "not",
			criteria: []Criterion{Not(Flag("SEEN"))},
			want:     "NOT SEEN",
		},
		{
			name:     "or",
			criteria: []Criterion{Or(Flag("SEEN"), Flag("FLAGGED"))},
			want:     "OR SEEN FLAGGED",
		},
		{
			name:     "or with compound operand",
			criteria: []Criterion{Or(Not(Flag("SEEN")), Match("TO", "c@d.org"))},
			want:     `OR (NOT SEEN) TO "c@d.org"`,
		},
		{
			name:     "not of or",
			criteria: []Criterion{Not(Or(Flag("SEEN"), Flag("DRAFT")))},
			want:     "NOT (OR SEEN DRAFT)",
		},
		{
			name:     "quote escaping",
			criteria: []Criterion{Match("SUBJECT", `say "hi"`)},
			want:     `SUBJECT "say \"hi\""`,
		},
		{
			name:     "non-ascii value becomes a literal",
			criteria: []Criterion{Match("SUBJECT", "тест")},
			want:     "SUBJECT {8}\r\nтест",
		},
		{
			name:     "gmail raw query",
			criteria: []Criterion{GmailRaw("has:attachment in:unread")},
			want:     `X-GM-RAW "has:attachment in:unread"`,
		},
		{
			name:     "gmail raw key without value",
			criteria: []Criterion{Raw("ALL", "")},
			want:     "ALL",
		},
		{
			name:     "criteria sequence is ANDed by joining",
			criteria: []Criterion{Flag("UNSEEN"), Since(feb1994), Smaller(1024)},
			want:     "UNSEEN SINCE 1-Feb-1994 SMALLER 1024",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compile(tt.criteria)
			if err != nil {
				t.Fatalf("Compile error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Compile = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompileValidation(t *testing.T) {
	tests := []struct {
		name     string
		criteria []Criterion
	}{
		{"empty sequence", nil},
		{"zero criterion", []Criterion{{}}},
		{"flag without name", []Criterion{Flag("")}},
		{"date without value", []Criterion{{kind: critDate, key: "SINCE"}}},
		{"negative size", []Criterion{Larger(-1)}},
		{"empty set", []Criterion{UIDSet("")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.criteria)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Compile error type %T (%v), want *ValidationError", err, err)
			}
		})
	}
}

func TestCompileLongValueBecomesLiteral(t *testing.T) {
	long := make([]byte, LiteralThreshold+1)
	for i := range long {
		long[i] = 'a'
	}
	got, err := Compile([]Criterion{Match("BODY", string(long))})
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	want := "BODY " + MakeIMAPLiteral(string(long))
	if got != want {
		t.Errorf("Compile = %q, want %q", got, want)
	}
}
