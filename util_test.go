package imap

import (
	"testing"
)

func TestMakeIMAPLiteral(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"test", "{4}\r\ntest"},
		{"тест", "{8}\r\nтест"},
		{"测试", "{6}\r\n测试"},
		{"😀👍", "{8}\r\n😀👍"},
		{"Prüfung", "{8}\r\nPrüfung"},
		{"", "{0}\r\n"},
	}

	for _, test := range tests {
		got := MakeIMAPLiteral(test.input)
		if got != test.expected {
			t.Errorf("MakeIMAPLiteral(%q) = %q, want %q", test.input, got, test.expected)
		}
	}
}

func TestNeedsLiteral(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"plain", false},
		{"with spaces and 'quotes'", false},
		{"", false},
		{"тест", true},
		{"tab\there", true},
		{"newline\n", true},
		{string(make([]byte, LiteralThreshold+1)), true},
	}

	for _, tt := range tests {
		if got := needsLiteral(tt.input); got != tt.want {
			t.Errorf("needsLiteral(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestEncodeAstring(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"a@b.com", `"a@b.com"`},
		{`say "hi"`, `"say \"hi\""`},
		{"тест", "{8}\r\nтест"},
	}

	for _, tt := range tests {
		if got := encodeAstring(tt.input); got != tt.want {
			t.Errorf("encodeAstring(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDropNl(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"line\r\n", "line"},
		{"line\n", "line"},
		{"line", "line"},
		{"", ""},
		{"\r\n", ""},
	}

	for _, tt := range tests {
		if got := string(dropNl([]byte(tt.input))); got != tt.want {
			t.Errorf("dropNl(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
