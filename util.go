package imap

import "fmt"

// dropNl removes trailing newline characters from a byte slice
func dropNl(b []byte) []byte {
	if len(b) >= 1 && b[len(b)-1] == '\n' {
		if len(b) >= 2 && b[len(b)-2] == '\r' {
			return b[:len(b)-2]
		} else {
			return b[:len(b)-1]
		}
	}
	return b
}

// MakeIMAPLiteral generates IMAP literal syntax for non-ASCII strings.
// It returns a string in the format "{bytecount}\r\ntext" where bytecount
// is the number of bytes (not characters) in the input string.
// Example: MakeIMAPLiteral("тест") returns "{8}\r\nтест"
func MakeIMAPLiteral(s string) string {
	return fmt.Sprintf("{%d}\r\n%s", len([]byte(s)), s)
}

// needsLiteral reports whether a search argument cannot be sent as a quoted
// string and must become a literal: control bytes, non-ASCII, or anything
// longer than LiteralThreshold.
func needsLiteral(s string) bool {
	if len(s) > LiteralThreshold {
		return true
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] >= 0x7f {
			return true
		}
	}
	return false
}

// encodeAstring renders a search/command argument as a quoted string, or as
// a literal when quoting can't represent it.
func encodeAstring(s string) string {
	if needsLiteral(s) {
		return MakeIMAPLiteral(s)
	}
	return `"` + AddSlashes.Replace(s) + `"`
}
