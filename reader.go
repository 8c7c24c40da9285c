package imap

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// atom matches a literal byte-count announcement at the end of a line
var atom = regexp.MustCompile(`{\d+}$`)

type respKind uint8

const (
	respTagged       respKind = iota + 1 // "c1 OK done"
	respUntagged                         // "* OK ...", "* SEARCH 1 2", "* CAPABILITY ..."
	respUntaggedNum                      // "* 23 EXISTS", "* 4 FETCH (...)"
	respContinuation                     // "+ idling"
)

// respLine is one classified server response line. Literal sections are
// already reassembled into Text/Raw by the time a line is produced.
type respLine struct {
	Kind    respKind
	Tag     string
	Status  string // OK/NO/BAD for tagged; OK/NO/BAD/BYE/PREAUTH for untagged status lines
	Num     uint32 // numeric prefix of untagged numeric lines
	Keyword string // EXISTS/EXPUNGE/FETCH/RECENT, or SEARCH/CAPABILITY/FLAGS/LIST/STATUS/...
	Text    string // remainder of the line after the classified prefix
	Raw     string // full line without trailing CRLF
}

// respReader turns the transport byte stream into respLines. It is only
// restartable from the start of the stream; a grammar violation leaves it
// unusable and must tear the connection down.
type respReader struct {
	r *bufio.Reader
}

func newRespReader(t io.Reader) *respReader {
	return &respReader{r: bufio.NewReader(t)}
}

// readWireLine reads one logical line, switching into fixed-length
// consumption whenever the segment read so far ends with a {n} literal
// announcement. A literal's bytes never terminate the line and are never
// scanned for announcements themselves, so content that happens to end in
// "{n}" cannot start a phantom literal; only the segment read after each
// literal can announce the next one.
func (rr *respReader) readWireLine() ([]byte, error) {
	line, err := rr.r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	tail := dropNl(line)
	for {
		a := atom.Find(tail)
		if a == nil {
			break
		}
		n, err := strconv.Atoi(string(a[1 : len(a)-1]))
		if err != nil {
			return nil, protocolErrorf(string(dropNl(line)), "bad literal count")
		}

		buf := make([]byte, n)
		if _, err = io.ReadFull(rr.r, buf); err != nil {
			return nil, err
		}
		line = append(line, buf...)

		buf, err = rr.r.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		line = append(line, buf...)
		tail = dropNl(buf)
	}
	return line, nil
}

// next reads and classifies the next response line. I/O errors are returned
// as-is; grammar violations are returned as *ProtocolError. Both are fatal
// to the connection.
func (rr *respReader) next() (*respLine, error) {
	raw, err := rr.readWireLine()
	if err != nil {
		return nil, err
	}
	return classifyLine(string(dropNl(raw)))
}

func isStatusWord(s string) bool {
	switch s {
	case "OK", "NO", "BAD", "BYE", "PREAUTH":
		return true
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// cutField splits off the first space-delimited field.
func cutField(s string) (field, rest string) {
	if i := strings.IndexByte(s, ' '); i != -1 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

func classifyLine(raw string) (*respLine, error) {
	if raw == "" {
		return nil, protocolErrorf(raw, "empty response line")
	}

	l := &respLine{Raw: raw}

	switch {
	case raw == "+" || strings.HasPrefix(raw, "+ "):
		l.Kind = respContinuation
		if len(raw) > 2 {
			l.Text = raw[2:]
		}
		return l, nil

	case strings.HasPrefix(raw, "* "):
		first, rest := cutField(raw[2:])
		switch {
		case isDigits(first):
			n, err := strconv.ParseUint(first, 10, 32)
			if err != nil {
				return nil, protocolErrorf(raw, "bad message number %q", first)
			}
			l.Kind = respUntaggedNum
			l.Num = uint32(n)
			l.Keyword, l.Text = cutField(rest)
			if l.Keyword == "" {
				return nil, protocolErrorf(raw, "numeric response without keyword")
			}
			l.Keyword = strings.ToUpper(l.Keyword)
			return l, nil
		case isStatusWord(strings.ToUpper(first)):
			l.Kind = respUntagged
			l.Status = strings.ToUpper(first)
			l.Text = rest
			return l, nil
		case first != "":
			l.Kind = respUntagged
			l.Keyword = strings.ToUpper(first)
			l.Text = rest
			return l, nil
		}
		return nil, protocolErrorf(raw, "empty untagged response")

	default:
		tag, rest := cutField(raw)
		status, text := cutField(rest)
		status = strings.ToUpper(status)
		if tag == "" || !isStatusWord(status) || status == "BYE" || status == "PREAUTH" {
			return nil, protocolErrorf(raw, "unparseable response line")
		}
		l.Kind = respTagged
		l.Tag = tag
		l.Status = status
		l.Text = text
		return l, nil
	}
}

// respCode extracts a bracketed response code and its arguments from status
// text like "[UIDVALIDITY 857529045] UIDs valid". Returns empty strings when
// no code is present.
func respCode(text string) (code string, args string) {
	if !strings.HasPrefix(text, "[") {
		return "", ""
	}
	end := strings.IndexByte(text, ']')
	if end == -1 {
		return "", ""
	}
	inner := text[1:end]
	code, args = cutField(inner)
	return strings.ToUpper(code), args
}
