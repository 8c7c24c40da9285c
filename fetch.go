package imap

import (
	"io"
	"mime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// headerDecoder decodes RFC 2047 encoded words in envelope fields, with
// charset conversion for the non-UTF-8 labels older mailers still emit.
var headerDecoder = mime.WordDecoder{
	CharsetReader: func(label string, input io.Reader) (io.Reader, error) {
		return charset.NewReaderLabel(label, input)
	},
}

// Envelope field positions within an ENVELOPE token container.
const (
	eDate uint8 = iota
	eSubject
	eFrom
	eSender
	eReplyTo
	eTo
	eCC
	eBCC
	eInReplyTo
	eMessageID
)

// Address field positions within one envelope address container.
const (
	eaName uint8 = iota
	eaSourceRoute
	eaMailbox
	eaHost
)

// Envelope is the parsed ENVELOPE fetch item.
type Envelope struct {
	Date      time.Time
	Subject   string
	From      EmailAddresses
	Sender    EmailAddresses
	ReplyTo   EmailAddresses
	To        EmailAddresses
	CC        EmailAddresses
	BCC       EmailAddresses
	InReplyTo string
	MessageID string
}

// MessageAttributes is everything one FETCH record carried for a message.
// Bodies holds BODY[section] payloads keyed by section name ("" for the
// whole message, "TEXT", "HEADER", numeric part paths).
type MessageAttributes struct {
	Seq          uint32
	UID          uint32
	Flags        []string
	InternalDate time.Time
	Size         uint64
	Envelope     *Envelope
	Bodies       map[string][]byte

	GmailThreadID  uint64
	GmailMessageID uint64
	GmailLabels    []string
}

// FetchHandler receives streamed FETCH results. For each message, Body is
// called once per requested section, then Attributes once, then End once, in
// that order. Handlers run on the read loop goroutine and must not block on
// other commands of the same connection.
type FetchHandler struct {
	Body       func(seq uint32, section string, data []byte)
	Attributes func(attrs *MessageAttributes)
	End        func(seq uint32)
}

// Fetch requests items for a sequence-number set and streams each resulting
// record through the handler as it arrives.
func (c *Client) Fetch(set string, items []string, h FetchHandler) error {
	return c.fetchWith("FETCH", set, items, h)
}

// UIDFetch is Fetch with a UID set.
func (c *Client) UIDFetch(set string, items []string, h FetchHandler) error {
	return c.fetchWith("UID FETCH", set, items, h)
}

func (c *Client) fetchWith(verb, set string, items []string, h FetchHandler) error {
	if err := c.requireState(StateSelected, verb); err != nil {
		return err
	}
	if set == "" {
		return validationErrorf("%s requires a message set", verb)
	}
	if len(items) == 0 {
		return validationErrorf("%s requires at least one item", verb)
	}

	var parseErr error
	cmd := verb + " " + set + " (" + strings.Join(items, " ") + ")"
	err := c.execute(cmd, func(l *respLine) bool {
		if l.Kind != respUntaggedNum || l.Keyword != "FETCH" {
			return false
		}
		attrs, err := parseMessageAttributes(l.Num, l.Text)
		if err != nil {
			if parseErr == nil {
				parseErr = err
			}
			return true
		}
		streamFetchRecord(attrs, h)
		return true
	})
	if err != nil {
		return err
	}
	return parseErr
}

// streamFetchRecord delivers one record in the body, attributes, end order.
func streamFetchRecord(attrs *MessageAttributes, h FetchHandler) {
	if h.Body != nil {
		for section, data := range attrs.Bodies {
			h.Body(attrs.Seq, section, data)
		}
	}
	if h.Attributes != nil {
		h.Attributes(attrs)
	}
	if h.End != nil {
		h.End(attrs.Seq)
	}
}

// FetchAttributes is UIDFetch collected into a slice, for callers that
// don't need streaming delivery.
func (c *Client) FetchAttributes(set string, items []string) ([]*MessageAttributes, error) {
	var out []*MessageAttributes
	err := c.UIDFetch(set, items, FetchHandler{
		Attributes: func(attrs *MessageAttributes) { out = append(out, attrs) },
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// parseMessageAttributes tokenizes one FETCH record and maps its key/value
// pairs into a MessageAttributes.
func parseMessageAttributes(seq uint32, text string) (*MessageAttributes, error) {
	tks, err := fetchRecordTokens(text)
	if err != nil {
		return nil, err
	}

	attrs := &MessageAttributes{Seq: seq}
	skip := 0
	for i, t := range tks {
		if skip > 0 {
			skip--
			continue
		}
		if err := checkType(t, []TType{TLiteral}, tks, "in root"); err != nil {
			return nil, err
		}
		if i+1 >= len(tks) {
			switch t.Str {
			case "UID", "FLAGS", "INTERNALDATE", "RFC822.SIZE", "ENVELOPE", "X-GM-THRID", "X-GM-MSGID", "X-GM-LABELS":
				return nil, protocolErrorf(text, "missing value after %s", t.Str)
			}
			continue
		}
		switch {
		case t.Str == "UID":
			if err := checkType(tks[i+1], []TType{TNumber}, tks, "after UID"); err != nil {
				return nil, err
			}
			attrs.UID = uint32(tks[i+1].Num)
			skip++
		case t.Str == "FLAGS":
			if err := checkType(tks[i+1], []TType{TContainer}, tks, "after FLAGS"); err != nil {
				return nil, err
			}
			attrs.Flags = tokenStrings(tks[i+1].Tokens)
			skip++
		case t.Str == "INTERNALDATE":
			if err := checkType(tks[i+1], []TType{TQuoted}, tks, "after INTERNALDATE"); err != nil {
				return nil, err
			}
			d, err := time.Parse(TimeFormat, tks[i+1].Str)
			if err != nil {
				return nil, err
			}
			attrs.InternalDate = d.UTC()
			skip++
		case t.Str == "RFC822.SIZE":
			if err := checkType(tks[i+1], []TType{TNumber}, tks, "after RFC822.SIZE"); err != nil {
				return nil, err
			}
			attrs.Size = uint64(tks[i+1].Num)
			skip++
		case t.Str == "ENVELOPE":
			if err := checkType(tks[i+1], []TType{TContainer}, tks, "after ENVELOPE"); err != nil {
				return nil, err
			}
			env, err := parseEnvelope(tks[i+1], tks)
			if err != nil {
				return nil, err
			}
			attrs.Envelope = env
			skip++
		case t.Str == "X-GM-THRID":
			if err := checkType(tks[i+1], []TType{TNumber}, tks, "after X-GM-THRID"); err != nil {
				return nil, err
			}
			attrs.GmailThreadID = uint64(tks[i+1].Num)
			skip++
		case t.Str == "X-GM-MSGID":
			if err := checkType(tks[i+1], []TType{TNumber}, tks, "after X-GM-MSGID"); err != nil {
				return nil, err
			}
			attrs.GmailMessageID = uint64(tks[i+1].Num)
			skip++
		case t.Str == "X-GM-LABELS":
			if err := checkType(tks[i+1], []TType{TContainer}, tks, "after X-GM-LABELS"); err != nil {
				return nil, err
			}
			attrs.GmailLabels = tokenStrings(tks[i+1].Tokens)
			skip++
		case strings.HasPrefix(t.Str, "BODY["):
			if err := checkType(tks[i+1], []TType{TAtom, TQuoted, TNil}, tks, "after %s", t.Str); err != nil {
				return nil, err
			}
			section := strings.TrimSuffix(strings.TrimPrefix(t.Str, "BODY["), "]")
			// strip the partial-range suffix of BODY[x]<origin>
			if j := strings.IndexByte(section, '<'); j != -1 {
				section = section[:j]
			}
			if attrs.Bodies == nil {
				attrs.Bodies = make(map[string][]byte)
			}
			if tks[i+1].Type == TNil {
				attrs.Bodies[section] = nil
			} else {
				attrs.Bodies[section] = []byte(tks[i+1].Str)
			}
			skip++
		default:
			// unrequested item from an extension; skip its value if one follows
			if i+1 < len(tks) && tks[i+1].Type != TLiteral {
				skip++
			}
		}
	}
	return attrs, nil
}

// scanFetchBasics pulls just the UID and flags out of a tokenized FETCH
// record. The read loop uses it to keep the sequence table current and to
// shape unsolicited flag-update events without a full attribute parse.
func scanFetchBasics(tks []*Token) (uid uint32, flags []string) {
	for i, t := range tks {
		if t.Type != TLiteral || i+1 >= len(tks) {
			continue
		}
		switch t.Str {
		case "UID":
			if tks[i+1].Type == TNumber {
				uid = uint32(tks[i+1].Num)
			}
		case "FLAGS":
			if tks[i+1].Type == TContainer {
				flags = tokenStrings(tks[i+1].Tokens)
			}
		}
	}
	return uid, flags
}

func tokenStrings(tks []*Token) []string {
	out := make([]string, len(tks))
	for i, t := range tks {
		out[i] = t.Str
	}
	return out
}

func parseEnvelope(t *Token, tks []*Token) (*Envelope, error) {
	if len(t.Tokens) < int(eMessageID)+1 {
		return nil, protocolErrorf("", "short ENVELOPE with %d fields", len(t.Tokens))
	}
	env := &Envelope{}

	if f := t.Tokens[eDate]; f.Type == TQuoted {
		// envelope dates come from the Date: header, so allow both padded
		// and unpadded day forms
		for _, layout := range []string{"Mon, 2 Jan 2006 15:04:05 -0700", "2 Jan 2006 15:04:05 -0700", "Mon, 2 Jan 2006 15:04:05 -0700 (MST)"} {
			if d, err := time.Parse(layout, f.Str); err == nil {
				env.Date = d.UTC()
				break
			}
		}
	}
	if f := t.Tokens[eSubject]; f.Type == TQuoted || f.Type == TAtom {
		env.Subject = decodeHeader(f.Str)
	}

	for _, fld := range []struct {
		dest *EmailAddresses
		pos  uint8
	}{
		{&env.From, eFrom},
		{&env.Sender, eSender},
		{&env.ReplyTo, eReplyTo},
		{&env.To, eTo},
		{&env.CC, eCC},
		{&env.BCC, eBCC},
	} {
		addrs, err := parseAddressList(t.Tokens[fld.pos], tks)
		if err != nil {
			return nil, err
		}
		*fld.dest = addrs
	}

	if f := t.Tokens[eInReplyTo]; f.Type == TQuoted {
		env.InReplyTo = f.Str
	}
	if f := t.Tokens[eMessageID]; f.Type == TQuoted {
		env.MessageID = f.Str
	}
	return env, nil
}

func parseAddressList(t *Token, tks []*Token) (EmailAddresses, error) {
	if t.Type == TNil {
		return nil, nil
	}
	if err := checkType(t, []TType{TContainer}, tks, "for address list"); err != nil {
		return nil, err
	}
	addrs := make(EmailAddresses, len(t.Tokens))
	for _, a := range t.Tokens {
		if err := checkType(a, []TType{TContainer}, tks, "for address"); err != nil {
			return nil, err
		}
		if len(a.Tokens) < int(eaHost)+1 {
			continue
		}
		mailbox, host := a.Tokens[eaMailbox], a.Tokens[eaHost]
		if mailbox.Type == TNil || host.Type == TNil {
			// group syntax marker, not a deliverable address
			continue
		}
		email := strings.ToLower(mailbox.Str + "@" + host.Str)
		name := ""
		if n := a.Tokens[eaName]; n.Type == TQuoted || n.Type == TAtom {
			name = decodeHeader(n.Str)
		}
		addrs[email] = name
	}
	return addrs, nil
}

// decodeHeader decodes RFC 2047 words, falling back to the raw text when the
// encoding is broken.
func decodeHeader(s string) string {
	d, err := headerDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return d
}

// Search runs UID SEARCH with the compiled criteria and returns matching
// UIDs in server order.
func (c *Client) Search(criteria ...Criterion) ([]uint32, error) {
	query, err := Compile(criteria)
	if err != nil {
		return nil, err
	}
	return c.searchWith("UID SEARCH", query)
}

// SearchSeq is Search returning sequence numbers instead of UIDs.
func (c *Client) SearchSeq(criteria ...Criterion) ([]uint32, error) {
	query, err := Compile(criteria)
	if err != nil {
		return nil, err
	}
	return c.searchWith("SEARCH", query)
}

func (c *Client) searchWith(verb, query string) ([]uint32, error) {
	if err := c.requireState(StateSelected, verb); err != nil {
		return nil, err
	}

	var ids []uint32
	var parseErr error
	err := c.execute(verb+" "+query, func(l *respLine) bool {
		if l.Kind != respUntagged || l.Keyword != "SEARCH" {
			return false
		}
		for _, f := range strings.Fields(l.Text) {
			n, err := strconv.ParseUint(f, 10, 32)
			if err != nil {
				if parseErr == nil {
					parseErr = protocolErrorf(l.Raw, "bad SEARCH result %q", f)
				}
				return true
			}
			ids = append(ids, uint32(n))
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return ids, nil
}
