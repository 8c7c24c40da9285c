package imap

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MailboxInfo is one LIST response entry.
type MailboxInfo struct {
	Name      string
	Delimiter string
	Attrs     []string
}

// Select opens a mailbox read-write. The previous mailbox snapshot, if any,
// is replaced wholesale.
func (c *Client) Select(name string) (*Mailbox, error) {
	return c.openBox(name, false)
}

// Examine opens a mailbox read-only.
func (c *Client) Examine(name string) (*Mailbox, error) {
	return c.openBox(name, true)
}

func (c *Client) openBox(name string, readOnly bool) (*Mailbox, error) {
	if err := c.requireState(StateAuthenticated, "SELECT"); err != nil {
		return nil, err
	}

	verb := "SELECT"
	if readOnly {
		verb = "EXAMINE"
	}

	mb := &Mailbox{Name: name, ReadOnly: readOnly}
	err := c.execute(verb+` "`+AddSlashes.Replace(name)+`"`, func(l *respLine) bool {
		switch l.Kind {
		case respUntaggedNum:
			switch l.Keyword {
			case "EXISTS":
				mb.Exists = l.Num
				return true
			case "RECENT":
				mb.Recent = l.Num
				return true
			}
		case respUntagged:
			if l.Keyword == "FLAGS" {
				mb.Flags = parseParenList(l.Text)
				return true
			}
			if l.Status == "OK" {
				code, args := respCode(l.Text)
				switch code {
				case "UIDVALIDITY":
					if v, err := strconv.ParseUint(args, 10, 32); err == nil {
						mb.UIDValidity = uint32(v)
					}
					return true
				case "UIDNEXT":
					if v, err := strconv.ParseUint(args, 10, 32); err == nil {
						mb.UIDNext = uint32(v)
					}
					return true
				case "UNSEEN":
					if v, err := strconv.ParseUint(args, 10, 32); err == nil {
						mb.Unseen = uint32(v)
					}
					return true
				case "PERMANENTFLAGS":
					mb.PermanentFlags = parseParenList(args)
					return true
				}
			}
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	c.sess.resetMailbox(mb)
	debugLog(c.id, name, "mailbox opened", "exists", mb.Exists, "uidvalidity", mb.UIDValidity, "readonly", readOnly)
	out := *mb
	return &out, nil
}

// CloseBox closes the selected mailbox without expunging, returning the
// connection to authenticated state.
func (c *Client) CloseBox() error {
	if err := c.requireState(StateSelected, "CLOSE"); err != nil {
		return err
	}
	if err := c.execute("CLOSE", nil); err != nil {
		return err
	}
	c.sess.closeMailbox()
	return nil
}

// List returns the mailboxes matching the reference and pattern, e.g.
// List("", "*") for everything.
func (c *Client) List(ref, pattern string) ([]MailboxInfo, error) {
	if err := c.requireState(StateAuthenticated, "LIST"); err != nil {
		return nil, err
	}

	var infos []MailboxInfo
	var parseErr error
	err := c.execute(`LIST "`+AddSlashes.Replace(ref)+`" "`+AddSlashes.Replace(pattern)+`"`, func(l *respLine) bool {
		if l.Kind != respUntagged || l.Keyword != "LIST" {
			return false
		}
		info, err := parseListEntry(l.Text)
		if err != nil {
			if parseErr == nil {
				parseErr = err
			}
			return true
		}
		infos = append(infos, info)
		return true
	})
	if err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return infos, nil
}

// Folders returns just the mailbox names, for callers that don't care about
// delimiters or attributes.
func (c *Client) Folders() ([]string, error) {
	infos, err := c.List("", "*")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names, nil
}

// parseListEntry parses `(\Attrs) "/" "Name"` from a LIST line.
func parseListEntry(text string) (MailboxInfo, error) {
	tks, err := parseFetchTokens(text)
	if err != nil {
		return MailboxInfo{}, fmt.Errorf("imap: bad LIST line %q: %w", text, err)
	}
	if len(tks) < 3 {
		return MailboxInfo{}, fmt.Errorf("imap: short LIST line %q", text)
	}
	var info MailboxInfo
	if tks[0].Type == TContainer {
		for _, t := range tks[0].Tokens {
			info.Attrs = append(info.Attrs, t.Str)
		}
	}
	if tks[1].Type != TNil {
		info.Delimiter = tks[1].Str
	}
	info.Name = tks[2].Str
	return info, nil
}

// Status queries a mailbox without selecting it. Items defaults to
// MESSAGES, RECENT, UIDNEXT, UIDVALIDITY, and UNSEEN.
func (c *Client) Status(name string, items ...string) (*Mailbox, error) {
	if err := c.requireState(StateAuthenticated, "STATUS"); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		items = []string{"MESSAGES", "RECENT", "UIDNEXT", "UIDVALIDITY", "UNSEEN"}
	}

	mb := &Mailbox{Name: name}
	var parseErr error
	cmd := `STATUS "` + AddSlashes.Replace(name) + `" (` + strings.Join(items, " ") + `)`
	err := c.execute(cmd, func(l *respLine) bool {
		if l.Kind != respUntagged || l.Keyword != "STATUS" {
			return false
		}
		if err := parseStatusLine(l.Text, mb); err != nil && parseErr == nil {
			parseErr = err
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return mb, nil
}

func parseStatusLine(text string, mb *Mailbox) error {
	tks, err := parseFetchTokens(text)
	if err != nil {
		return fmt.Errorf("imap: bad STATUS line %q: %w", text, err)
	}
	if len(tks) < 2 || tks[len(tks)-1].Type != TContainer {
		return fmt.Errorf("imap: short STATUS line %q", text)
	}
	pairs := tks[len(tks)-1].Tokens
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1].Type != TNumber {
			continue
		}
		n := uint32(pairs[i+1].Num)
		switch strings.ToUpper(pairs[i].Str) {
		case "MESSAGES":
			mb.Exists = n
		case "RECENT":
			mb.Recent = n
		case "UIDNEXT":
			mb.UIDNext = n
		case "UIDVALIDITY":
			mb.UIDValidity = n
		case "UNSEEN":
			mb.Unseen = n
		}
	}
	return nil
}

// Create makes a new mailbox.
func (c *Client) Create(name string) error {
	if err := c.requireState(StateAuthenticated, "CREATE"); err != nil {
		return err
	}
	return c.execute(`CREATE "`+AddSlashes.Replace(name)+`"`, nil)
}

// Delete removes a mailbox.
func (c *Client) Delete(name string) error {
	if err := c.requireState(StateAuthenticated, "DELETE"); err != nil {
		return err
	}
	return c.execute(`DELETE "`+AddSlashes.Replace(name)+`"`, nil)
}

// Rename renames a mailbox.
func (c *Client) Rename(oldName, newName string) error {
	if err := c.requireState(StateAuthenticated, "RENAME"); err != nil {
		return err
	}
	return c.execute(`RENAME "`+AddSlashes.Replace(oldName)+`" "`+AddSlashes.Replace(newName)+`"`, nil)
}

// Namespaces fetches the server's namespace list and caches it on the
// session.
func (c *Client) Namespaces() ([]Namespace, error) {
	if err := c.requireState(StateAuthenticated, "NAMESPACE"); err != nil {
		return nil, err
	}

	var ns []Namespace
	var parseErr error
	err := c.execute("NAMESPACE", func(l *respLine) bool {
		if l.Kind != respUntagged || l.Keyword != "NAMESPACE" {
			return false
		}
		tks, err := parseFetchTokens(l.Text)
		if err != nil {
			if parseErr == nil {
				parseErr = fmt.Errorf("imap: bad NAMESPACE line %q: %w", l.Text, err)
			}
			return true
		}
		// Three groups: personal, other users, shared. Each is NIL or a
		// list of (prefix delimiter) pairs.
		for _, group := range tks {
			if group.Type != TContainer {
				continue
			}
			for _, pair := range group.Tokens {
				if pair.Type != TContainer || len(pair.Tokens) < 2 {
					continue
				}
				n := Namespace{Prefix: pair.Tokens[0].Str}
				if pair.Tokens[1].Type != TNil {
					n.Delimiter = pair.Tokens[1].Str
				}
				ns = append(ns, n)
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}
	c.sess.setNamespaces(ns)
	return ns, nil
}

// Append adds a message to a mailbox using a synchronous literal: the size
// is announced, the server's continuation awaited, then the payload written.
func (c *Client) Append(mailbox string, flags []string, date time.Time, message []byte) error {
	if err := c.requireState(StateAuthenticated, "APPEND"); err != nil {
		return err
	}
	if err := c.interruptIdle(); err != nil {
		return err
	}

	cmd := `APPEND "` + AddSlashes.Replace(mailbox) + `"`
	if len(flags) > 0 {
		cmd += " (" + strings.Join(flags, " ") + ")"
	}
	if !date.IsZero() {
		cmd += ` "` + date.Format(TimeFormat) + `"`
	}
	cmd += " {" + strconv.Itoa(len(message)) + "}"

	// One command's bytes must stay contiguous: hold the write lock across
	// the announcement, the continuation, and the payload.
	c.wmu.Lock()
	defer c.wmu.Unlock()

	cont := c.expectContinuation()
	pc, err := c.pl.enqueue(cmd, nil)
	if err != nil {
		c.clearContinuation()
		return err
	}

	select {
	case err := <-pc.done:
		// NO/BAD instead of a continuation: literal rejected
		c.clearContinuation()
		return err
	case <-cont:
		payload := append(append([]byte{}, message...), nl...)
		if err := c.pl.writeRaw(payload); err != nil {
			c.fatal(err)
			return <-pc.done
		}
	}

	return c.wait(pc)
}

// Expunge permanently removes messages marked \Deleted in the selected
// mailbox. The resulting untagged EXPUNGE lines renumber the sequence table
// as they stream in.
func (c *Client) Expunge() error {
	if err := c.requireState(StateSelected, "EXPUNGE"); err != nil {
		return err
	}
	return c.execute("EXPUNGE", nil)
}

// parseParenList splits "(\Seen \Answered)" (or a bare list) into fields.
func parseParenList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	return strings.Fields(s)
}
