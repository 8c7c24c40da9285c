package imap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	humanize "github.com/dustin/go-humanize"
	"github.com/jhillyerd/enmime/v2"
)

// EmailAddresses represents a map of email addresses to display names
type EmailAddresses map[string]string

// Email represents an IMAP email message
type Email struct {
	Flags       []string
	Received    time.Time
	Sent        time.Time
	Size        uint64
	Subject     string
	UID         uint32
	MessageID   string
	From        EmailAddresses
	To          EmailAddresses
	ReplyTo     EmailAddresses
	CC          EmailAddresses
	BCC         EmailAddresses
	Text        string
	HTML        string
	Attachments []Attachment
}

// Attachment represents an email attachment
type Attachment struct {
	Name     string
	MimeType string
	Content  []byte
}

// String returns a formatted string representation of EmailAddresses
func (e EmailAddresses) String() string {
	emails := strings.Builder{}
	i := 0
	for e, n := range e {
		if i != 0 {
			emails.WriteString(", ")
		}
		if len(n) != 0 {
			if strings.ContainsRune(n, ',') {
				emails.WriteString(fmt.Sprintf(`"%s" <%s>`, AddSlashes.Replace(n), e))
			} else {
				emails.WriteString(fmt.Sprintf(`%s <%s>`, n, e))
			}
		} else {
			emails.WriteString(e)
		}
		i++
	}
	return emails.String()
}

// String returns a formatted string representation of an Email
func (e Email) String() string {
	email := strings.Builder{}

	email.WriteString(fmt.Sprintf("Subject: %s\n", e.Subject))

	if len(e.To) != 0 {
		email.WriteString(fmt.Sprintf("To: %s\n", e.To))
	}
	if len(e.From) != 0 {
		email.WriteString(fmt.Sprintf("From: %s\n", e.From))
	}
	if len(e.CC) != 0 {
		email.WriteString(fmt.Sprintf("CC: %s\n", e.CC))
	}
	if len(e.BCC) != 0 {
		email.WriteString(fmt.Sprintf("BCC: %s\n", e.BCC))
	}
	if len(e.ReplyTo) != 0 {
		email.WriteString(fmt.Sprintf("ReplyTo: %s\n", e.ReplyTo))
	}
	if len(e.Text) != 0 {
		if len(e.Text) > 20 {
			email.WriteString(fmt.Sprintf("Text: %s...", e.Text[:20]))
		} else {
			email.WriteString(fmt.Sprintf("Text: %s", e.Text))
		}
		email.WriteString(fmt.Sprintf(" (%s)\n", humanize.Bytes(uint64(len(e.Text)))))
	}
	if len(e.HTML) != 0 {
		if len(e.HTML) > 20 {
			email.WriteString(fmt.Sprintf("HTML: %s...", e.HTML[:20]))
		} else {
			email.WriteString(fmt.Sprintf("HTML: %s", e.HTML))
		}
		email.WriteString(fmt.Sprintf(" (%s)\n", humanize.Bytes(uint64(len(e.HTML)))))
	}

	if len(e.Attachments) != 0 {
		email.WriteString(fmt.Sprintf("%d Attachment(s): %s\n", len(e.Attachments), e.Attachments))
	}

	return email.String()
}

// String returns a formatted string representation of an Attachment
func (a Attachment) String() string {
	return fmt.Sprintf("%s (%s %s)", a.Name, a.MimeType, humanize.Bytes(uint64(len(a.Content))))
}

// Store runs UID STORE with a raw item such as "+FLAGS" or "-FLAGS" or
// "FLAGS". Adding an already-set flag or removing an absent one is a no-op
// on the server, so repeated calls converge.
func (c *Client) Store(set string, item string, values []string) error {
	if err := c.requireState(StateSelected, "STORE"); err != nil {
		return err
	}
	if set == "" {
		return validationErrorf("STORE requires a message set")
	}
	return c.execute("UID STORE "+set+" "+item+" ("+strings.Join(values, " ")+")", nil)
}

// SetFlags applies a Flags value to one message, adding and removing in two
// STORE steps as needed.
func (c *Client) SetFlags(uid uint32, flags Flags) error {
	add, remove := flags.lists()
	set := strconv.FormatUint(uint64(uid), 10)

	return c.withWritable(func() error {
		if len(add) > 0 {
			if err := c.Store(set, "+FLAGS", add); err != nil {
				return err
			}
		}
		if len(remove) > 0 {
			if err := c.Store(set, "-FLAGS", remove); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkSeen marks an email as seen/read
func (c *Client) MarkSeen(uid uint32) error {
	return c.SetFlags(uid, Flags{Seen: FlagAdd})
}

// DeleteEmail marks an email for deletion
func (c *Client) DeleteEmail(uid uint32) error {
	return c.SetFlags(uid, Flags{Deleted: FlagAdd})
}

// withWritable reselects a read-only mailbox read-write for the duration of
// fn, then drops back to examine mode.
func (c *Client) withWritable(fn func() error) error {
	mb := c.sess.currentMailbox()
	if mb == nil || !mb.ReadOnly {
		return fn()
	}
	if _, err := c.Select(mb.Name); err != nil {
		return err
	}
	err := fn()
	if _, e := c.Examine(mb.Name); e != nil && err == nil {
		err = e
	}
	return err
}

// Copy copies the messages in the UID set into another mailbox.
func (c *Client) Copy(set string, mailbox string) error {
	if err := c.requireState(StateSelected, "COPY"); err != nil {
		return err
	}
	if set == "" {
		return validationErrorf("COPY requires a message set")
	}
	return c.execute(`UID COPY `+set+` "`+AddSlashes.Replace(mailbox)+`"`, nil)
}

// Move moves the messages in the UID set into another mailbox, using the
// MOVE extension when advertised and falling back to copy, mark deleted,
// expunge otherwise.
func (c *Client) Move(set string, mailbox string) error {
	if err := c.requireState(StateSelected, "MOVE"); err != nil {
		return err
	}
	if set == "" {
		return validationErrorf("MOVE requires a message set")
	}
	if c.sess.hasCap("MOVE") {
		return c.withWritable(func() error {
			return c.execute(`UID MOVE `+set+` "`+AddSlashes.Replace(mailbox)+`"`, nil)
		})
	}
	return c.withWritable(func() error {
		if err := c.execute(`UID COPY `+set+` "`+AddSlashes.Replace(mailbox)+`"`, nil); err != nil {
			return err
		}
		if err := c.Store(set, "+FLAGS.SILENT", []string{`\Deleted`}); err != nil {
			return err
		}
		return c.Expunge()
	})
}

// uidSetString renders a UID list into a set string, "1:*" when empty.
func uidSetString(uids []uint32) string {
	if len(uids) == 0 {
		return "1:*"
	}
	s := strings.Builder{}
	i := 0
	for _, u := range uids {
		if u == 0 {
			continue
		}
		if i != 0 {
			s.WriteByte(',')
		}
		s.WriteString(strconv.FormatUint(uint64(u), 10))
		i++
	}
	return s.String()
}

// FetchOverviews retrieves email overview information (flags, envelope,
// size) without body content. No arguments means the whole mailbox.
func (c *Client) FetchOverviews(uids ...uint32) (map[uint32]*Email, error) {
	records, err := c.FetchAttributes(uidSetString(uids), []string{"ALL"})
	if err != nil {
		return nil, err
	}

	emails := make(map[uint32]*Email, len(records))
	for _, attrs := range records {
		if attrs.UID == 0 {
			continue
		}
		e := &Email{
			UID:      attrs.UID,
			Flags:    attrs.Flags,
			Received: attrs.InternalDate,
			Size:     attrs.Size,
		}
		if env := attrs.Envelope; env != nil {
			e.Sent = env.Date
			e.Subject = env.Subject
			e.MessageID = env.MessageID
			e.From = env.From
			e.ReplyTo = env.ReplyTo
			e.To = env.To
			e.CC = env.CC
			e.BCC = env.BCC
		}
		emails[e.UID] = e
	}
	return emails, nil
}

// FetchEmails retrieves full email messages including parsed body content
// and attachments. Messages whose MIME structure cannot be parsed are
// dropped from the result after logging.
func (c *Client) FetchEmails(uids ...uint32) (map[uint32]*Email, error) {
	emails, err := c.FetchOverviews(uids...)
	if err != nil {
		return nil, err
	}
	if len(emails) == 0 {
		return emails, nil
	}

	found := make([]uint32, 0, len(emails))
	for u := range emails {
		found = append(found, u)
	}

	records, err := c.FetchAttributes(uidSetString(found), []string{"UID", "BODY.PEEK[]"})
	if err != nil {
		return nil, err
	}

	for _, attrs := range records {
		e := emails[attrs.UID]
		if e == nil {
			continue
		}
		body := attrs.Bodies[""]
		env, err := enmime.ReadEnvelope(strings.NewReader(string(body)))
		if err != nil {
			warnLog(c.id, c.sess.mailboxName(), "email body could not be parsed, skipping", "uid", attrs.UID, "error", err)
			if Verbose {
				spew.Dump(string(body))
			}
			delete(emails, attrs.UID)
			continue
		}

		e.Subject = env.GetHeader("Subject")
		e.Text = env.Text
		e.HTML = env.HTML

		for _, a := range env.Attachments {
			e.Attachments = append(e.Attachments, Attachment{
				Name:     a.FileName,
				MimeType: a.ContentType,
				Content:  a.Content,
			})
		}
		for _, a := range env.Inlines {
			e.Attachments = append(e.Attachments, Attachment{
				Name:     a.FileName,
				MimeType: a.ContentType,
				Content:  a.Content,
			})
		}

		for _, f := range []struct {
			dest   *EmailAddresses
			header string
		}{
			{&e.From, "From"},
			{&e.ReplyTo, "Reply-To"},
			{&e.To, "To"},
			{&e.CC, "cc"},
			{&e.BCC, "bcc"},
		} {
			alist, _ := env.AddressList(f.header)
			if len(alist) == 0 {
				continue
			}
			*f.dest = make(EmailAddresses, len(alist))
			for _, addr := range alist {
				(*f.dest)[strings.ToLower(addr.Address)] = addr.Name
			}
		}
	}

	return emails, nil
}
