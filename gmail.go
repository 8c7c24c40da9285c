package imap

import (
	"strconv"
	"strings"
)

// capGmailExt is the capability Gmail advertises for its IMAP extensions.
const capGmailExt = "X-GM-EXT-1"

// GmailRaw builds an X-GM-RAW search criterion carrying a Gmail search-box
// query, e.g. GmailRaw("has:attachment in:unread").
func GmailRaw(query string) Criterion {
	return Raw("X-GM-RAW", query)
}

// requireGmail rejects Gmail-extension operations on servers that don't
// advertise them, before any bytes are written.
func (c *Client) requireGmail(op string) error {
	if !c.sess.hasCap(capGmailExt) {
		return validationErrorf("%s requires the %s capability", op, capGmailExt)
	}
	return nil
}

// GmailSearch runs a UID search with a raw Gmail query string.
func (c *Client) GmailSearch(query string) ([]uint32, error) {
	if err := c.requireGmail("X-GM-RAW search"); err != nil {
		return nil, err
	}
	return c.Search(GmailRaw(query))
}

// GmailThreadID fetches the Gmail thread id for one message.
func (c *Client) GmailThreadID(uid uint32) (uint64, error) {
	attrs, err := c.gmailFetchOne(uid, "X-GM-THRID")
	if err != nil {
		return 0, err
	}
	return attrs.GmailThreadID, nil
}

// GmailMessageID fetches the Gmail message id for one message. Unlike the
// Message-ID header, this survives label changes and copies between
// mailboxes.
func (c *Client) GmailMessageID(uid uint32) (uint64, error) {
	attrs, err := c.gmailFetchOne(uid, "X-GM-MSGID")
	if err != nil {
		return 0, err
	}
	return attrs.GmailMessageID, nil
}

// GmailLabels fetches the labels attached to one message.
func (c *Client) GmailLabels(uid uint32) ([]string, error) {
	attrs, err := c.gmailFetchOne(uid, "X-GM-LABELS")
	if err != nil {
		return nil, err
	}
	return attrs.GmailLabels, nil
}

func (c *Client) gmailFetchOne(uid uint32, item string) (*MessageAttributes, error) {
	if err := c.requireGmail(item + " fetch"); err != nil {
		return nil, err
	}
	records, err := c.FetchAttributes(strconv.FormatUint(uint64(uid), 10), []string{"UID", item})
	if err != nil {
		return nil, err
	}
	for _, attrs := range records {
		if attrs.UID == uid {
			return attrs, nil
		}
	}
	return nil, validationErrorf("no message with uid %d", uid)
}

// AddGmailLabels attaches labels to the messages in the UID set.
func (c *Client) AddGmailLabels(set string, labels ...string) error {
	return c.storeGmailLabels(set, "+X-GM-LABELS", labels)
}

// RemoveGmailLabels detaches labels from the messages in the UID set.
func (c *Client) RemoveGmailLabels(set string, labels ...string) error {
	return c.storeGmailLabels(set, "-X-GM-LABELS", labels)
}

// SetGmailLabels replaces the label set of the messages in the UID set.
func (c *Client) SetGmailLabels(set string, labels ...string) error {
	return c.storeGmailLabels(set, "X-GM-LABELS", labels)
}

func (c *Client) storeGmailLabels(set, item string, labels []string) error {
	if err := c.requireGmail("X-GM-LABELS store"); err != nil {
		return err
	}
	if err := c.requireState(StateSelected, "STORE"); err != nil {
		return err
	}
	if set == "" {
		return validationErrorf("label store requires a message set")
	}
	encoded := make([]string, len(labels))
	for i, l := range labels {
		// system labels like \Inbox pass through bare, user labels get
		// quoted/literal encoding
		if strings.HasPrefix(l, `\`) {
			encoded[i] = l
		} else {
			encoded[i] = encodeAstring(l)
		}
	}
	return c.withWritable(func() error {
		return c.execute("UID STORE "+set+" "+item+" ("+strings.Join(encoded, " ")+")", nil)
	})
}
