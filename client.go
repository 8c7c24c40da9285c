package imap

import (
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
)

// errClosed resolves commands outstanding when the connection is closed
// locally or the server ends the stream without a fatal protocol failure.
var errClosed = errors.New("imap: connection closed")

// KeepalivePolicy controls the background keepalive. When enabled, the
// client holds an IDLE open (renewed every Interval) on servers advertising
// it, falling back to periodic NOOP otherwise.
type KeepalivePolicy struct {
	Enabled  bool
	Interval time.Duration // zero means 5 minutes
}

// Config is the already-validated connection settings value consumed by
// Dial. Flag and environment parsing happen elsewhere; this package only
// reads the struct.
type Config struct {
	Host string
	Port int

	Username string
	Password string
	// AccessToken, when set, selects XOAUTH2 authentication instead of
	// LOGIN. Token acquisition is the caller's problem.
	AccessToken string

	Keepalive KeepalivePolicy
}

// Client is one IMAP connection: the transport, the wire reader, the
// command pipeline, the session tracker, and the event dispatcher. All
// methods are safe for concurrent use; command completions are matched
// strictly by tag, so callers may pipeline from multiple goroutines.
type Client struct {
	id string

	transport Transport
	rd        *respReader
	pl        *pipeline
	sess      *session
	disp      *dispatcher

	// wmu is the exchange lock: every command submission and every
	// multi-step wire exchange (APPEND's literal continuation, SASL
	// challenge rounds) runs under it, so no command's bytes can land
	// inside another command's continuation window.
	wmu sync.Mutex

	contMu sync.Mutex
	contCh chan *respLine

	idleMu     sync.Mutex
	idleCmd    *pendingCommand
	idleIdling bool

	keepaliveStop chan struct{}
	keepaliveOnce sync.Once

	readDone     chan struct{}
	teardownOnce sync.Once
	byeSeen      atomic.Bool
}

// NewClient builds a client over an established transport, reads the server
// greeting, and starts the read loop. The greeting must be OK (state becomes
// connected) or PREAUTH (already authenticated).
func NewClient(t Transport) (*Client, error) {
	c := &Client{
		id:        xid.New().String(),
		transport: t,
		rd:        newRespReader(t),
		sess:      newSession(),
		readDone:  make(chan struct{}),
	}
	c.pl = newPipeline(t, c.id)
	c.disp = newDispatcher(c.id)

	greeting, err := c.rd.next()
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	if greeting.Kind != respUntagged || greeting.Status == "" {
		_ = t.Close()
		return nil, protocolErrorf(greeting.Raw, "expected greeting")
	}
	switch greeting.Status {
	case "OK":
		c.sess.setState(StateConnected)
	case "PREAUTH":
		c.sess.setState(StateAuthenticated)
	case "BYE":
		_ = t.Close()
		return nil, protocolErrorf(greeting.Raw, "server rejected connection")
	default:
		_ = t.Close()
		return nil, protocolErrorf(greeting.Raw, "unexpected greeting status %s", greeting.Status)
	}
	if code, args := respCode(greeting.Text); code == "CAPABILITY" {
		c.sess.setCaps(strings.Fields(args))
	}
	debugLog(c.id, "", "connection greeting read", "state", c.sess.State().String())

	go c.readLoop()
	return c, nil
}

// Dial connects to cfg.Host:cfg.Port over TLS (with retries), authenticates
// with XOAUTH2 or LOGIN per the config, and starts the keepalive when the
// policy asks for one. The ready event fires after authentication.
func Dial(cfg Config) (*Client, error) {
	t, err := dialTransport(cfg.Host, cfg.Port)
	if err != nil {
		return nil, err
	}
	c, err := NewClient(t)
	if err != nil {
		return nil, err
	}

	if c.State() != StateAuthenticated { // PREAUTH skips authentication
		if cfg.AccessToken != "" {
			err = c.AuthenticateXOAuth2(cfg.Username, cfg.AccessToken)
		} else {
			err = c.Login(cfg.Username, cfg.Password)
		}
		if err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	c.disp.emit(Event{Kind: EventReady})
	if cfg.Keepalive.Enabled {
		c.startKeepalive(cfg.Keepalive.Interval)
	}
	return c, nil
}

// On registers an observer for an event category. Observers run on the read
// loop goroutine and must not block; close/end/error observers fire at most
// once per connection.
func (c *Client) On(kind EventKind, fn Observer) {
	c.disp.on(kind, fn)
}

// ConnID returns the connection's log identifier.
func (c *Client) ConnID() string { return c.id }

// State returns the connection lifecycle state.
func (c *Client) State() ConnState { return c.sess.State() }

// Capabilities returns the server's advertised capability set.
func (c *Client) Capabilities() []string { return c.sess.capabilities() }

// HasCapability reports whether the server advertised the capability.
func (c *Client) HasCapability(name string) bool { return c.sess.hasCap(name) }

// Mailbox returns a copy of the selected mailbox snapshot, or nil when no
// mailbox is open.
func (c *Client) Mailbox() *Mailbox { return c.sess.currentMailbox() }

// NamespaceList returns the namespaces cached by the last Namespaces call.
func (c *Client) NamespaceList() []Namespace { return c.sess.namespaceList() }

// UIDForSeq returns the UID learned for a sequence number in the selected
// mailbox, or 0 when it hasn't been seen in a FETCH yet. Sequence numbers
// shift on expunge; the mapping reflects all expunges processed so far.
func (c *Client) UIDForSeq(seq uint32) uint32 { return c.sess.uidForSeq(seq) }

// readLoop is the single consumer of the wire reader. It demultiplexes by
// line shape: tagged lines resolve pending commands, untagged lines update
// the session and feed collectors/observers, continuations wake whichever
// command is waiting on one.
func (c *Client) readLoop() {
	defer close(c.readDone)
	for {
		l, err := c.rd.next()
		if err != nil {
			c.fatal(c.normalizeReadErr(err))
			return
		}
		if Verbose && !SkipResponses {
			debugLog(c.id, c.sess.mailboxName(), "server response", "response", l.Raw)
		}

		switch l.Kind {
		case respContinuation:
			c.deliverContinuation(l)
		case respTagged:
			c.scanAlert(l.Text)
			if err := c.pl.resolve(l); err != nil {
				c.fatal(err)
				return
			}
		case respUntaggedNum:
			if err := c.handleNumeric(l); err != nil {
				c.fatal(err)
				return
			}
		case respUntagged:
			c.handleUntagged(l)
		}
	}
}

// handleNumeric applies "* n KEYWORD" session side effects before any
// pending command can observe them, then routes the line to collectors, and
// finally to observers when no command claimed it.
func (c *Client) handleNumeric(l *respLine) error {
	switch l.Keyword {
	case "EXISTS":
		c.sess.applyExists(l.Num)
		if !c.pl.offerUntagged(l) {
			c.disp.emit(Event{Kind: EventMail, Count: l.Num})
		}
	case "RECENT":
		c.sess.applyRecent(l.Num)
		c.pl.offerUntagged(l)
	case "EXPUNGE":
		uid := c.sess.applyExpunge(l.Num)
		c.pl.offerUntagged(l)
		c.disp.emit(Event{Kind: EventExpunge, Seq: l.Num, UID: uid})
	case "FETCH":
		tks, err := fetchRecordTokens(l.Text)
		if err != nil {
			return protocolErrorf(l.Raw, "bad FETCH data: %s", err)
		}
		uid, flags := scanFetchBasics(tks)
		if uid != 0 {
			c.sess.noteUID(l.Num, uid)
		}
		if !c.pl.offerUntagged(l) {
			c.disp.emit(Event{Kind: EventUpdate, Seq: l.Num, UID: uid, Flags: flags})
		}
	default:
		if !c.pl.offerUntagged(l) {
			debugLog(c.id, c.sess.mailboxName(), "unhandled numeric response", "keyword", l.Keyword)
		}
	}
	return nil
}

func (c *Client) handleUntagged(l *respLine) {
	if l.Status != "" {
		c.scanAlert(l.Text)
		code, args := respCode(l.Text)
		if code == "CAPABILITY" {
			c.sess.setCaps(strings.Fields(args))
		}
		if l.Status == "BYE" {
			c.byeSeen.Store(true)
			debugLog(c.id, c.sess.mailboxName(), "server sent BYE", "text", l.Text)
		}
		claimed := c.pl.offerUntagged(l)
		// A UIDVALIDITY claimed by a SELECT/EXAMINE collector describes the
		// mailbox being opened, not an epoch change in the current one.
		if !claimed && code == "UIDVALIDITY" {
			if v, err := strconv.ParseUint(args, 10, 32); err == nil {
				if c.sess.applyUIDValidity(uint32(v)) {
					c.disp.emit(Event{Kind: EventUIDValidity, UIDValidity: uint32(v)})
				}
			}
		}
		return
	}

	if l.Keyword == "CAPABILITY" {
		c.sess.setCaps(strings.Fields(l.Text))
		return
	}
	if !c.pl.offerUntagged(l) {
		debugLog(c.id, c.sess.mailboxName(), "unclaimed untagged response", "keyword", l.Keyword)
	}
}

// scanAlert emits an alert event for [ALERT] response codes on any status
// line, tagged or untagged.
func (c *Client) scanAlert(text string) {
	if code, _ := respCode(text); code == "ALERT" {
		msg := text
		if i := strings.IndexByte(text, ']'); i != -1 && i+2 <= len(text) {
			msg = strings.TrimSpace(text[i+1:])
		}
		c.disp.emit(Event{Kind: EventAlert, Text: msg})
	}
}

// expectContinuation registers interest in the next continuation line.
// At most one command waits on a continuation at a time (guarded by wmu).
func (c *Client) expectContinuation() chan *respLine {
	ch := make(chan *respLine, 1)
	c.contMu.Lock()
	c.contCh = ch
	c.contMu.Unlock()
	return ch
}

func (c *Client) clearContinuation() {
	c.contMu.Lock()
	c.contCh = nil
	c.contMu.Unlock()
}

func (c *Client) deliverContinuation(l *respLine) {
	c.contMu.Lock()
	ch := c.contCh
	c.contCh = nil
	c.contMu.Unlock()
	if ch != nil {
		ch <- l
		return
	}
	debugLog(c.id, c.sess.mailboxName(), "dropping unexpected continuation", "text", l.Text)
}

// Send submits a raw command and returns its tag plus a completion channel.
// This is the low-level pipelined surface; most callers want the typed
// methods, which block until completion.
func (c *Client) Send(text string) (tag string, done <-chan error, err error) {
	pc, err := c.submit(text, nil)
	if err != nil {
		return "", nil, err
	}
	return pc.tag, pc.done, nil
}

// Cancel withdraws a pending command; its caller is resolved with a
// CancelledError. The command is not un-sent: a late tagged response for
// the cancelled tag is logged and dropped.
func (c *Client) Cancel(tag string) bool {
	return c.pl.cancel(tag)
}

// submit interrupts any background idle, then enqueues under the exchange
// lock. A submission racing an APPEND or AUTHENTICATE blocks here until that
// exchange's payload is on the wire.
func (c *Client) submit(text string, collect func(l *respLine) bool) (*pendingCommand, error) {
	if err := c.interruptIdle(); err != nil {
		return nil, err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.pl.enqueue(text, collect)
}

// execute submits a command and blocks until its tagged completion.
func (c *Client) execute(text string, collect func(l *respLine) bool) error {
	if Verbose {
		debugLog(c.id, c.sess.mailboxName(), "sending command", "command", text)
	}
	pc, err := c.submit(text, collect)
	if err != nil {
		return err
	}
	return c.wait(pc)
}

// wait blocks on a command completion, enforcing CommandTimeout. A timeout
// is connection-fatal: every outstanding command fails with it.
func (c *Client) wait(pc *pendingCommand) error {
	if CommandTimeout > 0 {
		timer := time.NewTimer(CommandTimeout)
		defer timer.Stop()
		select {
		case err := <-pc.done:
			return err
		case <-timer.C:
			err := &TimeoutError{Op: pc.verb}
			c.fatal(err)
			<-pc.done
			return err
		}
	}
	return <-pc.done
}

func (c *Client) normalizeReadErr(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TimeoutError{Op: "read"}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return errClosed
	}
	return err
}

// fatal tears the connection down: every outstanding command fails with the
// same error, state drops to disconnected, the transport is closed, and the
// error/end/close events fire (each at most once). A plain stream end after
// BYE or a local Close is not reported as an error event.
func (c *Client) fatal(err error) {
	c.teardownOnce.Do(func() {
		c.stopKeepalive()
		c.sess.setState(StateDisconnected)
		c.pl.failAll(err)
		c.clearContinuation()
		_ = c.transport.Close()

		if err != nil && !errors.Is(err, errClosed) && !c.byeSeen.Load() {
			errorLog(c.id, c.sess.mailboxName(), "connection failed", "error", err)
			c.disp.emit(Event{Kind: EventError, Err: err})
		}
		c.disp.emit(Event{Kind: EventEnd})
		c.disp.emit(Event{Kind: EventClose})
	})
}

// Close destroys the connection immediately. Outstanding commands resolve
// with a closed-connection error; end and close events fire. Prefer Logout
// for a clean server-side goodbye.
func (c *Client) Close() error {
	c.fatal(errClosed)
	<-c.readDone
	return nil
}

// Logout sends LOGOUT, waits for the server's goodbye, and closes the
// connection.
func (c *Client) Logout() error {
	err := c.execute("LOGOUT", nil)
	c.fatal(errClosed)
	if err != nil && !errors.Is(err, errClosed) {
		return err
	}
	return nil
}

// Noop sends NOOP; any pending unsolicited updates ride back on it.
func (c *Client) Noop() error {
	return c.execute("NOOP", nil)
}

// Capability asks the server for its capability list and returns it.
func (c *Client) Capability() ([]string, error) {
	// the untagged CAPABILITY line is absorbed by handleUntagged
	if err := c.execute("CAPABILITY", nil); err != nil {
		return nil, err
	}
	return c.sess.capabilities(), nil
}

// requireState rejects commands issued from the wrong lifecycle state
// before any bytes are written.
func (c *Client) requireState(min ConnState, op string) error {
	if st := c.sess.State(); st < min {
		return validationErrorf("%s requires %s state, connection is %s", op, min, st)
	}
	return nil
}
