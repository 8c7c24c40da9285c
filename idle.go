package imap

import (
	"time"
)

const defaultKeepaliveInterval = 5 * time.Minute

// Idle puts the connection into IDLE so the server can push EXISTS, EXPUNGE,
// and FETCH updates immediately; they surface through the registered
// observers. The idle ends when StopIdle is called or any other command is
// issued, whichever comes first.
func (c *Client) Idle() error {
	if err := c.requireState(StateSelected, "IDLE"); err != nil {
		return err
	}
	if !c.sess.hasCap("IDLE") {
		return validationErrorf("server does not advertise IDLE")
	}
	return c.beginIdle()
}

// StopIdle ends a running IDLE and waits for its completion. It is a no-op
// when the connection is not idling.
func (c *Client) StopIdle() error {
	return c.interruptIdle()
}

// beginIdle sends IDLE and waits for the server's continuation. The idle
// lock is held for the whole handshake so a concurrent command interrupts
// either before the IDLE starts or after it is fully established, never in
// between.
func (c *Client) beginIdle() error {
	c.idleMu.Lock()
	defer c.idleMu.Unlock()
	if c.idleIdling {
		return nil
	}

	c.wmu.Lock()
	cont := c.expectContinuation()
	pc, err := c.pl.enqueue("IDLE", nil)
	if err != nil {
		c.clearContinuation()
		c.wmu.Unlock()
		return err
	}
	select {
	case err := <-pc.done:
		// NO/BAD instead of a continuation
		c.clearContinuation()
		c.wmu.Unlock()
		return err
	case <-cont:
	}
	c.wmu.Unlock()

	c.idleCmd = pc
	c.idleIdling = true
	debugLog(c.id, c.sess.mailboxName(), "idle started", "tag", pc.tag)
	return nil
}

// interruptIdle writes DONE and waits for the idle's tagged completion.
// Every command submission path runs through here first, which is what makes
// a background idle transparent to callers.
func (c *Client) interruptIdle() error {
	c.idleMu.Lock()
	defer c.idleMu.Unlock()
	if !c.idleIdling {
		return nil
	}
	pc := c.idleCmd
	c.idleCmd = nil
	c.idleIdling = false

	if err := c.pl.writeRaw([]byte("DONE" + nl)); err != nil {
		c.fatal(err)
		return <-pc.done
	}
	err := <-pc.done
	debugLog(c.id, c.sess.mailboxName(), "idle stopped", "tag", pc.tag)
	return err
}

// startKeepalive launches the background keepalive goroutine. With IDLE
// advertised it holds an idle open and renews it every interval; otherwise
// it falls back to a periodic NOOP. Either way the traffic flows through the
// normal pipeline, so it never interleaves with user commands.
func (c *Client) startKeepalive(interval time.Duration) {
	if interval <= 0 {
		interval = defaultKeepaliveInterval
	}
	c.keepaliveStop = make(chan struct{})
	go c.keepaliveLoop(interval)
}

func (c *Client) stopKeepalive() {
	c.keepaliveOnce.Do(func() {
		if c.keepaliveStop != nil {
			close(c.keepaliveStop)
		}
	})
}

func (c *Client) keepaliveLoop(interval time.Duration) {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		useIdle := c.sess.hasCap("IDLE") && c.State() == StateSelected
		if useIdle {
			if err := c.beginIdle(); err != nil {
				warnLog(c.id, c.sess.mailboxName(), "keepalive idle failed", "error", err)
				return
			}
		}

		select {
		case <-c.keepaliveStop:
			if useIdle {
				_ = c.interruptIdle()
			}
			return
		case <-timer.C:
		}

		var err error
		if useIdle {
			// renew: servers may drop idles silently after ~30 minutes
			err = c.interruptIdle()
		} else {
			err = c.Noop()
		}
		if err != nil {
			warnLog(c.id, c.sess.mailboxName(), "keepalive failed", "error", err)
			return
		}
		timer.Reset(interval)
	}
}
