package imap

import (
	"encoding/base64"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/sqs/go-xoauth2"
)

// Login performs LOGIN authentication using username and password.
func (c *Client) Login(username string, password string) error {
	if err := c.requireState(StateConnected, "LOGIN"); err != nil {
		return err
	}
	err := c.execute(`LOGIN "`+AddSlashes.Replace(username)+`" "`+AddSlashes.Replace(password)+`"`, nil)
	if err != nil {
		return err
	}
	c.sess.setState(StateAuthenticated)
	return nil
}

// Authenticate runs a SASL client mechanism over AUTHENTICATE, answering
// server challenges through continuation lines. The initial response is sent
// inline (SASL-IR style) when the mechanism provides one.
func (c *Client) Authenticate(mech sasl.Client) error {
	if err := c.requireState(StateConnected, "AUTHENTICATE"); err != nil {
		return err
	}

	name, ir, err := mech.Start()
	if err != nil {
		return err
	}

	cmd := "AUTHENTICATE " + name
	if ir != nil {
		cmd += " " + base64.StdEncoding.EncodeToString(ir)
	}

	// Hold the write lock across the whole exchange so challenge answers
	// can't interleave with another command's bytes.
	c.wmu.Lock()
	defer c.wmu.Unlock()

	cont := c.expectContinuation()
	pc, err := c.pl.enqueue(cmd, nil)
	if err != nil {
		c.clearContinuation()
		return err
	}

	for {
		select {
		case err := <-pc.done:
			c.clearContinuation()
			if err != nil {
				return err
			}
			c.sess.setState(StateAuthenticated)
			return nil
		case l := <-cont:
			challenge, err := base64.StdEncoding.DecodeString(strings.TrimSpace(l.Text))
			if err != nil {
				c.fatal(protocolErrorf(l.Raw, "bad base64 challenge"))
				return <-pc.done
			}
			answer, err := mech.Next(challenge)
			if err != nil {
				// abort the exchange per RFC 3501 6.2.2
				cont = c.expectContinuation()
				_ = c.pl.writeRaw([]byte("*" + nl))
				continue
			}
			// re-arm before answering so the next challenge can't slip past
			cont = c.expectContinuation()
			if err := c.pl.writeRaw([]byte(base64.StdEncoding.EncodeToString(answer) + nl)); err != nil {
				c.fatal(err)
				return <-pc.done
			}
		}
	}
}

// AuthenticateXOAuth2 performs XOAUTH2 authentication using an access
// token. The token string must already be acquired; no OAuth flow happens
// here.
func (c *Client) AuthenticateXOAuth2(user string, accessToken string) error {
	if err := c.requireState(StateConnected, "AUTHENTICATE"); err != nil {
		return err
	}
	b64 := xoauth2.XOAuth2String(user, accessToken)
	err := c.execute("AUTHENTICATE XOAUTH2 "+b64, nil)
	if err != nil {
		return err
	}
	c.sess.setState(StateAuthenticated)
	return nil
}
