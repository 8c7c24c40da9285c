package imap

import (
	"crypto/tls"
	"io"
	"net"
	"strconv"

	retry "github.com/StirlingMarketingGroup/go-retry"
)

// Transport is the reliable ordered byte stream the engine runs over. The
// engine never dials or negotiates TLS itself; it only writes commands,
// reads responses, and closes the stream on fatal errors.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// dialHost establishes a TLS connection to the IMAP server
func dialHost(host string, port int) (*tls.Conn, error) {
	dialer := &net.Dialer{Timeout: DialTimeout}
	var cfg *tls.Config
	if TLSSkipVerify {
		cfg = &tls.Config{InsecureSkipVerify: true}
	}
	return tls.DialWithDialer(dialer, "tcp", host+":"+strconv.Itoa(port), cfg)
}

// dialTransport dials with retries and returns the connection as a
// Transport. Only connection establishment is retried; authentication
// failures are not a reason to redial.
func dialTransport(host string, port int) (Transport, error) {
	var conn *tls.Conn
	err := retry.Retry(func() (err error) {
		debugLog("", "", "establishing connection", "host", host, "port", port)
		conn, err = dialHost(host, port)
		if err != nil {
			debugLog("", "", "failed to connect", "error", err)
		}
		return err
	}, RetryCount, func(err error) error {
		if conn != nil {
			_ = conn.Close()
		}
		return nil
	}, func() error {
		debugLog("", "", "retrying connection now")
		return nil
	})
	if err != nil {
		errorLog("", "", "failed to establish connection", "host", host, "error", err)
		return nil, err
	}
	return conn, nil
}
