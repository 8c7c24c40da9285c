package imap

import (
	"fmt"
	"sync"
)

// EventKind names a category of asynchronous connection events.
type EventKind string

const (
	// EventReady fires once the greeting has been read and the connection
	// can accept commands.
	EventReady EventKind = "ready"
	// EventMail fires on untagged EXISTS: the mailbox message count changed.
	EventMail EventKind = "mail"
	// EventExpunge fires per expunged message, after renumbering.
	EventExpunge EventKind = "expunge"
	// EventUpdate fires on unsolicited FETCH flag updates.
	EventUpdate EventKind = "update"
	// EventAlert fires on OK/NO/BAD [ALERT] response codes.
	EventAlert EventKind = "alert"
	// EventUIDValidity fires when the selected mailbox's UID epoch changes.
	EventUIDValidity EventKind = "uidvalidity"
	// EventError fires at most once, with the fatal connection error.
	EventError EventKind = "error"
	// EventEnd fires at most once, when the transport stream ends.
	EventEnd EventKind = "end"
	// EventClose fires at most once, after teardown completes.
	EventClose EventKind = "close"
)

// Event is one dispatched notification. Which fields are set depends on
// Kind: Seq/UID for expunge and update, Count for mail, Text for alert,
// UIDValidity for uidvalidity, Err for error.
type Event struct {
	Kind        EventKind
	Seq         uint32
	UID         uint32
	Count       uint32
	Flags       []string
	Text        string
	UIDValidity uint32
	Err         error
}

// Observer receives events for one registered category.
type Observer func(Event)

// dispatcher routes server-pushed events to registered observers. Dispatch
// is synchronous with the read loop's processing of one line, but observer
// failures are contained: a panicking observer is logged and skipped, never
// allowed to break the pipeline.
type dispatcher struct {
	mu        sync.Mutex
	observers map[EventKind][]Observer
	fired     map[EventKind]bool

	logID string
}

func newDispatcher(logID string) *dispatcher {
	return &dispatcher{
		observers: make(map[EventKind][]Observer),
		fired:     make(map[EventKind]bool),
		logID:     logID,
	}
}

// isOnce reports whether the category fires at most once per connection.
func isOnce(kind EventKind) bool {
	switch kind {
	case EventClose, EventEnd, EventError:
		return true
	}
	return false
}

func (d *dispatcher) on(kind EventKind, fn Observer) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.observers[kind] = append(d.observers[kind], fn)
	d.mu.Unlock()
}

func (d *dispatcher) emit(ev Event) {
	d.mu.Lock()
	if isOnce(ev.Kind) {
		if d.fired[ev.Kind] {
			d.mu.Unlock()
			return
		}
		d.fired[ev.Kind] = true
	}
	obs := append([]Observer(nil), d.observers[ev.Kind]...)
	d.mu.Unlock()

	for _, fn := range obs {
		d.call(ev, fn)
	}
}

func (d *dispatcher) call(ev Event, fn Observer) {
	defer func() {
		if r := recover(); r != nil {
			warnLog(d.logID, "", "event observer panicked", "event", string(ev.Kind), "panic", fmt.Sprint(r))
		}
	}()
	fn(ev)
}
