package imap

import (
	"io"
	"strconv"
	"strings"
	"sync"
)

// pendingCommand is one in-flight command: its tag, wire text, and the
// channel its caller waits on. The untagged collector, when set, is offered
// untagged lines in FIFO order until the command completes.
type pendingCommand struct {
	tag  string
	verb string
	done chan error // buffered; receives nil on OK, *ServerError on NO/BAD

	// collect is called from the read loop for untagged lines; returning
	// true claims the line so older pending commands aren't offered it.
	collect func(l *respLine) bool
}

// pipeline owns tag assignment, the outstanding-command table, and wire
// write serialization. Tags are a monotonically increasing base-36 counter,
// so a tag is never reused while any command is outstanding.
type pipeline struct {
	mu sync.Mutex

	w      io.Writer
	tagNum int64

	pending   map[string]*pendingCommand
	order     []string            // FIFO of outstanding tags
	cancelled map[string]struct{} // tombstones for cancelled tags still on the wire
	failed    error               // set once a fatal error has failed the pipeline

	logID string
}

func newPipeline(w io.Writer, logID string) *pipeline {
	return &pipeline{
		w:         w,
		pending:   make(map[string]*pendingCommand),
		cancelled: make(map[string]struct{}),
		logID:     logID,
	}
}

func (p *pipeline) nextTag() string {
	p.tagNum++
	return "c" + strings.ToUpper(strconv.FormatInt(p.tagNum, 36))
}

// enqueue assigns a tag, registers the pending command, and writes
// "tag text\r\n" to the transport. Writes happen under the pipeline lock so
// no two commands' bytes interleave.
func (p *pipeline) enqueue(text string, collect func(l *respLine) bool) (*pendingCommand, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failed != nil {
		return nil, p.failed
	}

	pc := &pendingCommand{
		tag:     p.nextTag(),
		verb:    commandVerb(text),
		done:    make(chan error, 1),
		collect: collect,
	}

	if _, err := io.WriteString(p.w, pc.tag+" "+text+nl); err != nil {
		return nil, err
	}

	p.pending[pc.tag] = pc
	p.order = append(p.order, pc.tag)
	return pc, nil
}

// writeRaw writes bytes outside the tag discipline (literal payloads, DONE).
// Callers must already own the command whose continuation is being answered.
func (p *pipeline) writeRaw(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.w.Write(b)
	return err
}

// resolve matches a tagged completion to its pending command. NO/BAD resolve
// the waiter with a ServerError; the pipeline itself keeps going. A tag that
// is neither pending nor a cancellation tombstone is a protocol error.
func (p *pipeline) resolve(l *respLine) error {
	p.mu.Lock()
	pc, ok := p.pending[l.Tag]
	if !ok {
		if _, was := p.cancelled[l.Tag]; was {
			delete(p.cancelled, l.Tag)
			p.mu.Unlock()
			debugLog(p.logID, "", "dropping response for cancelled command", "tag", l.Tag)
			return nil
		}
		p.mu.Unlock()
		return protocolErrorf(l.Raw, "tagged response for unknown tag %s", l.Tag)
	}
	p.remove(l.Tag)
	p.mu.Unlock()

	if l.Status == "OK" {
		pc.done <- nil
	} else {
		pc.done <- &ServerError{Status: l.Status, Text: l.Text, Cmd: pc.verb}
	}
	return nil
}

// offerUntagged walks outstanding commands in submission order and lets the
// first interested collector claim the line. Reports whether it was claimed.
func (p *pipeline) offerUntagged(l *respLine) bool {
	p.mu.Lock()
	cmds := make([]*pendingCommand, 0, len(p.order))
	for _, tag := range p.order {
		if pc := p.pending[tag]; pc != nil && pc.collect != nil {
			cmds = append(cmds, pc)
		}
	}
	p.mu.Unlock()

	for _, pc := range cmds {
		if pc.collect(l) {
			return true
		}
	}
	return false
}

// cancel withdraws a pending command. The command may already be on the
// wire; its tag is tombstoned so the eventual tagged response is dropped.
func (p *pipeline) cancel(tag string) bool {
	p.mu.Lock()
	pc, ok := p.pending[tag]
	if !ok {
		p.mu.Unlock()
		return false
	}
	p.remove(tag)
	p.cancelled[tag] = struct{}{}
	p.mu.Unlock()

	pc.done <- &CancelledError{Tag: tag}
	return true
}

// failAll resolves every outstanding command with the same fatal error and
// refuses further submissions.
func (p *pipeline) failAll(err error) {
	p.mu.Lock()
	if p.failed != nil {
		p.mu.Unlock()
		return
	}
	p.failed = err
	cmds := make([]*pendingCommand, 0, len(p.order))
	for _, tag := range p.order {
		if pc := p.pending[tag]; pc != nil {
			cmds = append(cmds, pc)
		}
	}
	p.pending = make(map[string]*pendingCommand)
	p.order = nil
	p.mu.Unlock()

	for _, pc := range cmds {
		pc.done <- err
	}
}

func (p *pipeline) outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// remove drops a tag from pending and order. Caller holds p.mu.
func (p *pipeline) remove(tag string) {
	delete(p.pending, tag)
	for i, t := range p.order {
		if t == tag {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// commandVerb extracts the command name for error reporting, skipping the
// UID prefix.
func commandVerb(text string) string {
	verb, rest := cutField(text)
	verb = strings.ToUpper(verb)
	if verb == "UID" {
		next, _ := cutField(rest)
		return "UID " + strings.ToUpper(next)
	}
	return verb
}
