package cli

import (
	"io"
	"sync"

	"github.com/martinemde/codeagent/agentloop"
)

// lockedWriter serializes writes from the event printer and the command.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// eventPrinter renders the event stream on its own goroutine. Flush blocks
// until every event already emitted has been rendered, so a run's report
// always follows its events.
type eventPrinter struct {
	out    io.Writer
	quiet  bool
	events <-chan agentloop.Event
	flush  chan chan struct{}
	done   chan struct{}
}

func startEventPrinter(out io.Writer, events <-chan agentloop.Event, quiet bool) *eventPrinter {
	p := &eventPrinter{
		out:    out,
		quiet:  quiet,
		events: events,
		flush:  make(chan chan struct{}),
		done:   make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *eventPrinter) loop() {
	defer close(p.done)
	for {
		select {
		case ev, ok := <-p.events:
			if !ok {
				return
			}
			p.render(ev)
		case ack := <-p.flush:
			open := p.drain()
			close(ack)
			if !open {
				return
			}
		}
	}
}

// drain renders buffered events and reports whether the stream is still open.
func (p *eventPrinter) drain() bool {
	for {
		select {
		case ev, ok := <-p.events:
			if !ok {
				return false
			}
			p.render(ev)
		default:
			return true
		}
	}
}

func (p *eventPrinter) render(ev agentloop.Event) {
	if !p.quiet {
		renderEvent(p.out, ev)
	}
}

// Flush waits for the buffered events to be rendered.
func (p *eventPrinter) Flush() {
	ack := make(chan struct{})
	select {
	case p.flush <- ack:
		<-ack
	case <-p.done:
	}
}

// Wait blocks until the stream is closed and fully rendered.
func (p *eventPrinter) Wait() {
	<-p.done
}
