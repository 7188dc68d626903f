package main

import (
	"fmt"
	"io"
	"sync"

	"earmark/internal/monitor"
)

const clearLine = "\r\033[K"

// progressPrinter reports non-terminal job updates on stderr. On a terminal
// it rewrites one line; otherwise it prints each distinct update once.
type progressPrinter struct {
	mu    sync.Mutex
	out   io.Writer
	tty   bool
	last  string
	dirty bool
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, tty: isTerminal(out)}
}

func (p *progressPrinter) update(jobID string, state monitor.JobState) {
	line := fmt.Sprintf("%s: %s", jobID, state.State)
	if state.Message != "" {
		line += " - " + state.Message
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if line == p.last {
		return
	}
	p.last = line
	if p.tty {
		fmt.Fprint(p.out, clearLine+line)
		p.dirty = true
		return
	}
	fmt.Fprintln(p.out, line)
}

func (p *progressPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dirty {
		fmt.Fprint(p.out, clearLine)
		p.dirty = false
	}
}
