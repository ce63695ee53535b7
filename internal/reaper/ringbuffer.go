package reaper

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// maxStderrLines bounds how much of a child's stderr is retained for the
// dump-on-exit diagnostic. A chatty server must not grow this without bound.
const maxStderrLines = 200

// stderrRing is a fixed-capacity ring of the most recent stderr lines from
// one child. Oldest lines are dropped once capacity is reached.
type stderrRing struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newStderrRing() *stderrRing {
	return &stderrRing{lines: make([]string, maxStderrLines)}
}

func (r *stderrRing) append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// snapshot returns the buffered lines in chronological order.
func (r *stderrRing) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]string, r.next)
		copy(out, r.lines[:r.next])
		return out
	}
	out := make([]string, len(r.lines))
	copy(out, r.lines[r.next:])
	copy(out[len(r.lines)-r.next:], r.lines[:r.next])
	return out
}

// drain copies stderr into the ring one line at a time until EOF or close.
// Non-UTF-8 bytes are passed through as-is by bufio.Scanner; this is a
// diagnostic log, not a protocol channel, so replacement isn't worth it.
func (r *stderrRing) drain(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		r.append(scanner.Text())
	}
}

func (r *stderrRing) join() string {
	return strings.Join(r.snapshot(), "\n")
}
