package reaper

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"mcprt/internal/transport"
	"mcprt/pkg/logging"
)

// Escalating termination timeouts. Each stage is independently bounded so a
// misbehaving child can never wedge shutdown.
const (
	tSoftClose = 700 * time.Millisecond
	tSIGTERM   = 700 * time.Millisecond
	tSIGKILL   = 500 * time.Millisecond

	pollInterval = 25 * time.Millisecond
)

// stdioLogsEnv, when set to "1", forces the buffered stderr dump on close
// regardless of exit status.
const stdioLogsEnv = "MCPORTER_STDIO_LOGS"

// child tracks the reapable state for one connected server.
type child struct {
	name    string
	command string
	client  transport.MCPClient
	ring    *stderrRing
	pid     int
	havePid bool
}

// Manager attaches stderr capture to stdio clients at connect time and
// performs escalating termination at close time. It is safe for concurrent
// use; a Manager is owned by one Runtime instance, matching every other
// subsystem's instance-scoped state.
type Manager struct {
	log *logging.Logger

	mu       sync.Mutex
	children map[string]*child
}

// New creates a Manager that logs through log.
func New(log *logging.Logger) *Manager {
	if log == nil {
		log = logging.Discard()
	}
	return &Manager{log: log, children: make(map[string]*child)}
}

// Attach records client as the connection for name and, if it exposes a
// process handle and/or stderr stream, starts tracking them. command is
// used only for the dump heading; callers with no meaningful command
// (HTTP/SSE clients) may pass the server name again.
func (m *Manager) Attach(name, command string, client transport.MCPClient) {
	c := &child{name: name, command: command, client: client, ring: newStderrRing()}

	if ph, ok := client.(transport.ProcessHandle); ok {
		if pid, ok := ph.Pid(); ok {
			c.pid = pid
			c.havePid = true
		}
	}

	if sr, ok := client.(transport.StderrReader); ok {
		if stderr, ok := sr.GetStderr(); ok {
			go c.ring.drain(stderr)
		}
	}

	m.mu.Lock()
	m.children[name] = c
	m.mu.Unlock()
}

// Close runs the escalating termination sequence for name's connection, if
// Attach was ever called for it, and removes it from tracking. A name that
// was never attached is a no-op returning nil -- the façade's Close must
// remain safe to call on servers that were never connected.
func (m *Manager) Close(name string) error {
	m.mu.Lock()
	c, ok := m.children[name]
	if ok {
		delete(m.children, name)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return m.reap(c)
}

// CloseAll reaps every tracked connection, collecting but not
// short-circuiting on individual errors.
func (m *Manager) CloseAll() []error {
	m.mu.Lock()
	names := make([]string, 0, len(m.children))
	for name := range m.children {
		names = append(names, name)
	}
	m.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := m.Close(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (m *Manager) reap(c *child) error {
	closeErr := closeWithTimeout(c.client, tSoftClose)

	clean := closeErr == nil
	if c.havePid && anyAlive(c.pid) {
		clean = false
		m.log.Debug("reaper", "%s: still alive after soft close, sending SIGTERM to pid %d", c.name, c.pid)
		signalTree(c.pid, syscall.SIGTERM)

		if !waitGone(c.pid, tSIGTERM) {
			m.log.Debug("reaper", "%s: still alive after SIGTERM, sending SIGKILL to pid %d", c.name, c.pid)
			signalTree(c.pid, syscall.SIGKILL)

			if !waitGone(c.pid, tSIGKILL) {
				m.log.Warn("reaper", "%s: process tree rooted at pid %d still alive after SIGKILL", c.name, c.pid)
			}
		}
	}

	m.dumpIfNeeded(c, clean)
	return closeErr
}

func (m *Manager) dumpIfNeeded(c *child, clean bool) {
	if clean && os.Getenv(stdioLogsEnv) != "1" {
		return
	}
	dump := c.ring.join()
	if dump == "" {
		return
	}
	m.log.Warn("reaper", "stderr from %q (%s):\n%s", c.name, c.command, dump)
}

// closeWithTimeout calls client.Close in a goroutine and waits up to timeout
// for it to return. On timeout it returns without waiting further; the
// goroutine is left to finish on its own, since Close has no way to be
// cancelled from outside once started.
func closeWithTimeout(client transport.MCPClient, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- client.Close() }()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("close did not complete within %v", timeout)
	}
}

// tree returns pid and every descendant, ordered so that descendants appear
// before their ancestor (a post-order walk), matching the requirement to
// signal descendants before the root.
func tree(pid int) []*process.Process {
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}

	var all []*process.Process
	var walk func(p *process.Process)
	walk = func(p *process.Process) {
		children, err := p.Children()
		if err == nil {
			for _, child := range children {
				walk(child)
			}
		}
		all = append(all, p)
	}
	walk(root)
	return all
}

func signalTree(pid int, sig syscall.Signal) {
	for _, p := range tree(pid) {
		_ = p.SendSignal(sig)
	}
}

func anyAlive(pid int) bool {
	for _, p := range tree(pid) {
		if running, err := p.IsRunning(); err == nil && running {
			return true
		}
	}
	return false
}

func waitGone(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !anyAlive(pid) {
			return true
		}
		time.Sleep(pollInterval)
	}
	return !anyAlive(pid)
}
