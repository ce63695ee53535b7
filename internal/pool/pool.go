package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"mcprt/internal/transport"
)

// Connector opens a new connection for name. The pool calls it at most once
// per cached entry; the orchestrator (which knows about transport fallback
// and OAuth promotion) supplies it.
type Connector func(ctx context.Context, name string) (transport.MCPClient, error)

// lazyFuture memoizes a single connection attempt. sync.Once.Do blocks every
// concurrent caller until the first one's connect function returns, which is
// exactly the "first caller pays, everyone else waits" behavior the pool
// needs -- no separate condition variable or channel is required.
type lazyFuture struct {
	once    sync.Once
	started atomic.Bool
	value   transport.MCPClient
	err     error
}

func (f *lazyFuture) get(connect func() (transport.MCPClient, error)) (transport.MCPClient, error) {
	f.started.Store(true)
	f.once.Do(func() {
		f.value, f.err = connect()
	})
	return f.value, f.err
}

// resultIfStarted returns the future's result without starting a connect
// attempt, for callers (Close) that must never invoke a nil connector.
// ok is false if no caller has ever called get on this future.
func (f *lazyFuture) resultIfStarted() (transport.MCPClient, error, bool) {
	if !f.started.Load() {
		return nil, nil, false
	}
	f.once.Do(func() {}) // blocks until any in-flight connect finishes
	return f.value, f.err, true
}

// Pool caches one lazyFuture per server name.
type Pool struct {
	mu      sync.Mutex
	futures map[string]*lazyFuture
}

// New creates an empty Pool.
func New() *Pool {
	return &Pool{futures: make(map[string]*lazyFuture)}
}

// GetOptions controls a single Get call.
type GetOptions struct {
	// SkipCache bypasses the pool entirely: connect is called directly and
	// the result is never stored or reused. Used for one-off operations
	// (e.g. listTools with autoAuthorize=false) that must not pollute the
	// shared cache with a connection nobody else should reuse.
	SkipCache bool
}

// Get returns the cached connection for name, connecting via connect if
// none exists yet. On failure the entry is removed under the map lock so
// the next call gets a fresh attempt instead of a cached error.
func (p *Pool) Get(ctx context.Context, name string, connect Connector, opts GetOptions) (transport.MCPClient, error) {
	thunk := func() (transport.MCPClient, error) { return connect(ctx, name) }

	if opts.SkipCache {
		return thunk()
	}

	future := p.futureFor(name)
	client, err := future.get(thunk)
	if err != nil {
		p.evictIfSame(name, future)
		return nil, err
	}
	return client, nil
}

func (p *Pool) futureFor(name string) *lazyFuture {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f, ok := p.futures[name]; ok {
		return f
	}
	f := &lazyFuture{}
	p.futures[name] = f
	return f
}

// evictIfSame removes name's cached future, but only if it is still the
// exact future that just failed -- a concurrent Close+reconnect may have
// already replaced it with a new attempt, which must not be discarded.
func (p *Pool) evictIfSame(name string, failed *lazyFuture) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.futures[name] == failed {
		delete(p.futures, name)
	}
}

// Close closes and evicts the cached connection for name, if any. Safe to
// call whether or not a connection exists, and safe to call concurrently
// with Get -- a Get already past the once.Do for this entry gets its error
// from Close here; a Get that hasn't started yet creates a fresh future.
func (p *Pool) Close(name string) error {
	p.mu.Lock()
	future, ok := p.futures[name]
	if ok {
		delete(p.futures, name)
	}
	p.mu.Unlock()

	if !ok {
		return nil
	}

	client, err, started := future.resultIfStarted()
	if !started || err != nil || client == nil {
		return nil
	}
	return client.Close()
}

// CloseAll closes every cached connection, collecting but not short-circuiting
// on individual close errors.
func (p *Pool) CloseAll() []error {
	p.mu.Lock()
	names := make([]string, 0, len(p.futures))
	for name := range p.futures {
		names = append(names, name)
	}
	p.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := p.Close(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Names returns the server names with a cached (attempted) connection.
func (p *Pool) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.futures))
	for name := range p.futures {
		names = append(names, name)
	}
	return names
}
