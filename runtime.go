// Package mcprt is the public entry point: a long-lived Runtime that merges
// server definitions from configuration and import sources, pools connected
// MCP clients, and guarantees their clean teardown. It composes, in order,
// internal/definition (merging), internal/pool (memoized connections),
// internal/orchestrator (transport/OAuth state machine), and internal/reaper
// (child-process lifecycle) behind the operations below.
package mcprt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"mcprt/internal/definition"
	"mcprt/internal/orchestrator"
	"mcprt/internal/pool"
	"mcprt/internal/reaper"
	"mcprt/internal/transport"
	"mcprt/pkg/logging"
)

// DefaultListTimeout and DefaultCallTimeout are the per-operation cost
// budgets used when MCPORTER_LIST_TIMEOUT/MCPORTER_CALL_TIMEOUT are unset.
const (
	DefaultListTimeout = 30 * time.Second
	DefaultCallTimeout = 30 * time.Second
)

const (
	listTimeoutEnv = "MCPORTER_LIST_TIMEOUT"
	callTimeoutEnv = "MCPORTER_CALL_TIMEOUT"
	logLevelEnv    = "MCPORTER_LOG_LEVEL"
)

// ConnectOptions re-exports the orchestrator's connect tuning so callers
// never need to import an internal package.
type ConnectOptions = orchestrator.ConnectOptions

// Runtime is the merged definition registry plus the connection pool and
// subsystems that back it. Build one with New; it owns no goroutines beyond
// the ones its subsystems start lazily on connect, so there's no separate
// Start step.
type Runtime struct {
	log  *logging.Logger
	pool *pool.Pool
	orch *orchestrator.Orchestrator
	reap *reaper.Manager

	listTimeout time.Duration
	callTimeout time.Duration

	mu   sync.RWMutex
	defs map[string]definition.ServerDefinition
}

// Option configures a Runtime at construction time.
type Option func(*runtimeConfig)

type runtimeConfig struct {
	configPath  string
	root        string
	log         *logging.Logger
	listTimeout time.Duration
	callTimeout time.Duration
	authPrompt  orchestrator.AuthPrompt
}

// WithConfigPath pins the primary config file, matching
// definition.WithExplicitConfigPath.
func WithConfigPath(path string) Option {
	return func(c *runtimeConfig) { c.configPath = path }
}

// WithRoot sets the project root used to resolve root-relative import paths
// and the default config location.
func WithRoot(root string) Option {
	return func(c *runtimeConfig) { c.root = root }
}

// WithLogger overrides the Runtime's logger. Every subsystem the Runtime
// constructs shares this one instance.
func WithLogger(log *logging.Logger) Option {
	return func(c *runtimeConfig) { c.log = log }
}

// WithListTimeout overrides the per-server list budget (listTools,
// listResources). The budget applies on top of any deadline the caller's
// context already carries; whichever ends first wins.
func WithListTimeout(d time.Duration) Option {
	return func(c *runtimeConfig) { c.listTimeout = d }
}

// WithCallTimeout overrides the per-tool-call budget.
func WithCallTimeout(d time.Duration) Option {
	return func(c *runtimeConfig) { c.callTimeout = d }
}

// WithAuthPrompt overrides how an OAuth authorization URL is surfaced to
// the operator during promotion.
func WithAuthPrompt(fn orchestrator.AuthPrompt) Option {
	return func(c *runtimeConfig) { c.authPrompt = fn }
}

// New loads server definitions and builds a Runtime ready to connect,
// list, and call tools against them.
func New(opts ...Option) (*Runtime, error) {
	cfg := &runtimeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.log == nil {
		cfg.log = logging.New(logging.ParseLevel(os.Getenv(logLevelEnv)), os.Stderr)
	}
	if cfg.listTimeout == 0 {
		cfg.listTimeout = durationFromEnv(listTimeoutEnv, DefaultListTimeout)
	}
	if cfg.callTimeout == 0 {
		cfg.callTimeout = durationFromEnv(callTimeoutEnv, DefaultCallTimeout)
	}

	loaderOpts := []definition.Option{
		definition.WithWarnFunc(func(format string, args ...any) { cfg.log.Warn("runtime", format, args...) }),
	}
	if cfg.configPath != "" {
		loaderOpts = append(loaderOpts, definition.WithExplicitConfigPath(cfg.configPath))
	}
	if cfg.root != "" {
		loaderOpts = append(loaderOpts, definition.WithRoot(cfg.root))
	}

	defs, err := definition.NewLoader(loaderOpts...).Load()
	if err != nil {
		return nil, fmt.Errorf("loading server definitions: %w", err)
	}

	var orchOpts []orchestrator.Option
	if cfg.authPrompt != nil {
		orchOpts = append(orchOpts, orchestrator.WithAuthPrompt(cfg.authPrompt))
	}

	return &Runtime{
		log:         cfg.log,
		pool:        pool.New(),
		orch:        orchestrator.New(cfg.log, orchOpts...),
		reap:        reaper.New(cfg.log),
		listTimeout: cfg.listTimeout,
		callTimeout: cfg.callTimeout,
		defs:        defs,
	}, nil
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// ListServers returns every registered server name, sorted.
func (r *Runtime) ListServers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetDefinitions returns a snapshot of every registered definition, keyed
// by name. Mutating the returned map never affects the Runtime's registry.
func (r *Runtime) GetDefinitions() map[string]definition.ServerDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]definition.ServerDefinition, len(r.defs))
	for name, def := range r.defs {
		out[name] = def
	}
	return out
}

// GetDefinition returns the named server's definition, or UnknownServerError.
func (r *Runtime) GetDefinition(name string) (definition.ServerDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	if !ok {
		return definition.ServerDefinition{}, &definition.UnknownServerError{Name: name}
	}
	return def, nil
}

// RegisterOptions controls RegisterDefinition.
type RegisterOptions struct {
	// Overwrite allows replacing an existing definition with the same name.
	// Without it, registering an already-known name is a DuplicateServerError.
	Overwrite bool
}

// RegisterDefinition adds def to the registry, normally for servers
// constructed at a CLI/API boundary rather than loaded from config.
func (r *Runtime) RegisterDefinition(def definition.ServerDefinition, opts RegisterOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Name]; exists && !opts.Overwrite {
		return &definition.DuplicateServerError{Name: def.Name}
	}
	r.defs[def.Name] = def
	return nil
}

// ServerToolInfo names the server a tool came from alongside the tool
// itself, since callers working across many servers need both.
type ServerToolInfo struct {
	Server string   `json:"server"`
	Tool   mcp.Tool `json:"tool"`
}

// ListToolsOptions controls ListTools.
type ListToolsOptions struct {
	// IncludeSchema keeps each tool's input schema in the result. Off by
	// default to keep a multi-server listing compact; the schema is still
	// fetched from the server either way, just stripped before return.
	IncludeSchema bool

	// DisableAutoAuthorize skips OAuth promotion for this call: an
	// unauthorized server returns its connect error immediately instead of
	// starting an interactive flow, and the probe connection is never
	// pooled. This is a dedicated field rather than a bare "autoAuthorize
	// bool" so its zero value (false) means "authorize normally", matching
	// ConnectOptions.DisableOAuth's rationale.
	DisableAutoAuthorize bool
}

// ListTools returns every tool the named server exposes.
func (r *Runtime) ListTools(ctx context.Context, name string, opts ListToolsOptions) ([]ServerToolInfo, error) {
	def, err := r.GetDefinition(name)
	if err != nil {
		return nil, err
	}

	return withBudget(ctx, r, name, r.listTimeout, func(cctx context.Context) ([]ServerToolInfo, error) {
		var client transport.MCPClient
		var err error
		if opts.DisableAutoAuthorize {
			client, err = r.connectEphemeral(cctx, def)
			if client != nil {
				defer func() { _ = client.Close() }()
			}
		} else {
			client, err = r.getOrConnect(cctx, def, orchestrator.ConnectOptions{})
		}
		if err != nil {
			return nil, err
		}

		tools, err := client.ListTools(cctx)
		if err != nil {
			return nil, err
		}
		return toServerToolInfo(name, tools, opts.IncludeSchema), nil
	})
}

func toServerToolInfo(server string, tools []mcp.Tool, includeSchema bool) []ServerToolInfo {
	out := make([]ServerToolInfo, len(tools))
	for i, tool := range tools {
		if !includeSchema {
			tool.InputSchema = mcp.ToolInputSchema{}
		}
		out[i] = ServerToolInfo{Server: server, Tool: tool}
	}
	return out
}

// CallToolOptions controls CallTool.
type CallToolOptions struct {
	Args map[string]any
}

// CallTool invokes one tool on the named server, connecting (and, if
// needed, promoting to OAuth) as part of the call.
func (r *Runtime) CallTool(ctx context.Context, name, tool string, opts CallToolOptions) (*mcp.CallToolResult, error) {
	def, err := r.GetDefinition(name)
	if err != nil {
		return nil, err
	}

	return withBudget(ctx, r, name, r.callTimeout, func(cctx context.Context) (*mcp.CallToolResult, error) {
		client, err := r.getOrConnect(cctx, def, orchestrator.ConnectOptions{})
		if err != nil {
			return nil, err
		}
		return client.CallTool(cctx, tool, opts.Args)
	})
}

// ListResources returns every resource the named server exposes.
func (r *Runtime) ListResources(ctx context.Context, name string) ([]mcp.Resource, error) {
	def, err := r.GetDefinition(name)
	if err != nil {
		return nil, err
	}

	return withBudget(ctx, r, name, r.listTimeout, func(cctx context.Context) ([]mcp.Resource, error) {
		client, err := r.getOrConnect(cctx, def, orchestrator.ConnectOptions{})
		if err != nil {
			return nil, err
		}
		return client.ListResources(cctx)
	})
}

// Connect returns the pooled connection for name, establishing one if
// needed. Most callers should prefer ListTools/CallTool/ListResources,
// which connect implicitly; Connect is for callers that need the raw
// client (e.g. to call Ping, or a capability this façade doesn't wrap).
func (r *Runtime) Connect(ctx context.Context, name string, opts ConnectOptions) (transport.MCPClient, error) {
	def, err := r.GetDefinition(name)
	if err != nil {
		return nil, err
	}
	return r.getOrConnect(ctx, def, opts)
}

// getOrConnect is the shared pool-backed connect path: on a cache miss it
// runs the orchestrator's state machine and hands the result to the reaper
// before returning it, so every pooled stdio client is tracked from the
// moment it's first observed.
func (r *Runtime) getOrConnect(ctx context.Context, def definition.ServerDefinition, opts orchestrator.ConnectOptions) (transport.MCPClient, error) {
	connector := func(ctx context.Context, name string) (transport.MCPClient, error) {
		client, promoted, err := r.orch.Connect(ctx, def, opts)
		if err != nil {
			return nil, err
		}
		if promoted != nil {
			if err := r.RegisterDefinition(*promoted, RegisterOptions{Overwrite: true}); err != nil {
				r.log.Warn("runtime", "%s: failed to register promoted definition: %v", name, err)
			}
		}
		r.reap.Attach(name, commandLabel(def), client)
		return client, nil
	}
	return r.pool.Get(ctx, def.Name, connector, pool.GetOptions{})
}

// connectEphemeral opens a one-off, never-pooled, never-reaped connection
// with OAuth promotion disabled, for autoAuthorize=false listTools calls.
// The caller is responsible for closing the returned client.
func (r *Runtime) connectEphemeral(ctx context.Context, def definition.ServerDefinition) (transport.MCPClient, error) {
	connector := func(ctx context.Context, name string) (transport.MCPClient, error) {
		client, _, err := r.orch.Connect(ctx, def, orchestrator.ConnectOptions{DisableOAuth: true})
		return client, err
	}
	return r.pool.Get(ctx, def.Name, connector, pool.GetOptions{SkipCache: true})
}

func commandLabel(def definition.ServerDefinition) string {
	if def.Command.Kind == definition.CommandStdio {
		return def.Command.Command
	}
	return def.Command.URL
}

// Close tears down the named server's pooled connection, if any. For a
// stdio server this runs the reaper's escalating termination; for any
// other transport it's an ordinary close. Safe to call on a server that
// was never connected.
func (r *Runtime) Close(name string) error {
	reapErr := r.reap.Close(name)
	poolErr := r.pool.Close(name)
	return errors.Join(reapErr, poolErr)
}

// CloseAll tears down every pooled connection, collecting but not
// short-circuiting on individual failures.
func (r *Runtime) CloseAll() []error {
	var errs []error
	errs = append(errs, r.reap.CloseAll()...)
	errs = append(errs, r.pool.CloseAll()...)
	return errs
}

// withBudget bounds fn by timeout (narrowing ctx's deadline if it's already
// tighter) and, if fn's failure was that deadline rather than something
// fn itself returned, closes the connection so a wedged transport can't
// leak past the call that timed out.
func withBudget[T any](ctx context.Context, r *Runtime, name string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := fn(cctx)
	if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		_ = r.Close(name)
	}
	return result, err
}
