package definition

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mcprt/internal/importread"
)

const configEnvVar = "MCPORTER_CONFIG"

// WarnFunc receives a human-readable warning, mirroring the teacher's
// logging.Warn(subsystem, format, args...) call shape without taking a hard
// dependency on pkg/logging from this package.
type WarnFunc func(format string, args ...any)

// Loader resolves the primary config file, reads every configured import,
// and merges the result into a set of ServerDefinitions. Its warn-once set
// is scoped to the Loader instance (hence to the Runtime that owns it), not
// a package-level variable, so two Runtimes in the same process never share
// state.
type Loader struct {
	explicitPath string
	root         string
	warn         WarnFunc

	mu       sync.Mutex
	warnOnce map[string]struct{}
}

// Option configures a Loader.
type Option func(*Loader)

// WithExplicitConfigPath pins the primary config file; if it is missing or
// fails to parse, Load fails instead of falling back to defaults.
func WithExplicitConfigPath(path string) Option {
	return func(l *Loader) { l.explicitPath = path }
}

// WithRoot sets the project root used for root-relative candidate paths.
// Defaults to the process working directory.
func WithRoot(root string) Option {
	return func(l *Loader) { l.root = root }
}

// WithWarnFunc routes warnings (e.g. an implicit config file that failed to
// parse) through the caller's logger instead of discarding them.
func WithWarnFunc(fn WarnFunc) Option {
	return func(l *Loader) { l.warn = fn }
}

// NewLoader builds a Loader. With no options, the root is the process
// working directory and warnings are discarded.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		warn:     func(string, ...any) {},
		warnOnce: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.root == "" {
		if wd, err := os.Getwd(); err == nil {
			l.root = wd
		}
	}
	return l
}

func (l *Loader) warnOnceFor(key string, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, seen := l.warnOnce[key]; seen {
		return
	}
	l.warnOnce[key] = struct{}{}
	l.warn(format, args...)
}

// Load resolves the primary config, reads every import in order, merges
// first-wins across imports and then overlays local entries, and returns
// the normalized definition set keyed by name.
func (l *Loader) Load() (map[string]ServerDefinition, error) {
	path, explicit, err := l.resolvePrimaryConfigPath()
	if err != nil {
		return nil, err
	}

	primary, baseDir, err := l.readPrimaryFile(path, explicit)
	if err != nil {
		return nil, err
	}

	order, err := l.importOrder(primary)
	if err != nil {
		return nil, err
	}

	defs := make(map[string]ServerDefinition)

	for _, kind := range order {
		entries, err := importread.Read(kind, l.root)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if _, exists := defs[e.Name]; exists {
				continue // first-wins across imports
			}
			defs[e.Name] = normalize(e.Name, e.Raw, e.BaseDir, Source{Kind: SourceImport, Path: e.Path})
		}
	}

	if primary != nil {
		for name, raw := range primary.entries {
			defs[name] = normalize(name, raw, baseDir, Source{Kind: SourceLocal, Path: path})
		}
	}

	return defs, nil
}

// resolvePrimaryConfigPath implements the precedence chain: explicit path →
// MCPORTER_CONFIG → <root>/config/mcporter.json → <home>/.mcporter/mcporter.{json,jsonc}
// → no file at all. explicit is true for the first two (a missing or
// unparsable file there is fatal); false for the guessed default locations.
func (l *Loader) resolvePrimaryConfigPath() (path string, explicit bool, err error) {
	if l.explicitPath != "" {
		return l.explicitPath, true, nil
	}
	if envPath, ok := os.LookupEnv(configEnvVar); ok && envPath != "" {
		return envPath, true, nil
	}

	if candidate := filepath.Join(l.root, "config", "mcporter.json"); fileExists(candidate) {
		return candidate, false, nil
	}

	if home, herr := os.UserHomeDir(); herr == nil {
		for _, ext := range []string{"json", "jsonc"} {
			candidate := filepath.Join(home, ".mcporter", "mcporter."+ext)
			if fileExists(candidate) {
				return candidate, false, nil
			}
		}
	}

	return "", false, nil
}

func (l *Loader) readPrimaryFile(path string, explicit bool) (*primaryFile, string, error) {
	if path == "" {
		return nil, "", nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if explicit {
				return nil, "", &ConfigParseError{Path: path, Err: err}
			}
			return nil, "", nil
		}
		return nil, "", err
	}

	parsed, err := parsePrimaryFile(content)
	if err != nil {
		if explicit {
			return nil, "", &ConfigParseError{Path: path, Err: err}
		}
		l.warnOnceFor(path, "failed to parse config %s, continuing with empty configuration: %v", path, err)
		return nil, "", nil
	}

	return parsed, filepath.Dir(path), nil
}

// importOrder determines which import kinds to read, and in what order.
func (l *Loader) importOrder(primary *primaryFile) ([]importread.Kind, error) {
	if primary == nil || !primary.hasImports {
		return importread.DefaultOrder, nil
	}
	if len(primary.imports) == 0 {
		return nil, nil // imports: [] disables imports entirely
	}

	seen := make(map[importread.Kind]struct{}, len(primary.imports))
	order := make([]importread.Kind, 0, len(primary.imports))
	for _, name := range primary.imports {
		kind := importread.Kind(name)
		if !importread.ValidKind(kind) {
			return nil, fmt.Errorf("unrecognized import kind %q", name)
		}
		if _, dup := seen[kind]; dup {
			continue
		}
		seen[kind] = struct{}{}
		order = append(order, kind)
	}
	for _, kind := range importread.DefaultOrder {
		if _, already := seen[kind]; !already {
			order = append(order, kind)
		}
	}
	return order, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
