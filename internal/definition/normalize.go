package definition

import (
	"os"
	"path/filepath"

	"mcprt/internal/importread"
)

const defaultAcceptHeader = "application/json, text/event-stream"

// normalize turns one raw entry (whichever shape it was read from) into a
// ServerDefinition. Normalization is idempotent: feeding the output of one
// normalize call back through another normalize call (via a round-tripped
// RawEntry) produces the same definition.
func normalize(name string, raw importread.RawEntry, baseDir string, source Source) ServerDefinition {
	def := ServerDefinition{
		Name:             name,
		Description:      raw.Description,
		Env:               raw.Env,
		Auth:              normalizeAuth(raw.Auth),
		TokenCacheDir:     raw.TokenCacheDir,
		ClientName:        raw.ClientName,
		OAuthRedirectURL:  raw.OAuthRedirectURL,
		Source:            source,
		Lifecycle:         raw.Lifecycle,
	}

	if raw.BaseURL != "" {
		def.Command = Command{
			Kind:    CommandHTTP,
			URL:     raw.BaseURL,
			Headers: withDefaultAcceptHeader(raw.Headers),
		}
	} else {
		def.Command = Command{
			Kind:    CommandStdio,
			Command: raw.Command,
			Args:    normalizeArgs(raw.Args),
			Cwd:     baseDir,
		}
	}

	if def.Auth == "oauth" && def.TokenCacheDir == "" {
		def.TokenCacheDir = DefaultTokenCacheDir(name)
	}

	return def
}

// normalizeArgs turns a nil args slice into an empty, non-nil slice so that
// normalize(normalize(e)) is byte-for-byte idempotent regardless of whether
// the source omitted "args" or supplied an empty array.
func normalizeArgs(args []string) []string {
	if args == nil {
		return []string{}
	}
	return args
}

// normalizeAuth discards any value other than the single recognized one.
func normalizeAuth(auth string) string {
	if auth == "oauth" {
		return "oauth"
	}
	return ""
}

func withDefaultAcceptHeader(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	if _, ok := out["Accept"]; !ok {
		out["Accept"] = defaultAcceptHeader
	}
	return out
}

// DefaultTokenCacheDir is the token cache location assigned to a server
// whose definition declares oauth but names no cache dir of its own --
// during normal loading here, or during S3 promotion in the orchestrator,
// which has no config-relative directory of its own to default from.
func DefaultTokenCacheDir(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".mcporter", name)
}
