package importread

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// parseCodexEntries reads Codex's `[mcp_servers.<name>]` TOML tables.
func parseCodexEntries(content []byte) (map[string]RawEntry, error) {
	var doc map[string]any
	if err := toml.Unmarshal(content, &doc); err != nil {
		return nil, err
	}

	section, ok := doc["mcp_servers"]
	if !ok {
		return map[string]RawEntry{}, nil
	}
	table, ok := section.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("mcp_servers is not a table")
	}

	out := make(map[string]RawEntry, len(table))
	for name, raw := range table {
		fields, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("mcp_servers.%s is not a table", name)
		}
		out[name] = rawEntryFromCodexTable(fields)
	}
	return out, nil
}

func rawEntryFromCodexTable(fields map[string]any) RawEntry {
	e := RawEntry{
		Description:      codexString(fields, "description"),
		BaseURL:           codexFirstString(fields, "url", "base_url", "baseUrl"),
		Command:           codexFirstString(fields, "command", "executable"),
		Args:              codexStringSlice(fields["args"]),
		Env:               codexStringMap(fields["env"]),
		Headers:           codexStringMap(fields["headers"]),
		Auth:              codexString(fields, "auth"),
		TokenCacheDir:     codexString(fields, "tokenCacheDir"),
		ClientName:        codexString(fields, "clientName"),
		OAuthRedirectURL:  codexString(fields, "oauthRedirectUrl"),
		Lifecycle:         codexString(fields, "lifecycle"),
	}

	if bearer := codexString(fields, "bearerToken"); bearer != "" {
		if e.Headers == nil {
			e.Headers = map[string]string{}
		}
		e.Headers["Authorization"] = "Bearer " + bearer
	}

	return e
}

func codexString(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func codexFirstString(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := codexString(fields, k); s != "" {
			return s
		}
	}
	return ""
}

func codexStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		if s == "" {
			return nil
		}
		return splitShellWords(s)
	default:
		return nil
	}
}

func codexStringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}
