package importread

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// ParseJSONEntries reads the "mcpServers" (preferred) or "servers" (legacy)
// object out of a cursor/claude-code/claude-desktop/windsurf/vscode style
// config file. It is also used directly by internal/definition to parse the
// primary config file's own mcpServers map, since that map uses the same
// RawEntry shape.
func ParseJSONEntries(content []byte) (map[string]RawEntry, error) {
	if !gjson.ValidBytes(content) {
		return nil, fmt.Errorf("not valid JSON")
	}

	root := gjson.ParseBytes(content)
	servers := root.Get("mcpServers")
	if !servers.Exists() {
		servers = root.Get("servers")
	}
	if !servers.Exists() || !servers.IsObject() {
		return map[string]RawEntry{}, nil
	}

	out := make(map[string]RawEntry)
	var parseErr error
	servers.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		entry, err := rawEntryFromJSON(value)
		if err != nil {
			parseErr = fmt.Errorf("entry %q: %w", name, err)
			return false
		}
		out[name] = entry
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

func rawEntryFromJSON(v gjson.Result) (RawEntry, error) {
	if !v.IsObject() {
		return RawEntry{}, fmt.Errorf("expected an object")
	}

	e := RawEntry{
		Description:      firstString(v, "description"),
		BaseURL:           firstString(v, "baseUrl", "base_url", "url", "serverUrl", "server_url"),
		Command:           firstString(v, "command", "executable"),
		Args:              parseArgs(v.Get("args")),
		Env:               parseStringMap(v.Get("env")),
		Headers:           parseStringMap(v.Get("headers")),
		Auth:              firstString(v, "auth"),
		TokenCacheDir:     firstString(v, "tokenCacheDir"),
		ClientName:        firstString(v, "clientName"),
		OAuthRedirectURL:  firstString(v, "oauthRedirectUrl"),
		Lifecycle:         firstString(v, "lifecycle"),
	}

	if bearer := firstString(v, "bearerToken"); bearer != "" {
		if e.Headers == nil {
			e.Headers = map[string]string{}
		}
		e.Headers["Authorization"] = "Bearer " + bearer
	}

	return e, nil
}

// firstString returns the string value of the first existing key among keys.
func firstString(v gjson.Result, keys ...string) string {
	for _, k := range keys {
		if r := v.Get(k); r.Exists() {
			return r.String()
		}
	}
	return ""
}

// parseArgs accepts a JSON array of strings or a single shell-quoted string,
// per the data model's "args accepts string, array-of-strings" rule.
func parseArgs(r gjson.Result) []string {
	if !r.Exists() {
		return nil
	}
	if r.IsArray() {
		var out []string
		r.ForEach(func(_, item gjson.Result) bool {
			out = append(out, item.String())
			return true
		})
		return out
	}
	s := r.String()
	if s == "" {
		return nil
	}
	return splitShellWords(s)
}

func parseStringMap(r gjson.Result) map[string]string {
	if !r.Exists() || !r.IsObject() {
		return nil
	}
	out := make(map[string]string)
	r.ForEach(func(key, value gjson.Result) bool {
		out[key.String()] = value.String()
		return true
	})
	return out
}
