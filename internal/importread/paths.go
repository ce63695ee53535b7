package importread

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// candidatePaths returns the ordered list of files to probe for a given
// import kind, combining project-root locations with per-OS user config
// locations. Resolution of the latter is delegated to xdg.ConfigHome, which
// already knows the right base directory per platform, rather than
// switching on runtime.GOOS by hand.
func candidatePaths(kind Kind, root string) []string {
	home, _ := os.UserHomeDir()
	cfg := xdg.ConfigHome

	switch kind {
	case KindCursor:
		return nonEmpty(
			filepath.Join(root, ".cursor", "mcp.json"),
			filepath.Join(cfg, "Cursor", "User", "mcp.json"),
		)
	case KindClaudeCode:
		return nonEmpty(
			filepath.Join(root, ".claude", "mcp.json"),
			joinHome(home, ".claude", "mcp.json"),
			joinHome(home, ".claude.json"),
		)
	case KindClaudeDesktop:
		return nonEmpty(
			filepath.Join(cfg, "Claude", "claude_desktop_config.json"),
		)
	case KindCodex:
		return nonEmpty(
			filepath.Join(root, ".codex", "config.toml"),
			joinHome(home, ".codex", "config.toml"),
		)
	case KindWindsurf:
		return nonEmpty(
			filepath.Join(cfg, "Codeium", "windsurf", "mcp_config.json"),
			joinHome(home, ".codeium", "windsurf", "mcp_config.json"),
		)
	case KindVSCode:
		return nonEmpty(
			filepath.Join(cfg, "Code", "User", "mcp.json"),
			filepath.Join(cfg, "Code - Insiders", "User", "mcp.json"),
		)
	default:
		return nil
	}
}

func joinHome(home string, elem ...string) string {
	if home == "" {
		return ""
	}
	return filepath.Join(append([]string{home}, elem...)...)
}

func nonEmpty(paths ...string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
