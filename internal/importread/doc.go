// Package importread reads MCP server entries out of the config files
// maintained by other editors and agent CLIs (Cursor, Claude Code, Claude
// Desktop, Codex, Windsurf, VS Code) so the Definition Loader can merge them
// alongside a project's own configuration.
//
// For each import kind, Read walks an ordered list of candidate file paths
// and uses the first one that both exists and parses. A file that exists but
// fails to parse is a hard error (*ParseError); a missing file simply
// contributes no entries.
package importread
