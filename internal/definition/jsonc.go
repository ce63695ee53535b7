package definition

import (
	"github.com/tailscale/hujson"

	"mcprt/internal/importread"
)

// primaryFile is what a JSON/JSONC primary config file contains.
type primaryFile struct {
	entries map[string]importread.RawEntry
	imports []string
	hasImports bool
}

// parsePrimaryFile parses the primary config file's content (JSON or JSONC;
// comments and trailing commas are tolerated) into its mcpServers map and
// its imports list.
func parsePrimaryFile(content []byte) (*primaryFile, error) {
	v, err := hujson.Parse(content)
	if err != nil {
		return nil, err
	}
	v.Standardize()
	jsonContent := v.Pack()

	entries, err := importread.ParseJSONEntries(jsonContent)
	if err != nil {
		return nil, err
	}

	imports, hasImports, err := parseImportsList(jsonContent)
	if err != nil {
		return nil, err
	}

	return &primaryFile{entries: entries, imports: imports, hasImports: hasImports}, nil
}
