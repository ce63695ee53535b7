package importread

import (
	"os"
	"path/filepath"
)

// Read walks the candidate files for kind, in order, and parses the first
// one that exists. A file that exists but fails to parse is a *ParseError;
// if no candidate exists, Read returns no entries and no error.
func Read(kind Kind, root string) ([]Entry, error) {
	for _, path := range candidatePaths(kind, root) {
		content, err := os.ReadFile(path)
		if err != nil {
			// Missing or unreadable: try the next candidate for this kind.
			continue
		}

		raws, perr := parseByKind(kind, content)
		if perr != nil {
			return nil, &ParseError{Kind: kind, Path: path, Err: perr}
		}

		baseDir := filepath.Dir(path)
		entries := make([]Entry, 0, len(raws))
		for name, raw := range raws {
			entries = append(entries, Entry{
				Name:    name,
				Raw:     raw,
				Kind:    kind,
				Path:    path,
				BaseDir: baseDir,
			})
		}
		return entries, nil
	}
	return nil, nil
}

func parseByKind(kind Kind, content []byte) (map[string]RawEntry, error) {
	if kind == KindCodex {
		return parseCodexEntries(content)
	}
	return ParseJSONEntries(content)
}
