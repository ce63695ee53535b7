package definition

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// parseImportsList reads the primary config's top-level "imports" key.
// hasImports distinguishes "absent" (use the default order) from "present"
// (possibly empty, which disables imports entirely).
func parseImportsList(jsonContent []byte) (imports []string, hasImports bool, err error) {
	result := gjson.GetBytes(jsonContent, "imports")
	if !result.Exists() {
		return nil, false, nil
	}
	if !result.IsArray() {
		return nil, true, fmt.Errorf(`"imports" must be an array of strings`)
	}

	var parseErr error
	result.ForEach(func(_, item gjson.Result) bool {
		if item.Type != gjson.String {
			parseErr = fmt.Errorf(`"imports" entries must be strings`)
			return false
		}
		imports = append(imports, item.String())
		return true
	})
	if parseErr != nil {
		return nil, true, parseErr
	}
	return imports, true, nil
}
