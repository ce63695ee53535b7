package placeholder

import (
	"fmt"
	"os"
	"strings"
)

// MissingEnvVarError is returned when a template references an environment
// variable that is not set (and, for the ${VAR} form, has no default).
type MissingEnvVarError struct {
	Var      string
	Template string
}

func (e *MissingEnvVarError) Error() string {
	return fmt.Sprintf("environment variable %q is not set (referenced in %q)", e.Var, e.Template)
}

// Lookup resolves a variable name to its value. The second return value is
// false when the variable is unset.
type Lookup func(name string) (string, bool)

// FromEnviron builds a Lookup backed by the current process environment.
func FromEnviron() Lookup {
	return os.LookupEnv
}

// FromMap builds a Lookup backed by a fixed map, useful for tests and for
// resolving against a captured environment snapshot.
func FromMap(env map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

// Resolve expands every placeholder in template using lookup, in a single
// left-to-right pass. It returns a *MissingEnvVarError wrapped as error if a
// ${VAR} (no default) reference is unset; an unset $env:VAR resolves to "".
func Resolve(template string, lookup Lookup) (string, error) {
	var out strings.Builder
	i := 0
	n := len(template)

	for i < n {
		c := template[i]
		if c != '$' {
			out.WriteByte(c)
			i++
			continue
		}

		// "$$" is a literal "$".
		if i+1 < n && template[i+1] == '$' {
			out.WriteByte('$')
			i += 2
			continue
		}

		// "${VAR}" or "${VAR:-default}".
		if i+1 < n && template[i+1] == '{' {
			end := strings.IndexByte(template[i+2:], '}')
			if end < 0 {
				// No closing brace: treat the rest literally, same as the
				// teacher's tolerant handling of malformed template syntax.
				out.WriteString(template[i:])
				return out.String(), nil
			}
			body := template[i+2 : i+2+end]
			i += 2 + end + 1

			name, def, hasDefault := splitDefault(body)
			val, ok := lookup(name)
			if (!ok || val == "") && hasDefault {
				out.WriteString(def)
				continue
			}
			if !ok {
				return "", &MissingEnvVarError{Var: name, Template: template}
			}
			out.WriteString(val)
			continue
		}

		// "$env:VAR": a raw environment read preserving the legacy shape. An
		// unset variable yields an empty string rather than failing -- unlike
		// "${VAR}", this form has no way to spell a default, so it degrades
		// to empty to remain a drop-in for the old behavior.
		if rest := template[i+1:]; strings.HasPrefix(rest, "env:") {
			name, consumed := scanVarName(rest[len("env:"):])
			if name != "" {
				val, _ := lookup(name)
				out.WriteString(val)
				i += 1 + len("env:") + consumed
				continue
			}
		}

		// Bare "$" followed by something unrecognized: pass through literally.
		out.WriteByte('$')
		i++
	}

	return out.String(), nil
}

// splitDefault splits "VAR" or "VAR:-default" into its name and default
// value. hasDefault reports whether a ":-" form was present.
func splitDefault(body string) (name, def string, hasDefault bool) {
	idx := strings.Index(body, ":-")
	if idx < 0 {
		return body, "", false
	}
	return body[:idx], body[idx+2:], true
}

// scanVarName reads a bare identifier (letters, digits, underscore) from the
// start of s, as used by the "$env:VAR" form which has no delimiter.
func scanVarName(s string) (name string, consumed int) {
	for consumed < len(s) {
		c := s[consumed]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			consumed++
			continue
		}
		break
	}
	return s[:consumed], consumed
}

// ResolveMap resolves every value in m (leaving keys untouched), returning a
// new map. Used for env/headers fields where every value is a template.
func ResolveMap(m map[string]string, lookup Lookup) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		resolved, err := Resolve(v, lookup)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

// ResolveSlice resolves every element of s, preserving order.
func ResolveSlice(s []string, lookup Lookup) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	out := make([]string, len(s))
	for i, v := range s {
		resolved, err := Resolve(v, lookup)
		if err != nil {
			return nil, err
		}
		out[i] = resolved
	}
	return out, nil
}
