// Package placeholder resolves the small template language used inside
// server definitions' env and headers fields:
//
//	${VAR}            - the value of environment variable VAR; error if unset
//	${VAR:-default}   - VAR's value, or the literal default if VAR is unset
//	                    or set to the empty string
//	$env:VAR          - alternate single-variable form used by some imported
//	                    editor configs; VAR's value, or "" if VAR is unset
//	$$                - a literal "$"
//
// Resolution happens once, at materialization time (immediately before a
// connection is opened), never at definition-load or import time, and is a
// pure function of the process environment: given the same template and the
// same environment, Resolve always returns the same result.
package placeholder
