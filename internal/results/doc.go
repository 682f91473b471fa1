// Package results stores the structured outputs each workflow stage
// produces, namespaced per stage, so downstream stages receive the full
// accumulated context without re-deriving earlier work.
package results
