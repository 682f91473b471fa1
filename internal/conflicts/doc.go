// Package conflicts resolves natural-key collisions when persisting catalog
// records. Resolution is a pure function over the current and conflicting
// keys, so the rules (updates keep their key, creates disambiguate, the key
// is never emptied) are testable without a platform round-trip.
package conflicts
