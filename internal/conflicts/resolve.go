package conflicts

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/google/uuid"
)

const fallbackKey = "item"

// Normalize derives a catalog slug from free-form text: diacritics folded,
// lowercased, runs of non-alphanumerics collapsed to single hyphens.
func Normalize(text string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, text)
	if err != nil {
		folded = text
	}

	var b strings.Builder
	b.Grow(len(folded))
	lastHyphen := true
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return fallbackKey
	}
	return slug
}

// Resolve computes the natural key to retry with after a collision. For an
// update the entity's current key always wins: the owned record keeps its
// identity and the conflicting extracted value is discarded. For a create the
// conflicting key is disambiguated with a deterministic suffix derived from
// the workflow. The result is never empty.
func Resolve(currentKey, conflictingKey, workflowID string, isUpdate bool) string {
	currentKey = strings.TrimSpace(currentKey)
	conflictingKey = strings.TrimSpace(conflictingKey)

	if isUpdate && currentKey != "" {
		return currentKey
	}

	base := conflictingKey
	if base == "" {
		base = currentKey
	}
	if base == "" {
		base = fallbackKey
	}
	return base + "-" + suffixFor(workflowID)
}

// suffixFor yields a short stable discriminator for the workflow so repeated
// resolution attempts produce the same key.
func suffixFor(workflowID string) string {
	if id, err := uuid.Parse(workflowID); err == nil {
		return strings.SplitN(id.String(), "-", 2)[0]
	}
	cleaned := Normalize(workflowID)
	if cleaned == fallbackKey && workflowID == "" {
		return "alt"
	}
	if len(cleaned) > 8 {
		return cleaned[:8]
	}
	return cleaned
}
