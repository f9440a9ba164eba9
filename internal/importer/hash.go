package importer

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// normalize cleans each field and joins them so that whitespace and
// casing differences don't create duplicate cards. Fields are separated
// by a newline to keep "front"+"back" from colliding with "frontback".
func normalize(card ParsedCard) string {
	clean := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}
	return strings.Join([]string{clean(card.Front), clean(card.Back), clean(card.Context)}, "\n")
}

// ContentHash returns the SHA-256 of the normalized card as a hex
// string. Two cards with the same hash are the same card as far as
// re-imports are concerned.
func ContentHash(card ParsedCard) string {
	sum := sha256.Sum256([]byte(normalize(card)))
	return fmt.Sprintf("%x", sum)
}
