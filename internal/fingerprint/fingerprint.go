// Package fingerprint derives stable identities for backlinks and anchors and
// normalizes the raw strings they are built from.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Fingerprint returns the identity hash of a backlink edge. The same four
// inputs always produce the same 64-char hex string, across runs and processes.
// Each field is length-prefixed, so content never shifts between fields.
func Fingerprint(sourceURL, targetURL, rel, anchor string) string {
	h := sha256.New()
	for _, f := range []string{sourceURL, targetURL, rel, anchor} {
		fmt.Fprintf(h, "%d:%s", len(f), f)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// AnchorHash returns the dedup key for anchor text: case and surrounding
// whitespace are ignored.
func AnchorHash(anchor string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(anchor))))
	return hex.EncodeToString(sum[:])
}
