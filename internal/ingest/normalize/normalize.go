// Package normalize implements the content-hash normalization rules of
// spec §4.3 step 3: Unicode NFC plus whitespace collapse for text, and an
// incremental hash for binary content.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Text returns the NFC-normalized, whitespace-collapsed form of s: runs
// of any Unicode whitespace collapse to a single ASCII space, and
// trailing whitespace is trimmed.
func Text(s string) string {
	nfc := norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(nfc))
	lastWasSpace := false
	for _, r := range nfc {
		if unicode.IsSpace(r) {
			if !lastWasSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			lastWasSpace = true
			continue
		}
		b.WriteRune(r)
		lastWasSpace = false
	}
	return strings.TrimRight(b.String(), " ")
}

// ContentHash computes SHA-256(workspaceID || ":" || normalized text),
// hex-encoded (spec §4.3 step 3).
func ContentHash(workspaceID, text string) string {
	h := sha256.New()
	h.Write([]byte(workspaceID))
	h.Write([]byte(":"))
	h.Write([]byte(Text(text)))
	return hex.EncodeToString(h.Sum(nil))
}

// StreamHash computes SHA-256(workspaceID || ":" || raw bytes) over r
// without loading the whole object into memory, for binary uploads
// (spec §4.3 step 3).
func StreamHash(workspaceID string, r io.Reader) (string, error) {
	h := sha256.New()
	h.Write([]byte(workspaceID))
	h.Write([]byte(":"))
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
