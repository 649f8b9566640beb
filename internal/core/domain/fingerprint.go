package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint computes a stable content digest used to detect unchanged
// sources and skip redundant reprocessing. Content is normalized (CRLF to
// LF, outer whitespace trimmed) before hashing so cosmetic edits do not
// trigger a re-embed.
func Fingerprint(content string) string {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	normalized = strings.TrimSpace(normalized)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
