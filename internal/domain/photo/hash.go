package photo

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hothash is the content identity of a photo: the SHA-256 of the
// hotpreview's encoded bytes, lowercase hex. Identical pixels always
// produce identical hotpreviews, so the digest is stable across runs.
func Hothash(hotpreview *Preview) string {
	sum := sha256.Sum256(hotpreview.Data)
	return hex.EncodeToString(sum[:])
}
