// Package sha256 digests archived page bodies.
package sha256

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements crawler.Hasher. Bodies are normalized before hashing so
// the same page archived twice lands under one name: CRLF becomes LF and
// surrounding whitespace is ignored.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex SHA-256 digest of the normalized body.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(normalize(data))
	return hex.EncodeToString(sum[:]), nil
}

func normalize(data []byte) []byte {
	data = bytes.TrimSpace(data)
	if !bytes.Contains(data, []byte("\r\n")) {
		return data
	}
	return bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
}
