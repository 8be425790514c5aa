// internal/content/content.go
package content

import (
	"crypto/sha256"
	"encoding/hex"
)

// IDLength is the length of a content id: a hex encoded sha256 digest.
const IDLength = sha256.Size * 2

// Store maps bytes to content-derived ids and back.
type Store interface {
	// Put stores data if absent and returns its id. Storing the same bytes
	// twice is a no-op returning the same id.
	Put(data []byte) (string, error)

	// Get returns the bytes stored under id.
	Get(id string) ([]byte, error)

	// Has reports whether id is stored locally.
	Has(id string) (bool, error)
}

// Hash returns the content id of data.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ValidID reports whether id is a well-formed content id.
func ValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
