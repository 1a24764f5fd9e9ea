// Package sha256 derives stable snapshot keys from remote paths.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher implements linker.Hasher using SHA-256.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Key returns the hex digest of the canonical form of remotePath. Surrounding
// slashes, whitespace, the query and the fragment do not change the key.
func (h *Hasher) Key(remotePath string) string {
	sum := sha256.Sum256([]byte(canonicalPath(remotePath)))
	return hex.EncodeToString(sum[:])
}

func canonicalPath(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return "/" + strings.Trim(p, "/")
}
