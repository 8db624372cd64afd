package internal

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

const fingerprintPrefix = "fp_"

// HashFingerprint derives a stable device identifier from host attributes.
// Empty parts are skipped so a missing source does not shift the result of
// the remaining ones.
func HashFingerprint(parts ...string) string {
	h := blake3.New()
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	return fingerprintPrefix + hex.EncodeToString(sum[:16])
}
