// namespace.go -- Per-user storage namespace ("va-dir").
package apptoken

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Namespace builds the storage directory key {provider}_{sub}_{hash10}.
// hash10 is the first 10 hex chars of BLAKE2b-256 over the lowercased email.
// Returns "" when there is no subject to scope storage to.
func Namespace(provider, sub, email string) string {
	if sub == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return provider + "_" + sub + "_" + hex.EncodeToString(sum[:])[:10]
}
