package credential

import (
	"crypto/rand"
	"encoding/hex"
)

// ephemeralKey generates a random master key used when no ENCRYPTION_KEY is
// configured. It is not persisted anywhere, so it differs across restarts.
func ephemeralKey() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to a
		// fixed-but-useless key rather than panicking the process.
		return "deployify-ephemeral-fallback-key"
	}
	return hex.EncodeToString(buf)
}
