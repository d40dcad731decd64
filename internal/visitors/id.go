package visitors

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// FallbackID derives a visitor id for clients that did not send one. It is a
// keyed BLAKE2b digest of the day, host, IP and user agent: stable for one
// UTC day, unlinkable across days, and the IP is never stored.
func FallbackID(at time.Time, host, ipAddress, userAgent, secret string) string {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		key = key[:blake2b.Size]
	}

	h, err := blake2b.New(16, key)
	if err != nil {
		// Only reachable with an oversized key, which is trimmed above.
		h, _ = blake2b.New(16, nil)
	}

	day := at.UTC().Format("2006-01-02")
	for _, part := range []string{day, host, ipAddress, userAgent} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
