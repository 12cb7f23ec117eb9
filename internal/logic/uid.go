package logic

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

var uidPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{8,64}$`)

// ResolveUID picks the identity used for frequency capping. An explicit uid
// parameter is used when it matches the allowed shape; otherwise a stable
// fallback is derived from the client IP and User-Agent so capping still
// works for SDKs that never set a uid.
func ResolveUID(uid, clientIP, userAgent string) string {
	if uidPattern.MatchString(uid) {
		return uid
	}
	sum := sha256.Sum256([]byte(clientIP + userAgent))
	return hex.EncodeToString(sum[:])[:32]
}
