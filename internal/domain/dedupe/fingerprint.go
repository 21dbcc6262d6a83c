package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/okian/netpulse/internal/domain/model"
)

// Fingerprint hashes the client key with the normalized title and content.
// Two submissions that look the same to a reader hash the same, regardless of
// case, surrounding space or runs of whitespace.
func Fingerprint(key model.ClientKey, title, content string) string {
	h := sha256.New()
	h.Write([]byte(key))
	h.Write([]byte{0})
	h.Write([]byte(normalize(title)))
	h.Write([]byte{0})
	h.Write([]byte(normalize(content)))
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
