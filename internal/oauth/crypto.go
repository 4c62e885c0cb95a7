package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"strings"
)

// RandomString returns a base64url-encoded random string built from n bytes
// of CSPRNG output.
func RandomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the hex-encoded SHA-256 digest of value. Codes and
// tokens are stored only in this form.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeEquals compares two strings without leaking a timing signal.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// userCodeAlphabet excludes vowels and ambiguous glyphs (0/O, 1/I/L) so
// codes stay easy to transcribe and never spell anything.
const userCodeAlphabet = "BCDFGHJKLMNPQRSTVWXZ"

// NewUserCode returns a human-facing device code in XXXX-XXXX form.
func NewUserCode() (string, error) {
	max := big.NewInt(int64(len(userCodeAlphabet)))
	chars := make([]byte, 8)
	for i := range chars {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		chars[i] = userCodeAlphabet[idx.Int64()]
	}
	return string(chars[:4]) + "-" + string(chars[4:]), nil
}

// NormalizeUserCode canonicalizes user input before lookup: uppercase,
// spaces treated as the separator.
func NormalizeUserCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.ReplaceAll(code, " ", "-")
}
