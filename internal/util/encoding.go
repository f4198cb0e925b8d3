package util

import (
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

func Normalize(s string) string {
	return norm.NFKD.String(s)
}

// NormalizeUsername folds a login name to its canonical comparable form.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(Normalize(s)))
}

func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
