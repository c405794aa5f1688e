package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var referenceCharset = []rune("ABCDEFGHJKLMNPQRSTUVWXYZ23456789")

// RandomReference returns an uppercase string without look-alike characters,
// suitable for human-readable identifiers.
func RandomReference(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	limit := big.NewInt(int64(len(referenceCharset)))
	result := make([]rune, length)
	for i := range result {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		result[i] = referenceCharset[idx.Int64()]
	}
	return string(result), nil
}
