package random

import (
	"crypto/rand"
	"math/big"
	"time"
)

var allowedLetters = []rune("abcdefghijklmnopqrstuvwxyz")

// Letters returns n cryptographically random lowercase ASCII letters, e.g. for throwaway database names.
func Letters(n uint) (string, error) {
	letters := make([]rune, n)
	maxIndex := big.NewInt(int64(len(allowedLetters)))
	for i := range letters {
		letterIndex, err := rand.Int(rand.Reader, maxIndex)
		if err != nil {
			return "", err
		}
		letters[i] = allowedLetters[letterIndex.Int64()]
	}
	return string(letters), nil
}

// Jitter returns a duration in [d/2, d). Non-positive durations are returned as zero.
func Jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2 //nolint:mnd // half
	if half == 0 {
		return d
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(d-half)))
	if err != nil {
		return d
	}
	return half + time.Duration(n.Int64())
}
