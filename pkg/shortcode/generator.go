package shortcode

import (
	"crypto/rand"
	"errors"
	"math/big"
)

const (
	Alphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	DefaultLength = 7
)

var ErrInvalidLength = errors.New("shortcode: length must be positive")

var alphabetSize = big.NewInt(int64(len(Alphabet)))

func Generate() (string, error) {
	return GenerateN(DefaultLength)
}

// GenerateN draws n characters uniformly from Alphabet using crypto/rand.
func GenerateN(n int) (string, error) {
	if n <= 0 {
		return "", ErrInvalidLength
	}

	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		b[i] = Alphabet[idx.Int64()]
	}
	return string(b), nil
}
