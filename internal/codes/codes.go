// Package codes generates short room codes. The alphabet drops the
// visually ambiguous characters (0/O, 1/I) so codes survive being read
// aloud or retyped from a screen.
package codes

import (
	"crypto/rand"
	"math/big"
)

const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Generator produces fixed-length codes from Alphabet. Uniqueness is
// the caller's concern; the room store retries on collision.
type Generator struct {
	length int
}

func NewGenerator(length int) *Generator {
	return &Generator{length: length}
}

func (g *Generator) NewCode() (string, error) {
	code := make([]byte, g.length)
	max := big.NewInt(int64(len(Alphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = Alphabet[n.Int64()]
	}
	return string(code), nil
}
