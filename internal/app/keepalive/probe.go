package keepalive

import (
	"math/rand/v2"

	"github.com/dkeye/pingpong/internal/domain"
)

const (
	tokenAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	minTokenLen    = 5
	tokenLenSpread = 5
)

// Token returns an alphanumeric string with length uniform in [5,10).
func Token(r *rand.Rand) string {
	n := minTokenLen + r.IntN(tokenLenSpread)
	b := make([]byte, n)
	for i := range b {
		b[i] = tokenAlphabet[r.IntN(len(tokenAlphabet))]
	}
	return string(b)
}

// NewProbe builds a fresh probe message.
func NewProbe(r *rand.Rand) domain.Message {
	return domain.NewProbe(Token(r))
}
