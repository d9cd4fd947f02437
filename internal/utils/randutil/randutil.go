package randutil

import (
	"math/rand"
	"strings"
)

// Jitter scales v by a uniform factor in [1-spread, 1+spread].
func Jitter(v, spread float64) float64 {
	return v * (1 - spread + rand.Float64()*2*spread)
}

// MaskSecret shows the first and last four characters around a fixed run of
// eight asterisks so the secret's length is not revealed.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return strings.Repeat("*", 8)
	}

	return secret[:4] + strings.Repeat("*", 8) + secret[len(secret)-4:]
}
