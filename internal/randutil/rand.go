package randutil

import (
	"crypto/rand"
	"encoding/hex"

	randv2 "math/rand/v2"
)

// New returns a *rand.Rand seeded deterministically from the provided int64.
// rand/v2's PCG wants two 64-bit seeds; we expand the single seed with
// splitmix64 so every call site gets a reproducible sequence from one number.
func New(seed int64) *randv2.Rand {
	s1 := splitmix64(uint64(seed))
	s2 := splitmix64(s1)
	return randv2.New(randv2.NewPCG(s1, s2))
}

// Hex returns n bytes of cryptographic randomness hex-encoded (2n characters).
// Used for session handles and reconnect tokens, where guessability matters.
func Hex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("randutil: crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
