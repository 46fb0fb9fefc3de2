// Package roomcode generates the short join codes players type to enter a
// room. Codes use an alphabet with no 0/O, 1/I or L so they survive being
// read aloud or scribbled on a napkin.
package roomcode

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Alphabet is the unambiguous character set used for room codes.
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// Length is the wire length of a room code.
const Length = 6

// RandSource allows deterministic code generation in tests.
type RandSource interface {
	IntN(n int) int
}

// Generate creates a new 6-character room code using crypto/rand.
func Generate() string {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		panic("roomcode: crypto/rand failed: " + err.Error())
	}
	out := make([]byte, Length)
	for i, b := range buf {
		out[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(out)
}

// GenerateWithRand creates a code from the provided RandSource.
func GenerateWithRand(r RandSource) string {
	out := make([]byte, Length)
	for i := range out {
		out[i] = Alphabet[r.IntN(len(Alphabet))]
	}
	return string(out)
}

// Normalize upper-cases a code and strips an optional display dash.
func Normalize(code string) string {
	return strings.ToUpper(strings.ReplaceAll(code, "-", ""))
}

// Validate checks that a code is exactly 6 characters from the alphabet.
func Validate(code string) error {
	if len(code) != Length {
		return fmt.Errorf("room code must be exactly %d characters, got %d", Length, len(code))
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(Alphabet, rune(code[i])) {
			return fmt.Errorf("invalid character %c at position %d", code[i], i)
		}
	}
	return nil
}

// Display formats a code for humans: ABC-DEF. The wire form stays 6 chars.
func Display(code string) string {
	if len(code) != Length {
		return code
	}
	return code[:3] + "-" + code[3:]
}
