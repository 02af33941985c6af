// Package codec converts record keys to short codes and back.
// Codes are base62 over the alphabet 0-9a-zA-Z, most significant digit first.
// All functions are pure and safe for concurrent use.
package codec

import (
	"errors"
	"math"
)

const (
	// Alphabet is load-bearing: index 10 is 'a' and index 36 is 'A'.
	Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	base = uint64(len(Alphabet))

	// MaxLength is the length of the longest code, Encode(math.MaxUint64).
	MaxLength = 11
)

// ErrInvalidShortCode is returned by Decode for input that no key encodes to.
var ErrInvalidShortCode = errors.New("invalid short code")

var index = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(Alphabet); i++ {
		t[Alphabet[i]] = int8(i)
	}
	return t
}()

// Encode returns the short code for n.
func Encode(n uint64) string {
	if n == 0 {
		return Alphabet[:1]
	}

	var buf [MaxLength]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = Alphabet[n%base]
		n /= base
	}
	return string(buf[i:])
}

// Decode returns the key encoded by s. Characters outside the alphabet and
// values that do not fit in a uint64 yield ErrInvalidShortCode.
func Decode(s string) (uint64, error) {
	if s == "" || len(s) > MaxLength {
		return 0, ErrInvalidShortCode
	}

	var n uint64
	for i := 0; i < len(s); i++ {
		d := index[s[i]]
		if d < 0 {
			return 0, ErrInvalidShortCode
		}
		if n > (math.MaxUint64-uint64(d))/base {
			return 0, ErrInvalidShortCode
		}
		n = n*base + uint64(d)
	}
	return n, nil
}

// Valid reports whether s decodes without error.
func Valid(s string) bool {
	_, err := Decode(s)
	return err == nil
}
