// Package anonymize turns client addresses into short audit tokens.
//
// The address is masked before hashing (IPv4 keeps 24 bits, IPv6 keeps its
// first three groups) so the token cannot be reversed by enumerating the
// address space. Tokens are only meant for log correlation.
package anonymize

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

const (
	// UnknownToken is returned for an empty address.
	UnknownToken = "unknown"
	// HashErrorToken is returned when the digest cannot be computed.
	HashErrorToken = "hash-error"

	tokenLength = 8
	zeroIPv6    = "0:0:0:0:0:0:0:0"
)

// Token returns the audit token for a raw address. It never fails.
func Token(raw string) string {
	if raw == "" {
		return UnknownToken
	}
	return hash(Mask(raw))
}

// FromRequest returns the audit token for the peer address of r.
func FromRequest(r *http.Request) string {
	return Token(clientAddr(r))
}

// Mask zeroes the host part of an address. Input that does not parse as an
// IP address is returned unchanged.
func Mask(raw string) string {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return raw
	}
	if addr.Is4() || addr.Is4In6() {
		return maskIPv4(raw)
	}
	return maskIPv6(raw)
}

func maskIPv4(raw string) string {
	i := strings.LastIndexByte(raw, '.')
	if i < 0 {
		return raw
	}
	return raw[:i] + ".0"
}

func maskIPv6(raw string) string {
	groups := strings.Split(raw, ":")
	for len(groups) > 0 && groups[len(groups)-1] == "" {
		groups = groups[:len(groups)-1]
	}
	if len(groups) > 3 {
		return strings.Join(groups[:3], ":") + ":0:0:0:0:0"
	}
	return zeroIPv6
}

func hash(s string) string {
	h := sha256.New()
	if _, err := h.Write([]byte(s)); err != nil {
		return HashErrorToken
	}
	return hex.EncodeToString(h.Sum(nil))[:tokenLength]
}

// clientAddr strips the port from RemoteAddr. X-Forwarded-For is not consulted.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
