package session

import (
	"crypto/sha256"
	"net/netip"
	"strings"
)

// FingerprintPolicy selects the request attributes folded into a session
// fingerprint. The zero value disables fingerprinting.
type FingerprintPolicy struct {
	IP             bool `yaml:"ip"`
	UserAgent      bool `yaml:"user_agent"`
	AcceptLanguage bool `yaml:"accept_language"`
	// SubnetIP folds IPv4 addresses to their /24 and IPv6 to their /64
	// before hashing.
	SubnetIP bool `yaml:"subnet_ip"`
}

// Enabled reports whether any attribute is selected.
func (p FingerprintPolicy) Enabled() bool {
	return p.IP || p.UserAgent || p.AcceptLanguage
}

// Attributes are the stable request facts a fingerprint is derived from.
type Attributes struct {
	IP             string
	UserAgent      string
	AcceptLanguage string
}

// Fingerprint hashes the attributes selected by p. It returns the zero
// array when p is disabled.
func Fingerprint(p FingerprintPolicy, a Attributes) [32]byte {
	if !p.Enabled() {
		return [32]byte{}
	}

	var b strings.Builder
	b.WriteString("fp1")
	if p.IP {
		b.WriteString("|ip=")
		b.WriteString(normalizeIP(a.IP, p.SubnetIP))
	}
	if p.UserAgent {
		b.WriteString("|ua=")
		b.WriteString(strings.TrimSpace(a.UserAgent))
	}
	if p.AcceptLanguage {
		b.WriteString("|al=")
		b.WriteString(strings.ToLower(strings.TrimSpace(a.AcceptLanguage)))
	}
	return sha256.Sum256([]byte(b.String()))
}

func normalizeIP(raw string, subnet bool) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	addr = addr.Unmap()
	if !subnet {
		return addr.String()
	}
	bits := 24
	if addr.Is6() {
		bits = 64
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return addr.String()
	}
	return prefix.String()
}
