// Package digest computes the content hashes that key every cached artifact.
//
// All hashes are SHA-256 with domain separation: the domain string, then each
// part, each followed by a 0x00 byte. Distinct domains keep module keys,
// bundle keys and salts from ever colliding even when their inputs do.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows a future algorithm migration.
const (
	DomainModule     = "commoner/module/v1"
	DomainBundle     = "commoner/bundle/v1"
	DomainBundleFile = "commoner/bundle-file/v1"
	DomainWriter     = "commoner/writer/v1"
	DomainResolvers  = "commoner/resolvers/v1"
	DomainSteps      = "commoner/steps/v1"
	DomainPipeline   = "commoner/pipeline/v1"
	DomainConfig     = "commoner/config/v1"
)

// Hasher accumulates null-separated parts under a domain.
type Hasher struct {
	h hash.Hash
}

// New starts a hash in the given domain.
func New(domain string) *Hasher {
	h := &Hasher{h: sha256.New()}
	return h.Add(domain)
}

// Add appends one part followed by the 0x00 separator.
func (h *Hasher) Add(part string) *Hasher {
	h.h.Write([]byte(part))
	h.h.Write([]byte{0x00})
	return h
}

// AddBytes is Add for byte slices.
func (h *Hasher) AddBytes(part []byte) *Hasher {
	h.h.Write(part)
	h.h.Write([]byte{0x00})
	return h
}

// Sum returns the lowercase hex digest.
func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// Sum hashes parts under domain in one call.
//
// Example: Sum(DomainBundleFile, bundleHash, writerSalt)
func Sum(domain string, parts ...string) string {
	h := New(domain)
	for _, p := range parts {
		h.Add(p)
	}
	return h.Sum()
}
