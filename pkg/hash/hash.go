// Package hash defines the content fingerprint used to compare artifact
// state across local builds, declared inputs, and the published store.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Hash is an opaque hex-encoded content fingerprint. Equality of the
// underlying strings is the only defined operation.
type Hash string

// None is the "no hash" sentinel: the artifact has never been built,
// never been published, or is not hash-checked at all. It is a value,
// not an error.
const None Hash = ""

// IsNone reports whether h is the no-hash sentinel.
func (h Hash) IsNone() bool { return h == None }

// Short returns the first n characters of the hash for display, or the
// full hash if it is shorter. The sentinel renders as "-".
func (h Hash) Short(n int) string {
	if h.IsNone() {
		return "-"
	}
	if len(h) <= n {
		return string(h)
	}
	return string(h[:n])
}

// Sum fingerprints raw bytes.
func Sum(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// Combine folds an artifact's own input fingerprints together with its
// dependencies' desired hashes into a single fingerprint. Inputs are
// digested in the order given; dependency hashes are digested in sorted
// name order so the result does not depend on map iteration. Any change
// to an input or an upstream hash changes the combined hash.
func Combine(inputs []Hash, deps map[string]Hash) Hash {
	h := sha256.New()
	for _, in := range inputs {
		h.Write([]byte(in))
		h.Write([]byte{0})
	}

	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(deps[name]))
		h.Write([]byte{0})
	}

	return Hash(hex.EncodeToString(h.Sum(nil)))
}
