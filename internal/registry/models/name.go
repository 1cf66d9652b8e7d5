package models

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

const (
	MinNameLength = 3
	MaxNameLength = 20
)

// ValidName reports whether name is 3–20 characters of [0-9A-Za-z].
// Names are case-sensitive and stored exactly as given.
func ValidName(name string) bool {
	if len(name) < MinNameLength || len(name) > MaxNameLength {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		default:
			return false
		}
	}
	return true
}

// NameHash is the Keccak-256 digest of a name, used as the indexed key of
// registry events.
type NameHash [32]byte

// HashName computes the content hash of name. It matches the hash a ledger
// computes for an indexed string event argument.
func HashName(name string) NameHash {
	var h NameHash
	d := sha3.NewLegacyKeccak256()
	_, _ = d.Write([]byte(name))
	d.Sum(h[:0])
	return h
}

func (h NameHash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// MarshalText encodes the hash as 0x-prefixed hex.
func (h NameHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}
