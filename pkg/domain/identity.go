package domain

import (
	"encoding/hex"
	"strings"

	dErrors "namereg/pkg/domain-errors"
)

// IdentityLength is the byte length of a ledger account reference.
const IdentityLength = 20

// Identity is an opaque ledger account reference (a 20-byte address).
// The zero value is the null identity and never owns anything.
//
// Usage: construct via ParseIdentity at trust boundaries; the textual form is
// 0x-prefixed lowercase hex.
type Identity [IdentityLength]byte

// ZeroIdentity is the null/absent identity sentinel.
var ZeroIdentity Identity

// ParseIdentity parses a 0x-prefixed 40-hex-digit identity.
//
// Errors: returns CodeInvalidInput for malformed input. The null identity is
// accepted; callers that must reject it check IsZero.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	raw, ok := strings.CutPrefix(s, "0x")
	if !ok {
		raw, ok = strings.CutPrefix(s, "0X")
	}
	if !ok {
		return id, dErrors.New(dErrors.CodeInvalidInput, "identity must be 0x-prefixed")
	}
	if len(raw) != IdentityLength*2 {
		return id, dErrors.New(dErrors.CodeInvalidInput, "identity must be 20 bytes of hex")
	}
	if _, err := hex.Decode(id[:], []byte(raw)); err != nil {
		return Identity{}, dErrors.New(dErrors.CodeInvalidInput, "identity is not valid hex")
	}
	return id, nil
}

// MustParseIdentity is ParseIdentity for constants and tests.
func MustParseIdentity(s string) Identity {
	id, err := ParseIdentity(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IsZero reports whether id is the null identity.
func (id Identity) IsZero() bool {
	return id == ZeroIdentity
}

func (id Identity) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// MarshalText encodes the identity as 0x-prefixed hex.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText decodes a 0x-prefixed hex identity.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
