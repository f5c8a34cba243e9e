package task

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
)

// Identity is a signer's ed25519 public key. The zero value is the
// unassigned sentinel held by a task's operator until it is accepted.
type Identity [32]byte

// Unassigned is the operator placeholder ("11111111111111111111111111111111").
var Unassigned Identity

// IdentityFromPublicKey converts an ed25519 public key.
func IdentityFromPublicKey(pk ed25519.PublicKey) (Identity, error) {
	var id Identity
	if len(pk) != ed25519.PublicKeySize {
		return id, fmt.Errorf("public key is %d bytes, want %d", len(pk), ed25519.PublicKeySize)
	}
	copy(id[:], pk)
	return id, nil
}

// ParseIdentity decodes a base58 identity.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	b, err := base58.Decode(s)
	if err != nil {
		return id, fmt.Errorf("decode identity %q: %w", s, err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("identity %q is %d bytes, want %d", s, len(b), len(id))
	}
	copy(id[:], b)
	return id, nil
}

// IsUnassigned reports whether id is the sentinel.
func (id Identity) IsUnassigned() bool { return id == Unassigned }

// PublicKey returns id as an ed25519 key for signature checks.
func (id Identity) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(id[:])
}

func (id Identity) String() string { return base58.Encode(id[:]) }

func (id Identity) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *Identity) UnmarshalText(b []byte) error {
	v, err := ParseIdentity(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// Hash is a 32-byte digest of an execution log or verification report.
type Hash [32]byte

// ParseHash decodes a hex digest.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decode hash: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("hash is %d bytes, want %d", len(b), len(h))
	}
	copy(h[:], b)
	return h, nil
}

// IsZero reports whether nothing has been recorded.
func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(b []byte) error {
	v, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// Signature is an operator's ed25519 signature over an execution log digest.
type Signature [64]byte

// ParseSignature decodes a base58 signature.
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	b, err := base58.Decode(s)
	if err != nil {
		return sig, fmt.Errorf("decode signature: %w", err)
	}
	if len(b) != len(sig) {
		return sig, fmt.Errorf("signature is %d bytes, want %d", len(b), len(sig))
	}
	copy(sig[:], b)
	return sig, nil
}

// IsZero reports whether nothing has been recorded.
func (s Signature) IsZero() bool { return s == Signature{} }

func (s Signature) String() string { return base58.Encode(s[:]) }

func (s Signature) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Signature) UnmarshalText(b []byte) error {
	v, err := ParseSignature(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
