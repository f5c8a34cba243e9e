package ledger

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"
)

// Seed limits match Solana program derived addresses.
const (
	MaxSeedLen = 32
	MaxSeeds   = 16
)

var ErrInvalidSeed = errors.New("invalid address seed")

// Address identifies one account.
type Address [32]byte

// ProgramID namespaces every derived address.
var ProgramID = mustParseAddress("DJbDiPY8wJQRjCor1rywA4ZuwUSrybAcYzAgc9F6njox")

// DeriveAddress maps seeds to an account address deterministically. Distinct
// seed lists never share an address because each seed is length-prefixed.
func DeriveAddress(seeds ...[]byte) (Address, error) {
	if len(seeds) == 0 || len(seeds) > MaxSeeds {
		return Address{}, fmt.Errorf("%w: %d seeds", ErrInvalidSeed, len(seeds))
	}
	h := sha3.New256()
	h.Write(ProgramID[:]) //nolint:errcheck
	for _, s := range seeds {
		if len(s) > MaxSeedLen {
			return Address{}, fmt.Errorf("%w: seed is %d bytes, max %d", ErrInvalidSeed, len(s), MaxSeedLen)
		}
		h.Write([]byte{byte(len(s))}) //nolint:errcheck
		h.Write(s)                    //nolint:errcheck
	}
	h.Write([]byte("ProgramDerivedAddress")) //nolint:errcheck
	var a Address
	copy(a[:], h.Sum(nil))
	return a, nil
}

// ParseAddress decodes a base58 address.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("decode address %q: %w", s, err)
	}
	if len(b) != len(a) {
		return a, fmt.Errorf("address %q is %d bytes, want %d", s, len(b), len(a))
	}
	copy(a[:], b)
	return a, nil
}

func mustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string { return base58.Encode(a[:]) }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(b []byte) error {
	v, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
