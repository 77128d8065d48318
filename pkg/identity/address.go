package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AddressLength is the size of a destination address in bytes
const AddressLength = 16

var ErrInvalidAddress = errors.New("invalid address")

// Address is the stable identifier of a destination on the mesh
type Address [AddressLength]byte

// ParseAddress decodes a hex encoded destination address
func ParseAddress(s string) (Address, error) {
	var addr Address

	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return addr, fmt.Errorf("%w %q: %v", ErrInvalidAddress, s, err)
	}
	if len(raw) != AddressLength {
		return addr, fmt.Errorf("%w %q: expected %d bytes, got %d", ErrInvalidAddress, s, AddressLength, len(raw))
	}

	copy(addr[:], raw)
	return addr, nil
}

// String returns the lowercase hex form of the address
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero checks if address is zero
func (a Address) IsZero() bool {
	return a == Address{}
}

// Short returns an abbreviated form for log lines
func (a Address) Short() string {
	return hex.EncodeToString(a[:4])
}
