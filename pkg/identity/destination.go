package identity

import (
	"github.com/ZentaChain/zentalk-messenger/pkg/crypto"
)

// nameHashLength is the number of name hash bytes mixed into an address
const nameHashLength = 10

// DestinationName scopes a destination within an application
type DestinationName struct {
	App     string `json:"app" yaml:"app"`
	Aspects string `json:"aspects" yaml:"aspects"`
}

// NewDestinationName creates a destination name
func NewDestinationName(app, aspects string) DestinationName {
	return DestinationName{App: app, Aspects: aspects}
}

func (n DestinationName) String() string {
	if n.Aspects == "" {
		return n.App
	}
	return n.App + "." + n.Aspects
}

// Hash returns the truncated name hash used in address derivation
func (n DestinationName) Hash() []byte {
	h, _ := crypto.TruncatedHash(nameHashLength, []byte(n.String()))
	return h
}

// DestinationAddress derives the address owned by a public key under a name.
// The same key and name always produce the same address.
func DestinationAddress(publicKey []byte, name DestinationName) (Address, error) {
	var addr Address

	identityHash, err := crypto.TruncatedHash(AddressLength, publicKey)
	if err != nil {
		return addr, err
	}

	h, err := crypto.TruncatedHash(AddressLength, name.Hash(), identityHash)
	if err != nil {
		return addr, err
	}

	copy(addr[:], h)
	return addr, nil
}
