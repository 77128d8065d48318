// Package identity holds key material and address derivation for mesh destinations
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"

	"github.com/ZentaChain/zentalk-messenger/pkg/crypto"
)

var ErrInvalidSecret = errors.New("invalid identity secret")

// Identity is an Ed25519 key pair
type Identity struct {
	priv p2pcrypto.PrivKey
}

// Creds is the exportable form of an identity together with its contact address
type Creds struct {
	Secret    string `json:"secret"`
	MyAddress string `json:"my_address"`
}

// New generates a random identity
func New() (*Identity, error) {
	priv, _, err := p2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return &Identity{priv: priv}, nil
}

// FromName derives a deterministic identity from a name.
// Only for tests and local development: anyone knowing the name owns the key.
func FromName(name string) *Identity {
	seed, _ := crypto.Hash([]byte(name))
	id, err := fromSeed(seed)
	if err != nil {
		panic(err)
	}
	return id
}

// FromHex imports an identity from its hex encoded secret
func FromHex(secret string) (*Identity, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(secret))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}

	switch len(raw) {
	case ed25519.SeedSize:
		return fromSeed(raw)
	case ed25519.PrivateKeySize:
		priv, err := p2pcrypto.UnmarshalEd25519PrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
		}
		return &Identity{priv: priv}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected length %d", ErrInvalidSecret, len(raw))
	}
}

// FromPrivKey wraps an existing libp2p private key
func FromPrivKey(priv p2pcrypto.PrivKey) (*Identity, error) {
	if priv.Type() != p2pcrypto.Ed25519 {
		return nil, fmt.Errorf("%w: key type %s", ErrInvalidSecret, priv.Type())
	}
	return &Identity{priv: priv}, nil
}

func fromSeed(seed []byte) (*Identity, error) {
	key := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])
	priv, err := p2pcrypto.UnmarshalEd25519PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return &Identity{priv: priv}, nil
}

// Hex exports the identity seed as hex
func (id *Identity) Hex() (string, error) {
	raw, err := id.priv.Raw()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:ed25519.SeedSize]), nil
}

// PrivKey returns the libp2p form of the private key
func (id *Identity) PrivKey() p2pcrypto.PrivKey {
	return id.priv
}

// PublicKey returns the raw Ed25519 public key
func (id *Identity) PublicKey() []byte {
	raw, _ := id.priv.GetPublic().Raw()
	return raw
}

// Sign signs data with the identity key
func (id *Identity) Sign(data []byte) ([]byte, error) {
	return id.priv.Sign(data)
}

// Address returns the destination address of this identity under name
func (id *Identity) Address(name DestinationName) Address {
	addr, _ := DestinationAddress(id.PublicKey(), name)
	return addr
}

// Creds exports the secret together with the address for name
func (id *Identity) Creds(name DestinationName) (Creds, error) {
	secret, err := id.Hex()
	if err != nil {
		return Creds{}, err
	}
	return Creds{Secret: secret, MyAddress: id.Address(name).String()}, nil
}

// Verify checks a signature made by the holder of publicKey
func Verify(publicKey, data, signature []byte) (bool, error) {
	pub, err := p2pcrypto.UnmarshalEd25519PublicKey(publicKey)
	if err != nil {
		return false, err
	}
	return pub.Verify(data, signature)
}
