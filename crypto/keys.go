package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DisplayPrefix is the human-readable part used for bech32 renderings of
// wallet addresses.
const DisplayPrefix = "anchor"

// Address is a 20-byte wallet address. The canonical text form is EIP-55
// checksummed hex; Bech32 gives an alternate display form.
type Address struct {
	common.Address
}

// NewAddress wraps raw address bytes. It panics unless len(b) == 20.
func NewAddress(b []byte) Address {
	if len(b) != common.AddressLength {
		panic("address must be 20 bytes long")
	}
	return Address{common.BytesToAddress(b)}
}

// Bech32 renders the address with the given human-readable prefix.
func (a Address) Bech32(prefix string) (string, error) {
	conv, err := bech32.ConvertBits(a.Bytes(), 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(prefix, conv)
}

// ParseAddress accepts 0x-prefixed hex or a bech32 string.
func ParseAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Address{}, fmt.Errorf("address required")
	}
	if common.IsHexAddress(trimmed) {
		return Address{common.HexToAddress(trimmed)}, nil
	}
	_, decoded, err := bech32.Decode(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", trimmed, err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != common.AddressLength {
		return Address{}, fmt.Errorf("invalid address length %d", len(conv))
	}
	return NewAddress(conv), nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address is a shortcut for PubKey().Address().
func (k *PrivateKey) Address() Address {
	return k.PubKey().Address()
}

func (k *PublicKey) Address() Address {
	return Address{crypto.PubkeyToAddress(*k.PublicKey)}
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromHex decodes a hex private key, with or without 0x.
func PrivateKeyFromHex(raw string) (*PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}
	return &PrivateKey{key}, nil
}
