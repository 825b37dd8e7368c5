package anchor

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

const (
	DefaultDomainName    = "PortfolioAnchor"
	DefaultDomainVersion = "1"
)

var (
	domainTypeHash = ethcrypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	anchorTypeHash = ethcrypto.Keccak256Hash([]byte("Anchor(uint8 actionType,bytes32 dataHash,uint256 nonce,uint256 deadline)"))
)

// Domain separates signatures of one deployment from every other.
type Domain struct {
	Name              string         `json:"name"`
	Version           string         `json:"version"`
	ChainID           uint64         `json:"chainId"`
	VerifyingContract common.Address `json:"verifyingContract"`
}

// NewDomain returns the PortfolioAnchor v1 domain for a deployment.
func NewDomain(chainID uint64, verifying common.Address) Domain {
	return Domain{
		Name:              DefaultDomainName,
		Version:           DefaultDomainVersion,
		ChainID:           chainID,
		VerifyingContract: verifying,
	}
}

// Separator is hashStruct(EIP712Domain).
func (d Domain) Separator() common.Hash {
	return ethcrypto.Keccak256Hash(
		domainTypeHash.Bytes(),
		ethcrypto.Keccak256([]byte(d.Name)),
		ethcrypto.Keccak256([]byte(d.Version)),
		word(uint256.NewInt(d.ChainID)),
		common.LeftPadBytes(d.VerifyingContract.Bytes(), 32),
	)
}

// Message is the signed Anchor struct.
type Message struct {
	ActionType ActionType
	DataHash   Hash
	Nonce      *uint256.Int
	Deadline   uint64
}

// StructHash is hashStruct(Anchor).
func (m Message) StructHash() common.Hash {
	return ethcrypto.Keccak256Hash(
		anchorTypeHash.Bytes(),
		word(uint256.NewInt(uint64(m.ActionType))),
		m.DataHash.Bytes(),
		word(m.Nonce),
		word(uint256.NewInt(m.Deadline)),
	)
}

// Digest is the value wallets sign: keccak256(0x1901 || separator || structHash).
func Digest(d Domain, m Message) common.Hash {
	sep := d.Separator()
	sh := m.StructHash()
	return ethcrypto.Keccak256Hash([]byte{0x19, 0x01}, sep.Bytes(), sh.Bytes())
}

// Recover returns the address that produced sig over the typed-data digest.
// A recovered address that differs from the expected signer is not an error
// here; callers compare.
func Recover(d Domain, m Message, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSignatureFormat, len(sig), SignatureLength)
	}
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	v := normalized[64]
	if v >= 27 {
		v -= 27
	}
	r := new(big.Int).SetBytes(normalized[:32])
	s := new(big.Int).SetBytes(normalized[32:64])
	// homestead=true rejects high-s, so each signature has exactly one encoding.
	if !ethcrypto.ValidateSignatureValues(v, r, s, true) {
		return common.Address{}, fmt.Errorf("%w: signature values out of range", ErrInvalidSignature)
	}
	normalized[64] = v
	digest := Digest(d, m)
	pub, err := ethcrypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: recover: %v", ErrInvalidSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// Sign produces a wallet-style signature (v in {27, 28}) over the message.
func Sign(d Domain, m Message, key *ecdsa.PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("anchor: signing key required")
	}
	digest := Digest(d, m)
	sig, err := ethcrypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("anchor: sign: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

func word(v *uint256.Int) []byte {
	if v == nil {
		v = new(uint256.Int)
	}
	b := v.Bytes32()
	return b[:]
}
