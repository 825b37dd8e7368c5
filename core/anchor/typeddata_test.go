package anchor

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func TestDigestMatchesGethTypedData(t *testing.T) {
	domain := NewDomain(31337, testContract)
	dataHash := ethcrypto.Keccak256Hash([]byte("test-data"))
	msg := Message{ActionType: ActionDeleteAsset, DataHash: dataHash, Nonce: uint256.NewInt(5), Deadline: 1_700_003_600}

	typed := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Anchor": {
				{Name: "actionType", Type: "uint8"},
				{Name: "dataHash", Type: "bytes32"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "Anchor",
		Domain: apitypes.TypedDataDomain{
			Name:              DefaultDomainName,
			Version:           DefaultDomainVersion,
			ChainId:           math.NewHexOrDecimal256(31337),
			VerifyingContract: testContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"actionType": "2",
			"dataHash":   dataHash.Hex(),
			"nonce":      "5",
			"deadline":   "1700003600",
		},
	}
	want, _, err := apitypes.TypedDataAndHash(typed)
	require.NoError(t, err)
	require.Equal(t, common.BytesToHash(want), Digest(domain, msg))

	sep, err := typed.HashStruct("EIP712Domain", typed.Domain.Map())
	require.NoError(t, err)
	require.Equal(t, common.BytesToHash(sep), domain.Separator())
}

func TestSignRecoverRoundTrip(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	signer := ethcrypto.PubkeyToAddress(key.PublicKey)
	domain := NewDomain(80002, testContract)
	msg := Message{ActionType: ActionAddAsset, DataHash: ethcrypto.Keccak256Hash([]byte("payload")), Nonce: uint256.NewInt(0), Deadline: 99}

	sig, err := Sign(domain, msg, key)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLength)
	require.Contains(t, []byte{27, 28}, sig[64])

	got, err := Recover(domain, msg, sig)
	require.NoError(t, err)
	require.Equal(t, signer, got)

	raw := append([]byte(nil), sig...)
	raw[64] -= 27
	got, err = Recover(domain, msg, raw)
	require.NoError(t, err)
	require.Equal(t, signer, got, "v in {0,1} must also be accepted")
}

func TestRecoverDifferentMessageYieldsDifferentSigner(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	signer := ethcrypto.PubkeyToAddress(key.PublicKey)
	domain := NewDomain(1, testContract)
	msg := Message{ActionType: ActionAddAsset, DataHash: ethcrypto.Keccak256Hash([]byte("a")), Nonce: uint256.NewInt(0), Deadline: 10}
	sig, err := Sign(domain, msg, key)
	require.NoError(t, err)

	msg.Nonce = uint256.NewInt(1)
	got, err := Recover(domain, msg, sig)
	if err == nil {
		require.NotEqual(t, signer, got)
	}

	other := NewDomain(2, testContract)
	msg.Nonce = uint256.NewInt(0)
	got, err = Recover(other, msg, sig)
	if err == nil {
		require.NotEqual(t, signer, got, "chain id must be bound into the digest")
	}
}

func TestRecoverRejectsMalformedSignatures(t *testing.T) {
	domain := NewDomain(1, testContract)
	msg := Message{DataHash: ethcrypto.Keccak256Hash([]byte("a")), Nonce: uint256.NewInt(0), Deadline: 10}

	for _, sig := range [][]byte{nil, make([]byte, 64), make([]byte, 66)} {
		_, err := Recover(domain, msg, sig)
		if !errors.Is(err, ErrInvalidSignatureFormat) {
			t.Fatalf("len %d: expected ErrInvalidSignatureFormat, got %v", len(sig), err)
		}
	}

	_, err := Recover(domain, msg, make([]byte, SignatureLength))
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestRecoverRejectsHighS(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	domain := NewDomain(1, testContract)
	msg := Message{DataHash: ethcrypto.Keccak256Hash([]byte("a")), Nonce: uint256.NewInt(0), Deadline: 10}
	sig, err := Sign(domain, msg, key)
	require.NoError(t, err)

	n := ethcrypto.S256().Params().N
	s := new(big.Int).SetBytes(sig[32:64])
	flipped := new(big.Int).Sub(n, s)
	malleable := append([]byte(nil), sig...)
	copy(malleable[32:64], common.LeftPadBytes(flipped.Bytes(), 32))
	malleable[64] = 55 - malleable[64]

	_, err = Recover(domain, msg, malleable)
	require.ErrorIs(t, err, ErrInvalidSignature)
}
