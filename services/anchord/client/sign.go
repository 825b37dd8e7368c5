package client

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"anchorledger/core/anchor"
	"anchorledger/services/anchord/api"
)

// SignAnchor fetches the server's domain and the signer's current nonce and
// returns a request ready for Anchor.
func (c *Client) SignAnchor(ctx context.Context, key *ecdsa.PrivateKey, action anchor.ActionType, dataHash anchor.Hash, deadline uint64) (api.AnchorRequest, error) {
	if key == nil {
		return api.AnchorRequest{}, fmt.Errorf("client: signing key required")
	}
	domain, err := c.Domain(ctx)
	if err != nil {
		return api.AnchorRequest{}, err
	}
	user := ethcrypto.PubkeyToAddress(key.PublicKey)
	status, err := c.UserStatus(ctx, user)
	if err != nil {
		return api.AnchorRequest{}, err
	}
	nonce := new(uint256.Int)
	if status.Nonce != nil {
		if overflow := nonce.SetFromBig(status.Nonce.ToInt()); overflow {
			return api.AnchorRequest{}, fmt.Errorf("client: nonce out of range")
		}
	}
	sig, err := anchor.Sign(domain.Domain, anchor.Message{ActionType: action, DataHash: dataHash, Nonce: nonce, Deadline: deadline}, key)
	if err != nil {
		return api.AnchorRequest{}, err
	}
	return api.AnchorRequest{
		User:       user,
		ActionType: action.String(),
		DataHash:   dataHash,
		Deadline:   deadline,
		Signature:  sig,
	}, nil
}
