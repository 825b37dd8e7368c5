package anchor

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// NonceRegistry tracks the per-user replay counter. Unseen users start at 0.
type NonceRegistry struct {
	state State
}

func NewNonceRegistry(state State) *NonceRegistry {
	return &NonceRegistry{state: state}
}

// Current returns the nonce the user's next signature must embed.
func (r *NonceRegistry) Current(user common.Address) (*uint256.Int, error) {
	if r == nil || r.state == nil {
		return nil, fmt.Errorf("nonce registry not initialised")
	}
	var raw []byte
	ok, err := r.state.KVGet(nonceKey(user), &raw)
	if err != nil {
		return nil, fmt.Errorf("nonce: load: %w", err)
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).SetBytes(raw), nil
}

// Consume advances the counter by one iff expected is the current value. A
// replayed signature embeds a stale nonce and is rejected here.
func (r *NonceRegistry) Consume(user common.Address, expected *uint256.Int) error {
	current, err := r.Current(user)
	if err != nil {
		return err
	}
	if expected == nil || !current.Eq(expected) {
		return fmt.Errorf("%w: stale nonce", ErrInvalidSignature)
	}
	next, overflow := new(uint256.Int).AddOverflow(current, uint256.NewInt(1))
	if overflow {
		return fmt.Errorf("%w: nonce exhausted", ErrInvalidSignature)
	}
	if err := r.state.KVPut(nonceKey(user), next.Bytes()); err != nil {
		return fmt.Errorf("nonce: persist: %w", err)
	}
	return nil
}
