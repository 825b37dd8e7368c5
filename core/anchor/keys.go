package anchor

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const anchorPrefix = "anchor"

func nonceKey(user common.Address) []byte {
	return []byte(fmt.Sprintf("%s/nonce/%x", anchorPrefix, user.Bytes()))
}

func windowKey(user common.Address) []byte {
	return []byte(fmt.Sprintf("%s/window/%x", anchorPrefix, user.Bytes()))
}

func recordKey(user common.Address, dataHash Hash) []byte {
	return []byte(fmt.Sprintf("%s/record/%x/%x", anchorPrefix, user.Bytes(), dataHash.Bytes()))
}

func historyCountKey(user common.Address) []byte {
	return []byte(fmt.Sprintf("%s/history/%x/count", anchorPrefix, user.Bytes()))
}

// The zero-padded sequence keeps a user's history ordered under a prefix scan.
func historyKey(user common.Address, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s/history/%x/%020d", anchorPrefix, user.Bytes(), seq))
}
