package anchor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	// SchemaVersion tags every emitted event so consumers can tell record
	// formats apart across deployments.
	SchemaVersion uint8 = 1

	DefaultMaxPerWindow = 10
	DefaultWindow       = time.Hour
	DefaultMinDelay     = time.Minute

	// MaxHistoryPage caps the page size returned by history reads.
	MaxHistoryPage = 100

	// SignatureLength is r || s || v.
	SignatureLength = 65
)

// ActionType categorises the portfolio action a commitment stands for.
type ActionType uint8

const (
	ActionAddAsset ActionType = iota
	ActionUpdatePortfolio
	ActionDeleteAsset
	ActionRebalance
)

var actionNames = [...]string{"ADD_ASSET", "UPDATE_PORTFOLIO", "DELETE_ASSET", "REBALANCE"}

// Valid reports whether a is one of the known actions.
func (a ActionType) Valid() bool {
	return int(a) < len(actionNames)
}

func (a ActionType) String() string {
	if !a.Valid() {
		return fmt.Sprintf("ActionType(%d)", uint8(a))
	}
	return actionNames[a]
}

// ParseActionType accepts the symbolic name (case-insensitive) or the ordinal.
func ParseActionType(raw string) (ActionType, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	for i, name := range actionNames {
		if trimmed == name {
			return ActionType(i), nil
		}
	}
	if n, err := strconv.ParseUint(trimmed, 10, 8); err == nil && ActionType(n).Valid() {
		return ActionType(n), nil
	}
	return 0, fmt.Errorf("%w: unknown action type %q", ErrInvalidInput, raw)
}

// Hash is a 32-byte commitment digest.
type Hash = common.Hash

// ID identifies a stored anchor: keccak256(user || dataHash).
type ID = common.Hash

// RecordID derives the identifier for a (user, dataHash) pair.
func RecordID(user common.Address, dataHash Hash) ID {
	return ethcrypto.Keccak256Hash(user.Bytes(), dataHash.Bytes())
}

// Record is an immutable anchor entry.
type Record struct {
	User       common.Address
	ActionType ActionType
	DataHash   Hash
	Timestamp  uint64
}

// ID returns the record identifier.
func (r Record) ID() ID {
	return RecordID(r.User, r.DataHash)
}

type recordJSON struct {
	ID         ID             `json:"id"`
	User       common.Address `json:"user"`
	ActionType string         `json:"actionType"`
	DataHash   Hash           `json:"dataHash"`
	Timestamp  uint64         `json:"timestamp"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		ID:         r.ID(),
		User:       r.User,
		ActionType: r.ActionType.String(),
		DataHash:   r.DataHash,
		Timestamp:  r.Timestamp,
	})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	action, err := ParseActionType(raw.ActionType)
	if err != nil {
		return err
	}
	*r = Record{User: raw.User, ActionType: action, DataHash: raw.DataHash, Timestamp: raw.Timestamp}
	return nil
}

// Request is a single signed anchor submission. User is the identity claimed
// by the wallet layer; the signature must recover to it.
type Request struct {
	User       common.Address
	ActionType ActionType
	DataHash   Hash
	Deadline   uint64
	Signature  hexutil.Bytes
}

// BatchRequest carries parallel arrays that share one deadline.
type BatchRequest struct {
	User        common.Address
	ActionTypes []ActionType
	DataHashes  []Hash
	Deadline    uint64
	Signatures  []hexutil.Bytes
}

// Limits tunes the rate limiter.
type Limits struct {
	MaxPerWindow uint64
	Window       time.Duration
	MinDelay     time.Duration
}

// DefaultLimits returns 10 anchors per hour with a one minute cooldown.
func DefaultLimits() Limits {
	return Limits{MaxPerWindow: DefaultMaxPerWindow, Window: DefaultWindow, MinDelay: DefaultMinDelay}
}

func (l Limits) withDefaults() Limits {
	if l == (Limits{}) {
		return DefaultLimits()
	}
	if l.MaxPerWindow == 0 {
		l.MaxPerWindow = DefaultMaxPerWindow
	}
	if l.Window <= 0 {
		l.Window = DefaultWindow
	}
	if l.MinDelay < 0 {
		l.MinDelay = 0
	}
	return l
}

func (l Limits) windowSeconds() uint64 {
	return uint64(l.Window / time.Second)
}

func (l Limits) minDelaySeconds() uint64 {
	return uint64(l.MinDelay / time.Second)
}
