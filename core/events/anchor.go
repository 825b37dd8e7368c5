package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypePortfolioAnchored is emitted once per successfully anchored commitment.
	TypePortfolioAnchored = "anchor.portfolio_anchored"
)

// PortfolioAnchored mirrors the ledger's audit event.
type PortfolioAnchored struct {
	User          common.Address `json:"user"`
	ActionType    uint8          `json:"actionType"`
	Action        string         `json:"action"`
	DataHash      common.Hash    `json:"dataHash"`
	Timestamp     uint64         `json:"timestamp"`
	SchemaVersion uint8          `json:"schemaVersion"`
}

func (PortfolioAnchored) EventType() string { return TypePortfolioAnchored }

// Attributes flattens the event into string attributes for log lines and
// generic consumers.
func (e PortfolioAnchored) Attributes() map[string]string {
	return map[string]string{
		"user":          e.User.Hex(),
		"actionType":    strconv.Itoa(int(e.ActionType)),
		"action":        e.Action,
		"dataHash":      e.DataHash.Hex(),
		"timestamp":     strconv.FormatUint(e.Timestamp, 10),
		"schemaVersion": strconv.Itoa(int(e.SchemaVersion)),
	}
}
