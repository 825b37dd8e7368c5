// Package api holds the JSON shapes served by anchord.
package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"anchorledger/core/anchor"
)

// AnchorRequest is the JSON body of POST /v1/anchors. ActionType accepts the
// symbolic name or the ordinal.
type AnchorRequest struct {
	User       common.Address `json:"user"`
	ActionType string         `json:"actionType"`
	DataHash   common.Hash    `json:"dataHash"`
	Deadline   uint64         `json:"deadline"`
	Signature  hexutil.Bytes  `json:"signature"`
}

// AnchorResponse is returned for a single accepted anchor.
type AnchorResponse struct {
	ID     common.Hash   `json:"id"`
	Record anchor.Record `json:"record"`
}

// BatchAnchorRequest is the JSON body of POST /v1/anchors/batch.
type BatchAnchorRequest struct {
	User        common.Address  `json:"user"`
	ActionTypes []string        `json:"actionTypes"`
	DataHashes  []common.Hash   `json:"dataHashes"`
	Deadline    uint64          `json:"deadline"`
	Signatures  []hexutil.Bytes `json:"signatures"`
}

// BatchAnchorResponse lists IDs in request order.
type BatchAnchorResponse struct {
	IDs []common.Hash `json:"ids"`
}

// VerifyResponse answers GET /v1/anchors/{user}/{dataHash}.
type VerifyResponse struct {
	Exists bool           `json:"exists"`
	Record *anchor.Record `json:"record,omitempty"`
}

// HistoryResponse answers GET /v1/users/{user}/anchors.
type HistoryResponse struct {
	Anchors []anchor.Record `json:"anchors"`
	Total   uint64          `json:"total"`
	Offset  uint64          `json:"offset"`
}

// UserStatusResponse answers GET /v1/users/{user}/status.
type UserStatusResponse struct {
	User           common.Address `json:"user"`
	Nonce          *hexutil.Big   `json:"nonce"`
	RemainingQuota uint64         `json:"remainingQuota"`
	NextAnchorTime uint64         `json:"nextAnchorTime"`
	AnchorCount    uint64         `json:"anchorCount"`
}

// DomainResponse publishes what clients must sign against.
type DomainResponse struct {
	anchor.Domain
	Separator     common.Hash `json:"separator"`
	SchemaVersion uint8       `json:"schemaVersion"`
	MaxPerWindow  uint64      `json:"maxPerWindow"`
	WindowSeconds uint64      `json:"windowSeconds"`
	MinDelay      uint64      `json:"minDelaySeconds"`
}

// StatusResponse answers GET /v1/status and the admin toggles.
type StatusResponse struct {
	Paused bool           `json:"paused"`
	Owner  common.Address `json:"owner"`
}

// EventView is one journaled event.
type EventView struct {
	ID            string         `json:"id"`
	User          common.Address `json:"user"`
	ActionType    uint8          `json:"actionType"`
	Action        string         `json:"action"`
	DataHash      common.Hash    `json:"dataHash"`
	Timestamp     uint64         `json:"timestamp"`
	SchemaVersion uint8          `json:"schemaVersion"`
	RecordedAt    string         `json:"recordedAt"`
}

// EventsResponse answers GET /v1/events.
type EventsResponse struct {
	Events []EventView `json:"events"`
}
