package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"anchorledger/core/anchor"
	"anchorledger/crypto"
	"anchorledger/services/anchord/api"
	"anchorledger/services/anchord/journal"
)

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decode body: %v", anchor.ErrInvalidInput, err)
	}
	return nil
}

func parseUser(raw string) (common.Address, error) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", anchor.ErrInvalidInput, err)
	}
	return addr.Address, nil
}

func parseHash(raw string) (common.Hash, error) {
	decoded, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil || len(decoded) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: data hash must be 32 bytes of 0x-prefixed hex", anchor.ErrInvalidInput)
	}
	return common.BytesToHash(decoded), nil
}

func parseUintParam(r *http.Request, name string) (uint64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an unsigned integer", anchor.ErrInvalidInput, name)
	}
	return v, nil
}

// rejectWhilePaused answers writes before any request validation so a paused
// ledger reports EnforcedPause regardless of the body.
func (s *Server) rejectWhilePaused(w http.ResponseWriter) bool {
	if !s.ledger.Paused() {
		return false
	}
	writeLedgerError(w, anchor.ErrEnforcedPause)
	return true
}

func (s *Server) handleAnchor(w http.ResponseWriter, r *http.Request) {
	if s.rejectWhilePaused(w) {
		return
	}
	var body api.AnchorRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeLedgerError(w, err)
		return
	}
	action, err := anchor.ParseActionType(body.ActionType)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	id, err := s.ledger.Anchor(r.Context(), anchor.Request{
		User:       body.User,
		ActionType: action,
		DataHash:   body.DataHash,
		Deadline:   body.Deadline,
		Signature:  body.Signature,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	record, _, err := s.ledger.Record(body.User, body.DataHash)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.AnchorResponse{ID: id, Record: record})
}

func (s *Server) handleBatchAnchor(w http.ResponseWriter, r *http.Request) {
	if s.rejectWhilePaused(w) {
		return
	}
	var body api.BatchAnchorRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeLedgerError(w, err)
		return
	}
	actions := make([]anchor.ActionType, len(body.ActionTypes))
	for i, raw := range body.ActionTypes {
		action, err := anchor.ParseActionType(raw)
		if err != nil {
			writeLedgerError(w, fmt.Errorf("item %d: %w", i, err))
			return
		}
		actions[i] = action
	}
	ids, err := s.ledger.BatchAnchor(r.Context(), anchor.BatchRequest{
		User:        body.User,
		ActionTypes: actions,
		DataHashes:  body.DataHashes,
		Deadline:    body.Deadline,
		Signatures:  body.Signatures,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.BatchAnchorResponse{IDs: ids})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	user, err := parseUser(chi.URLParam(r, "user"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	dataHash, err := parseHash(chi.URLParam(r, "dataHash"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	record, ok, err := s.ledger.Record(user, dataHash)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	resp := api.VerifyResponse{Exists: ok}
	if ok {
		resp.Record = &record
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	user, err := parseUser(chi.URLParam(r, "user"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	offset, err := parseUintParam(r, "offset")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	limit, err := parseUintParam(r, "limit")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	records, err := s.ledger.UserAnchors(user, offset, limit)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	total, err := s.ledger.AnchorCount(user)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.HistoryResponse{Anchors: records, Total: total, Offset: offset})
}

func (s *Server) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	user, err := parseUser(chi.URLParam(r, "user"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	status, err := s.ledger.Status(user)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.UserStatusResponse{
		User:           user,
		Nonce:          (*hexutil.Big)(status.Nonce.ToBig()),
		RemainingQuota: status.RemainingQuota,
		NextAnchorTime: status.NextAnchorTime,
		AnchorCount:    status.AnchorCount,
	})
}

func (s *Server) handleDomain(w http.ResponseWriter, r *http.Request) {
	domain := s.ledger.Domain()
	limits := s.ledger.Limits()
	writeJSON(w, http.StatusOK, api.DomainResponse{
		Domain:        domain,
		Separator:     domain.Separator(),
		SchemaVersion: s.ledger.SchemaVersion(),
		MaxPerWindow:  limits.MaxPerWindow,
		WindowSeconds: uint64(limits.Window.Seconds()),
		MinDelay:      uint64(limits.MinDelay.Seconds()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.StatusResponse{Paused: s.ledger.Paused(), Owner: s.ledger.Owner()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSONError(w, http.StatusNotFound, "NotFound", "event journal disabled")
		return
	}
	filter := journal.Filter{}
	if raw := strings.TrimSpace(r.URL.Query().Get("user")); raw != "" {
		user, err := parseUser(raw)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		filter.User = &user
	}
	since, err := parseUintParam(r, "since")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	limit, err := parseUintParam(r, "limit")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	filter.Since = since
	if limit > journal.MaxQueryLimit {
		limit = journal.MaxQueryLimit
	}
	filter.Limit = int(limit)
	entries, err := s.journal.Query(r.Context(), filter)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	resp := api.EventsResponse{Events: make([]api.EventView, 0, len(entries))}
	for _, entry := range entries {
		resp.Events = append(resp.Events, eventViewFrom(entry))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.togglePause(w, r, true)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	s.togglePause(w, r, false)
}

func (s *Server) togglePause(w http.ResponseWriter, r *http.Request, pause bool) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeLedgerError(w, anchor.ErrUnauthorized)
		return
	}
	var err error
	if pause {
		err = s.ledger.Pause(caller)
	} else {
		err = s.ledger.Unpause(caller)
	}
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, api.StatusResponse{Paused: s.ledger.Paused(), Owner: s.ledger.Owner()})
	case errors.Is(err, anchor.ErrEnforcedPause):
		// Already paused: a conflict for the admin, not an outage.
		writeJSONError(w, http.StatusConflict, anchor.Reason(err), err.Error())
	default:
		writeLedgerError(w, err)
	}
}
