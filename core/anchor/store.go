package anchor

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

type storedRecord struct {
	ActionType ActionType
	Timestamp  uint64
}

// Store maps (user, dataHash) to its record and keeps an insertion-ordered
// history index per user.
type Store struct {
	state State
}

func NewStore(state State) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (State, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("anchor store not initialised")
	}
	return s.state, nil
}

// RecordIfNew stores the record unless the pair already exists. It returns the
// stored record (the original one for duplicates) and whether it was created.
func (s *Store) RecordIfNew(user common.Address, action ActionType, dataHash Hash, timestamp uint64) (Record, bool, error) {
	state, err := s.withState()
	if err != nil {
		return Record{}, false, err
	}
	if dataHash == (Hash{}) {
		return Record{}, false, ErrInvalidDataHash
	}
	existing, ok, err := s.Get(user, dataHash)
	if err != nil {
		return Record{}, false, err
	}
	if ok {
		return existing, false, nil
	}
	count, err := s.Count(user)
	if err != nil {
		return Record{}, false, err
	}
	if err := state.KVPut(recordKey(user, dataHash), storedRecord{ActionType: action, Timestamp: timestamp}); err != nil {
		return Record{}, false, fmt.Errorf("anchor store: persist record: %w", err)
	}
	if err := state.KVPut(historyKey(user, count), dataHash); err != nil {
		return Record{}, false, fmt.Errorf("anchor store: append history: %w", err)
	}
	if err := state.KVPut(historyCountKey(user), count+1); err != nil {
		return Record{}, false, fmt.Errorf("anchor store: bump history count: %w", err)
	}
	return Record{User: user, ActionType: action, DataHash: dataHash, Timestamp: timestamp}, true, nil
}

// Exists is a direct keyed lookup, independent of history length.
func (s *Store) Exists(user common.Address, dataHash Hash) (bool, error) {
	state, err := s.withState()
	if err != nil {
		return false, err
	}
	ok, err := state.KVGet(recordKey(user, dataHash), nil)
	if err != nil {
		return false, fmt.Errorf("anchor store: lookup: %w", err)
	}
	return ok, nil
}

// Get loads a single record.
func (s *Store) Get(user common.Address, dataHash Hash) (Record, bool, error) {
	state, err := s.withState()
	if err != nil {
		return Record{}, false, err
	}
	var stored storedRecord
	ok, err := state.KVGet(recordKey(user, dataHash), &stored)
	if err != nil {
		return Record{}, false, fmt.Errorf("anchor store: load record: %w", err)
	}
	if !ok {
		return Record{}, false, nil
	}
	return Record{User: user, ActionType: stored.ActionType, DataHash: dataHash, Timestamp: stored.Timestamp}, true, nil
}

// Count is the number of distinct anchors recorded for user.
func (s *Store) Count(user common.Address) (uint64, error) {
	state, err := s.withState()
	if err != nil {
		return 0, err
	}
	var count uint64
	if _, err := state.KVGet(historyCountKey(user), &count); err != nil {
		return 0, fmt.Errorf("anchor store: load history count: %w", err)
	}
	return count, nil
}

// History returns up to limit records starting at offset, oldest first. A
// zero or oversized limit is clamped to MaxHistoryPage.
func (s *Store) History(user common.Address, offset, limit uint64) ([]Record, error) {
	state, err := s.withState()
	if err != nil {
		return nil, err
	}
	if limit == 0 || limit > MaxHistoryPage {
		limit = MaxHistoryPage
	}
	count, err := s.Count(user)
	if err != nil {
		return nil, err
	}
	if offset >= count {
		return []Record{}, nil
	}
	end := offset + limit
	if end > count || end < offset {
		end = count
	}
	out := make([]Record, 0, end-offset)
	for seq := offset; seq < end; seq++ {
		var dataHash Hash
		ok, err := state.KVGet(historyKey(user, seq), &dataHash)
		if err != nil {
			return nil, fmt.Errorf("anchor store: load history entry %d: %w", seq, err)
		}
		if !ok {
			return nil, fmt.Errorf("anchor store: history entry %d missing", seq)
		}
		record, ok, err := s.Get(user, dataHash)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("anchor store: record for history entry %d missing", seq)
		}
		out = append(out, record)
	}
	return out, nil
}
