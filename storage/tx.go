package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// Tx stages writes on top of a Database. Reads see staged values first.
// Nothing reaches the database until Commit, which writes every staged key in
// a single batch; dropping the Tx discards the staged state.
type Tx struct {
	db      Database
	pending map[string][]byte
	order   []string
}

// NewTx opens an overlay on db.
func NewTx(db Database) *Tx {
	return &Tx{db: db, pending: make(map[string][]byte)}
}

// Get returns the staged or committed value for key.
func (t *Tx) Get(key []byte) ([]byte, bool, error) {
	if value, ok := t.pending[string(key)]; ok {
		return value, true, nil
	}
	value, err := t.db.Get(key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Put stages value under key.
func (t *Tx) Put(key, value []byte) {
	k := string(key)
	if _, ok := t.pending[k]; !ok {
		t.order = append(t.order, k)
	}
	t.pending[k] = append([]byte(nil), value...)
}

// KVGet decodes the RLP value stored under key into out.
func (t *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	raw, ok, err := t.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("storage: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut RLP-encodes value and stages it under key.
func (t *Tx) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("storage: encode %q: %w", key, err)
	}
	t.Put(key, encoded)
	return nil
}

// Dirty reports the number of staged keys.
func (t *Tx) Dirty() int {
	return len(t.order)
}

// Commit writes all staged keys atomically and resets the overlay.
func (t *Tx) Commit() error {
	if len(t.order) == 0 {
		return nil
	}
	batch := new(Batch)
	for _, k := range t.order {
		batch.Put([]byte(k), t.pending[k])
	}
	if err := t.db.Write(batch); err != nil {
		return err
	}
	t.pending = make(map[string][]byte)
	t.order = nil
	return nil
}
