package anchor

// State is the key/value view the ledger components read and stage writes
// through. storage.Tx implements it.
type State interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}
