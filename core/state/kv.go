package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"nftbank/storage"
)

// KV provides RLP-encoded typed access over a raw key-value database together
// with a journal so a failed entry point can unwind every write it made.
type KV struct {
	db      storage.Database
	journal []journalEntry
}

type journalEntry struct {
	key     []byte
	prev    []byte
	existed bool
}

// NewKV wraps the supplied database.
func NewKV(db storage.Database) *KV {
	return &KV{db: db}
}

// KVPut encodes the value with RLP and stores it under key, journaling the
// previous value for revert.
func (k *KV) KVPut(key []byte, value interface{}) error {
	if k == nil || k.db == nil {
		return errors.New("state: database not configured")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	if err := k.journalKey(key); err != nil {
		return err
	}
	return k.db.Put(key, encoded)
}

// KVGet decodes the stored value into out. The boolean reports whether the key
// existed; a missing key is not an error.
func (k *KV) KVGet(key []byte, out interface{}) (bool, error) {
	if k == nil || k.db == nil {
		return false, errors.New("state: database not configured")
	}
	encoded, err := k.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVDelete removes the key, journaling the previous value.
func (k *KV) KVDelete(key []byte) error {
	if k == nil || k.db == nil {
		return errors.New("state: database not configured")
	}
	if err := k.journalKey(key); err != nil {
		return err
	}
	return k.db.Delete(key)
}

func (k *KV) journalKey(key []byte) error {
	entry := journalEntry{key: append([]byte(nil), key...)}
	prev, err := k.db.Get(key)
	switch {
	case err == nil:
		entry.prev = prev
		entry.existed = true
	case errors.Is(err, storage.ErrNotFound):
		// first write for this key
	default:
		return err
	}
	k.journal = append(k.journal, entry)
	return nil
}

// Snapshot marks the current journal position. Pass the returned handle to
// RevertToSnapshot to unwind everything written after this point.
func (k *KV) Snapshot() int {
	if k == nil {
		return 0
	}
	return len(k.journal)
}

// RevertToSnapshot restores every key written since the snapshot was taken,
// newest first.
func (k *KV) RevertToSnapshot(snapshot int) error {
	if k == nil {
		return nil
	}
	if snapshot < 0 || snapshot > len(k.journal) {
		return fmt.Errorf("state: invalid snapshot %d", snapshot)
	}
	for i := len(k.journal) - 1; i >= snapshot; i-- {
		entry := k.journal[i]
		var err error
		if entry.existed {
			err = k.db.Put(entry.key, entry.prev)
		} else {
			err = k.db.Delete(entry.key)
		}
		if err != nil {
			return err
		}
	}
	k.journal = k.journal[:snapshot]
	return nil
}

// DiscardJournal clears all journal entries. Call once per completed entry
// point so memory does not grow without bound.
func (k *KV) DiscardJournal() {
	if k == nil {
		return
	}
	k.journal = k.journal[:0]
}
