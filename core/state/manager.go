package state

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"yieldfarm/storage"
)

// ErrAmountOverflow is returned when a stored amount does not fit in 256 bits.
var ErrAmountOverflow = errors.New("state: amount exceeds 256 bits")

type dirtyEntry struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    dirtyEntry
	hadPrev bool
}

// Manager is a journaled overlay over a storage.Database. Writes stay in memory
// until Commit flushes them in one atomic batch; Snapshot/RevertToSnapshot
// undo writes made since the snapshot was taken.
type Manager struct {
	db      storage.Database
	dirty   map[string]dirtyEntry
	journal []journalEntry
}

// NewManager creates a state manager reading through to the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, dirty: make(map[string]dirtyEntry)}
}

// Snapshot returns an identifier for the current journal position.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot undoes every write recorded after the snapshot was taken.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 {
		id = 0
	}
	for len(m.journal) > id {
		last := m.journal[len(m.journal)-1]
		m.journal = m.journal[:len(m.journal)-1]
		if last.hadPrev {
			m.dirty[last.key] = last.prev
		} else {
			delete(m.dirty, last.key)
		}
	}
}

// Commit writes all pending changes to the database atomically and clears the
// journal.
func (m *Manager) Commit() error {
	if len(m.dirty) == 0 {
		m.journal = m.journal[:0]
		return nil
	}
	batch := m.db.NewBatch()
	for key, entry := range m.dirty {
		if entry.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), entry.value)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.dirty = make(map[string]dirtyEntry)
	m.journal = m.journal[:0]
	return nil
}

// Discard drops every uncommitted change.
func (m *Manager) Discard() {
	m.dirty = make(map[string]dirtyEntry)
	m.journal = m.journal[:0]
}

// Pending reports the number of uncommitted keys.
func (m *Manager) Pending() int {
	return len(m.dirty)
}

func hashKey(key []byte) string {
	return string(ethcrypto.Keccak256(key))
}

func (m *Manager) get(key []byte) ([]byte, error) {
	hashed := hashKey(key)
	if entry, ok := m.dirty[hashed]; ok {
		if entry.deleted {
			return nil, nil
		}
		return entry.value, nil
	}
	data, err := m.db.Get([]byte(hashed))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (m *Manager) record(hashed string, next dirtyEntry) {
	prev, ok := m.dirty[hashed]
	m.journal = append(m.journal, journalEntry{key: hashed, prev: prev, hadPrev: ok})
	m.dirty[hashed] = next
}

func (m *Manager) put(key, value []byte) {
	m.record(hashKey(key), dirtyEntry{value: append([]byte(nil), value...)})
}

func (m *Manager) delete(key []byte) {
	m.record(hashKey(key), dirtyEntry{deleted: true})
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.put(key, encoded)
	return nil
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.delete(key)
	return nil
}

func (m *Manager) putAmount(key []byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative amount not allowed")
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return ErrAmountOverflow
	}
	return m.KVPut(key, amount)
}

func (m *Manager) getAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func checkAmounts(values ...*big.Int) error {
	for _, v := range values {
		if v == nil {
			continue
		}
		if v.Sign() < 0 {
			return fmt.Errorf("state: negative amount not allowed")
		}
		if _, overflow := uint256.FromBig(v); overflow {
			return ErrAmountOverflow
		}
	}
	return nil
}
