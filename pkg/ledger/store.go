package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/gagliardetto/solana-go"
)

// Store provides Pebble-based persistence for ledger accounts, receipts and
// slot records. Callers serialize writes; Runtime holds its mutex around them.
type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(64 << 20),
		MemTableSize:             32 << 20,
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// LoadAccount returns nil if the account doesn't exist
func (s *Store) LoadAccount(key solana.PublicKey) (*Account, error) {
	data, closer, err := s.db.Get(accountKey(key))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", key, err)
	}
	defer closer.Close()

	var acc Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account %s: %w", key, err)
	}
	return &acc, nil
}

// SaveAccounts writes every account in one atomic batch
func (s *Store) SaveAccounts(accounts ...*Account) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, acc := range accounts {
		data, err := json.Marshal(acc)
		if err != nil {
			return fmt.Errorf("failed to marshal account %s: %w", acc.Key, err)
		}
		if err := batch.Set(accountKey(acc.Key), data, nil); err != nil {
			return fmt.Errorf("failed to stage account %s: %w", acc.Key, err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit accounts: %w", err)
	}
	return nil
}

// ListAccounts returns every account, ordered by key string. When owner is
// non-nil only accounts it owns are returned.
func (s *Store) ListAccounts(owner *solana.PublicKey) ([]*Account, error) {
	prefix := []byte(prefixAccount)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open account iterator: %w", err)
	}
	defer iter.Close()

	var out []*Account
	for iter.First(); iter.Valid(); iter.Next() {
		var acc Account
		if err := json.Unmarshal(iter.Value(), &acc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", iter.Key(), err)
		}
		if owner != nil && !acc.Owner.Equals(*owner) {
			continue
		}
		out = append(out, &acc)
	}
	return out, iter.Error()
}

func (s *Store) SaveReceipt(r *Receipt) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}
	// NoSync: receipts carry no account state.
	if err := s.db.Set(receiptKey(r.Signature), data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save receipt: %w", err)
	}
	return nil
}

// LoadReceipt returns nil if no receipt has that signature
func (s *Store) LoadReceipt(signature string) (*Receipt, error) {
	data, closer, err := s.db.Get(receiptKey(signature))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	defer closer.Close()

	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt: %w", err)
	}
	return &r, nil
}

func (s *Store) SaveSlot(rec *SlotRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal slot: %w", err)
	}
	if err := s.db.Set(slotKey(rec.Slot), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save slot %d: %w", rec.Slot, err)
	}
	return nil
}

// LatestSlot returns the highest committed slot, or nil before the first one
func (s *Store) LatestSlot() (*SlotRecord, error) {
	prefix := []byte(prefixSlot)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open slot iterator: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		return nil, iter.Error()
	}
	var rec SlotRecord
	if err := json.Unmarshal(iter.Value(), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal slot: %w", err)
	}
	return &rec, nil
}
