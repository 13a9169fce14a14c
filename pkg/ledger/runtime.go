// Package ledger is a single-node devnet host for the order program: it keeps
// ledger accounts in Pebble, executes transactions through the program
// entrypoint, and commits queued transactions in slots.
package ledger

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/decefi/pkg/ledger/mempool"
	"github.com/uhyunpark/decefi/pkg/program/instruction"
	"github.com/uhyunpark/decefi/pkg/program/processor"
	"github.com/uhyunpark/decefi/pkg/program/programerr"
	"github.com/uhyunpark/decefi/pkg/util"
)

var (
	ErrAccountExists  = errors.New("account already exists")
	ErrUnknownProgram = errors.New("unknown program")
	ErrTooLarge       = errors.New("instruction too large")
)

// errCommitted marks a storage failure that happened after the
// transaction's accounts were written
var errCommitted = errors.New("transaction committed")

type pending struct {
	signature string
	tx        *Transaction
}

// accountStore is the part of *Store the runtime uses
type accountStore interface {
	LoadAccount(key solana.PublicKey) (*Account, error)
	SaveAccounts(accounts ...*Account) error
	ListAccounts(owner *solana.PublicKey) ([]*Account, error)
	SaveReceipt(r *Receipt) error
	LoadReceipt(signature string) (*Receipt, error)
	SaveSlot(rec *SlotRecord) error
	LatestSlot() (*SlotRecord, error)
}

type Option func(*Runtime)

func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

func WithClock(c util.Clock) Option {
	return func(r *Runtime) { r.clock = c }
}

// WithSignatureCheck makes Submit and Execute reject transactions whose
// signer accounts lack a valid signature
func WithSignatureCheck(on bool) Option {
	return func(r *Runtime) { r.verifySigs = on }
}

// WithMaxSlotBytes caps instruction bytes per slot; zero is unbounded
func WithMaxSlotBytes(n int64) Option {
	return func(r *Runtime) { r.maxSlotBytes = n }
}

type Runtime struct {
	mu           sync.Mutex
	store        accountStore
	programID    solana.PublicKey
	program      *processor.Processor
	pool         *mempool.Mempool[pending]
	logger       *zap.Logger
	log          *zap.SugaredLogger
	metrics      *Metrics
	clock        util.Clock
	maxSlotBytes int64
	verifySigs   bool
	slot         uint64

	// OnCommit receives accounts persisted by a successful transaction or
	// account creation. OnReceipt receives every receipt. Both run with the
	// runtime lock held and must not call back into the Runtime.
	OnCommit  func(accounts []*Account)
	OnReceipt func(r Receipt)
}

// NewRuntime resumes from the latest slot recorded in store
func NewRuntime(store *Store, programID solana.PublicKey, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		store:     store,
		programID: programID,
		pool:      mempool.New[pending](),
		logger:    zap.NewNop(),
		clock:     util.RealClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.logger.Sugar()
	r.program = processor.New(processor.WithLogger(r.logger.Named("program")))

	latest, err := store.LatestSlot()
	if err != nil {
		return nil, err
	}
	if latest != nil {
		r.slot = latest.Slot
	}
	return r, nil
}

func (r *Runtime) ProgramID() solana.PublicKey { return r.programID }

// Slot returns the last committed slot
func (r *Runtime) Slot() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slot
}

func (r *Runtime) Pending() int { return r.pool.Len() }

// CreateAccount funds a zeroed account of space bytes owned by owner
func (r *Runtime) CreateAccount(key, owner solana.PublicKey, space int, lamports uint64) (*Account, error) {
	if space < 0 || space > 10<<20 {
		return nil, errors.Newf("invalid account size %d", space)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.store.LoadAccount(key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.Wrapf(ErrAccountExists, "%s", key)
	}

	acc := &Account{Key: key, Owner: owner, Lamports: lamports, Data: make([]byte, space)}
	if err := r.store.SaveAccounts(acc); err != nil {
		return nil, err
	}
	r.log.Infow("account_created", "key", key, "owner", owner, "space", space)
	if r.OnCommit != nil {
		r.OnCommit([]*Account{acc.clone()})
	}
	return acc, nil
}

func (r *Runtime) Account(key solana.PublicKey) (*Account, error) {
	return r.store.LoadAccount(key)
}

// Accounts lists ledger accounts, optionally only those owned by owner
func (r *Runtime) Accounts(owner *solana.PublicKey) ([]*Account, error) {
	return r.store.ListAccounts(owner)
}

func (r *Runtime) Receipt(signature string) (*Receipt, error) {
	return r.store.LoadReceipt(signature)
}

func (r *Runtime) LatestSlot() (*SlotRecord, error) {
	return r.store.LatestSlot()
}

func (r *Runtime) validate(tx *Transaction) error {
	if !tx.ProgramID.Equals(r.programID) {
		return errors.Wrapf(ErrUnknownProgram, "%s", tx.ProgramID)
	}
	if len(tx.Data) > instruction.MaxLen {
		return errors.Wrapf(ErrTooLarge, "%d bytes", len(tx.Data))
	}
	if r.verifySigs {
		return tx.VerifySignatures()
	}
	return nil
}

// Submit queues tx for the next slot and returns its signature
func (r *Runtime) Submit(tx *Transaction) (string, error) {
	if err := r.validate(tx); err != nil {
		return "", err
	}
	sig := uuid.NewString()
	typ := r.pool.Push(tx.Data, len(tx.Data), pending{signature: sig, tx: tx})
	r.metrics.observePending(r.pool.Len())
	r.log.Debugw("tx_queued", "signature", sig, "bucket", typ.String())
	return sig, nil
}

// Execute runs tx immediately against committed state, outside any slot
// boundary. The receipt is stamped with the current slot.
func (r *Runtime) Execute(tx *Transaction) (Receipt, error) {
	if err := r.validate(tx); err != nil {
		return Receipt{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.execute(uuid.NewString(), tx, r.slot)
}

// ProduceSlot drains the mempool, executes what it drained in order and
// commits a slot record. It returns nil when nothing was pending.
//
// A storage error stops the batch. Transactions not yet applied go back to
// the head of the mempool. Those already applied keep their receipts, which
// carry the slot number the next committed slot will use.
func (r *Runtime) ProduceSlot() (*SlotRecord, []Receipt, error) {
	batch := r.pool.SelectForSlot(r.maxSlotBytes)
	if len(batch) == 0 {
		return nil, nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	slot := r.slot + 1
	receipts := make([]Receipt, 0, len(batch))
	failed := 0
	for i, p := range batch {
		rc, err := r.execute(p.signature, p.tx, slot)
		if err != nil {
			tail := batch[i:]
			if errors.Is(err, errCommitted) {
				tail = batch[i+1:]
			}
			r.requeue(tail)
			r.log.Errorw("slot_aborted", "slot", slot, "executed", len(batch)-len(tail), "requeued", len(tail), "err", err)
			return nil, receipts, err
		}
		if !rc.OK {
			failed++
		}
		receipts = append(receipts, rc)
	}

	hash, err := r.stateHash(slot)
	if err != nil {
		return nil, receipts, err
	}
	rec := &SlotRecord{
		Slot:      slot,
		StateHash: hash,
		TxCount:   len(batch),
		Failed:    failed,
		Timestamp: r.clock.Now().UnixMilli(),
	}
	if err := r.store.SaveSlot(rec); err != nil {
		return nil, receipts, err
	}
	r.slot = slot
	r.metrics.observeSlot(slot, len(batch), r.pool.Len())
	r.log.Infow("slot_committed", "slot", slot, "txs", len(batch), "failed", failed, "state_hash", hash)
	return rec, receipts, nil
}

// execute must be called with r.mu held. Only storage failures are returned
// as errors; program failures are reported in the receipt.
func (r *Runtime) execute(sig string, tx *Transaction, slot uint64) (Receipt, error) {
	rc := Receipt{Signature: sig, Slot: slot}

	// One Account per distinct key. Repeated keys share the same Data, so the
	// program sees them as aliases of one buffer.
	loaded := make(map[solana.PublicKey]*Account, len(tx.Accounts))
	original := make(map[solana.PublicKey][]byte, len(tx.Accounts))
	var order []solana.PublicKey
	infos := make([]*processor.AccountInfo, len(tx.Accounts))
	for i, meta := range tx.Accounts {
		acc, ok := loaded[meta.Key]
		if !ok {
			stored, err := r.store.LoadAccount(meta.Key)
			if err != nil {
				return rc, err
			}
			if stored == nil {
				stored = &Account{Key: meta.Key, Owner: SystemProgramID}
			}
			acc = stored
			loaded[meta.Key] = acc
			original[meta.Key] = append([]byte(nil), acc.Data...)
			order = append(order, meta.Key)
		}
		infos[i] = &processor.AccountInfo{
			Key:        acc.Key,
			Owner:      acc.Owner,
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
			Data:       acc.Data,
		}
	}

	variant := "invalid"
	if tag, ok := instruction.Kind(tx.Data); ok {
		variant = tag.String()
	}

	if err := r.program.Entrypoint(tx.ProgramID, infos, tx.Data); err != nil {
		var custom processor.CustomError
		if !errors.As(err, &custom) {
			return rc, errors.Wrap(err, "entrypoint returned a non-program error")
		}
		rc.Code = uint32(custom)
		rc.Error = programerr.Describe(rc.Code)
		r.metrics.observe(variant, resultLabel(rc.Code), true)
		r.log.Infow("tx_failed", "signature", sig, "slot", slot, "variant", variant, "code", rc.Code, "error", rc.Error)
		return rc, r.finish(&rc, nil)
	}

	var changed []*Account
	for _, key := range order {
		acc := loaded[key]
		if !acc.Owner.Equals(r.programID) || bytes.Equal(acc.Data, original[key]) {
			continue
		}
		changed = append(changed, acc)
		rc.Updated = append(rc.Updated, key)
	}
	if len(changed) > 0 {
		if err := r.store.SaveAccounts(changed...); err != nil {
			return rc, err
		}
	}
	rc.OK = true
	r.metrics.observe(variant, "ok", false)
	r.log.Infow("tx_executed", "signature", sig, "slot", slot, "variant", variant, "updated", len(changed))
	if err := r.finish(&rc, changed); err != nil {
		if len(changed) > 0 {
			return rc, errors.Mark(err, errCommitted)
		}
		return rc, err
	}
	return rc, nil
}

// requeue returns unexecuted slot transactions to the head of the mempool,
// keeping their order
func (r *Runtime) requeue(batch []pending) {
	for i := len(batch) - 1; i >= 0; i-- {
		p := batch[i]
		r.pool.PushFront(p.tx.Data, len(p.tx.Data), p)
	}
	r.metrics.observePending(r.pool.Len())
}

func (r *Runtime) finish(rc *Receipt, changed []*Account) error {
	if err := r.store.SaveReceipt(rc); err != nil {
		return err
	}
	if len(changed) > 0 && r.OnCommit != nil {
		out := make([]*Account, len(changed))
		for i, acc := range changed {
			out[i] = acc.clone()
		}
		r.OnCommit(out)
	}
	if r.OnReceipt != nil {
		r.OnReceipt(*rc)
	}
	return nil
}

// stateHash is sha3-256 over the slot number and every account in key order
func (r *Runtime) stateHash(slot uint64) (string, error) {
	accounts, err := r.store.ListAccounts(nil)
	if err != nil {
		return "", err
	}
	h := sha3.New256()
	var word [8]byte
	binary.LittleEndian.PutUint64(word[:], slot)
	h.Write(word[:])
	for _, acc := range accounts {
		h.Write(acc.Key[:])
		h.Write(acc.Owner[:])
		binary.LittleEndian.PutUint64(word[:], acc.Lamports)
		h.Write(word[:])
		binary.LittleEndian.PutUint64(word[:], uint64(len(acc.Data)))
		h.Write(word[:])
		h.Write(acc.Data)
	}
	return hexutil.Encode(h.Sum(nil)), nil
}

// resultLabel keeps assertion codes from creating one series per source line
func resultLabel(code uint32) string {
	if code>>24 != 0 {
		return programerr.AssertionError.String()
	}
	return programerr.Code(code).String()
}
