// Package processor runs one instruction against a list of account buffers
// with all-or-nothing semantics.
//
// The host offers no multi-account commit, so Process snapshots every buffer
// before decoding and writes the snapshot back if anything fails, including a
// panic inside a handler.
package processor

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/uhyunpark/decefi/pkg/program/instruction"
	"github.com/uhyunpark/decefi/pkg/program/programerr"
	"github.com/uhyunpark/decefi/pkg/program/state"
)

// AccountInfo is the host's view of one ledger account for the duration of a call
type AccountInfo struct {
	Key        solana.PublicKey
	Owner      solana.PublicKey
	IsSigner   bool
	IsWritable bool
	Data       []byte
}

// TokenTransfer is the token subsystem invoked alongside Deposit and Withdraw.
// It runs after the account buffer has been rewritten; a failure rolls the
// buffer back.
type TokenTransfer interface {
	Deposit(account solana.PublicKey, amount uint64) error
	Withdraw(account solana.PublicKey, amount uint64) error
}

// CustomError is the host-visible failure: a single u32 code
type CustomError uint32

func (e CustomError) Error() string {
	return fmt.Sprintf("custom program error: %#x (%s)", uint32(e), programerr.Describe(uint32(e)))
}

type Option func(*Processor)

func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) { p.log = l }
}

func WithTokenTransfer(t TokenTransfer) Option {
	return func(p *Processor) { p.transfer = t }
}

type Processor struct {
	log      *zap.Logger
	transfer TokenTransfer
}

func New(opts ...Option) *Processor {
	p := &Processor{log: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OwnerCorrelation is the u64 a CancelOrder instruction carries to name its
// authority: the first 8 bytes of the authority key, little-endian. The
// authority of an orders account is the account's own key; Withdraw,
// NewOrder and CancelOrder need its signature, Deposit does not.
func OwnerCorrelation(key solana.PublicKey) uint64 {
	return binary.LittleEndian.Uint64(key[:8])
}

// Entrypoint is the single call-in boundary used by the host. It returns nil
// or a CustomError.
func (p *Processor) Entrypoint(programID solana.PublicKey, accounts []*AccountInfo, data []byte) error {
	if err := p.Process(programID, accounts, data); err != nil {
		return CustomError(programerr.Encode(err))
	}
	return nil
}

// Process decodes data and applies it to accounts. On error every account
// buffer is byte-for-byte what it was on entry.
func (p *Processor) Process(programID solana.PublicKey, accounts []*AccountInfo, data []byte) (err error) {
	snap := takeSnapshot(accounts)
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(programerr.Assert(false, programerr.UnitProcessor), "handler panic: %v", r)
		}
		if err != nil {
			snap.restore(accounts)
			p.log.Debug("instruction_rolled_back",
				zap.Stringer("program", programID),
				zap.Int("accounts", len(accounts)),
				zap.Int("buffers", len(snap.entries)),
				zap.Error(err))
		}
	}()

	ix, ok := instruction.Decode(data)
	if !ok {
		return programerr.Wrapf(programerr.WrongInput, "malformed instruction (%d bytes)", len(data))
	}
	p.log.Debug("instruction_decoded", zap.Stringer("tag", ix.Tag()))

	switch ix := ix.(type) {
	case instruction.Deposit:
		return p.deposit(programID, accounts, ix.Amount)
	case instruction.Withdraw:
		return p.withdraw(programID, accounts, ix.Amount)
	case instruction.NewOrder:
		return p.newOrder(programID, accounts, ix)
	case instruction.CancelOrder:
		return p.cancelOrder(programID, accounts, ix)
	}
	return programerr.Assert(false, programerr.UnitProcessor)
}

func (p *Processor) deposit(programID solana.PublicKey, accounts []*AccountInfo, amount uint64) error {
	info, acc, err := loadOrders(programID, accounts)
	if err != nil {
		return err
	}
	if err := acc.Deposit(amount); err != nil {
		return err
	}
	if err := storeOrders(info, acc); err != nil {
		return err
	}
	if p.transfer != nil {
		if err := p.transfer.Deposit(info.Key, amount); err != nil {
			return programerr.Wrapf(programerr.InvalidAmount, "transfer in: %v", err)
		}
	}
	return nil
}

func (p *Processor) withdraw(programID solana.PublicKey, accounts []*AccountInfo, amount uint64) error {
	info, acc, err := loadOrders(programID, accounts)
	if err != nil {
		return err
	}
	if !info.IsSigner {
		return programerr.Wrapf(programerr.NoPermission, "withdraw from %s requires its signature", info.Key)
	}
	if err := acc.Withdraw(amount); err != nil {
		return err
	}
	if err := storeOrders(info, acc); err != nil {
		return err
	}
	if p.transfer != nil {
		if err := p.transfer.Withdraw(info.Key, amount); err != nil {
			return programerr.Wrapf(programerr.InvalidAmount, "transfer out: %v", err)
		}
	}
	return nil
}

func (p *Processor) newOrder(programID solana.PublicKey, accounts []*AccountInfo, ix instruction.NewOrder) error {
	info, acc, err := loadOrders(programID, accounts)
	if err != nil {
		return err
	}
	if !info.IsSigner {
		return programerr.Wrapf(programerr.NoPermission, "new order on %s requires its signature", info.Key)
	}
	if err := acc.CreateOrder(state.NewOrder(ix.Hash())); err != nil {
		return err
	}
	return storeOrders(info, acc)
}

// cancelOrder requires the account at OwnerSlot to be the orders account
// itself, signing, and matching the owner correlation in the instruction.
func (p *Processor) cancelOrder(programID solana.PublicKey, accounts []*AccountInfo, ix instruction.CancelOrder) error {
	info, acc, err := loadOrders(programID, accounts)
	if err != nil {
		return err
	}
	slot := int(ix.OwnerSlot)
	if slot >= len(accounts) || accounts[slot] == nil {
		return programerr.Wrapf(programerr.WrongInput, "owner slot %d of %d accounts", slot, len(accounts))
	}
	authority := accounts[slot]
	if !authority.IsSigner || !authority.Key.Equals(info.Key) || OwnerCorrelation(authority.Key) != ix.Owner {
		return programerr.Wrapf(programerr.NoPermission, "account %s may not cancel orders of %s for owner %#x", authority.Key, info.Key, ix.Owner)
	}

	if _, err := acc.CancelOrder(ix.OrderID); err != nil {
		return err
	}
	return storeOrders(info, acc)
}

// loadOrders deserializes accounts[0], the program-owned orders account
func loadOrders(programID solana.PublicKey, accounts []*AccountInfo) (*AccountInfo, *state.Account, error) {
	if len(accounts) == 0 || accounts[0] == nil {
		return nil, nil, programerr.Wrapf(programerr.WrongInput, "missing orders account")
	}
	info := accounts[0]
	if !info.Owner.Equals(programID) {
		return nil, nil, programerr.Wrapf(programerr.NoPermission, "account %s owned by %s", info.Key, info.Owner)
	}
	if !info.IsWritable {
		return nil, nil, programerr.Wrapf(programerr.BorrowError, "account %s is read-only", info.Key)
	}
	acc, err := state.Unpack(info.Data)
	if err != nil {
		return nil, nil, err
	}
	return info, acc, nil
}

func storeOrders(info *AccountInfo, acc *state.Account) error {
	if err := acc.PackInto(info.Data); err != nil {
		return err
	}
	return programerr.Assert(len(info.Data) == state.AccountSize, programerr.UnitProcessor)
}
