package ledger

import (
	"github.com/gagliardetto/solana-go"
)

// SystemProgramID owns every account the order program has not been given
var SystemProgramID = solana.SystemProgramID

// Account is one ledger entry as the store persists it
type Account struct {
	Key      solana.PublicKey `json:"key"`
	Owner    solana.PublicKey `json:"owner"`
	Lamports uint64           `json:"lamports"`
	Data     []byte           `json:"data"`
}

func (a *Account) clone() *Account {
	cp := *a
	cp.Data = append([]byte(nil), a.Data...)
	return &cp
}

// AccountMeta names one account slot of a transaction
type AccountMeta struct {
	Key        solana.PublicKey `json:"key"`
	IsSigner   bool             `json:"isSigner"`
	IsWritable bool             `json:"isWritable"`
}

// Transaction invokes ProgramID once with Data over Accounts, in order.
// The same key may be listed more than once. Nonce only varies the signed
// message so identical instructions get distinct signatures.
type Transaction struct {
	ProgramID  solana.PublicKey `json:"programId"`
	Nonce      uint64           `json:"nonce"`
	Accounts   []AccountMeta    `json:"accounts"`
	Data       []byte           `json:"data"`
	Signatures []TxSignature    `json:"signatures,omitempty"`
}

// Receipt records the outcome of one transaction
type Receipt struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	OK        bool   `json:"ok"`
	// Code is the program's u32 failure code, meaningful only when OK is false
	Code  uint32 `json:"code"`
	Error string `json:"error,omitempty"`
	// Updated lists accounts whose data was persisted
	Updated []solana.PublicKey `json:"updated,omitempty"`
}

// SlotRecord is the committed summary of one slot
type SlotRecord struct {
	Slot      uint64 `json:"slot"`
	StateHash string `json:"stateHash"`
	TxCount   int    `json:"txCount"`
	Failed    int    `json:"failed"`
	Timestamp int64  `json:"timestamp"`
}
