package api

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gagliardetto/solana-go"

	"github.com/uhyunpark/decefi/pkg/ledger"
)

// API request/response types for REST endpoints and WebSocket messages

// ==============================
// REST Request Types
// ==============================

// CreateAccountRequest funds a devnet account. Owner defaults to the program
// and Space to the orders account size.
type CreateAccountRequest struct {
	Key      solana.PublicKey  `json:"key"`
	Owner    *solana.PublicKey `json:"owner,omitempty"`
	Space    *int              `json:"space,omitempty"`
	Lamports uint64            `json:"lamports"`
}

// TransactionRequest carries instruction data as 0x-prefixed hex
type TransactionRequest struct {
	ProgramID  *solana.PublicKey    `json:"programId,omitempty"` // defaults to the node's program
	Nonce      uint64               `json:"nonce"`
	Accounts   []ledger.AccountMeta `json:"accounts"`
	Data       hexutil.Bytes        `json:"data"`
	Signatures []ledger.TxSignature `json:"signatures,omitempty"`
}

// ==============================
// REST Response Types
// ==============================

// AccountView is a ledger account plus, for program-owned accounts that
// decode, its order book
type AccountView struct {
	Key      string      `json:"key"`
	Owner    string      `json:"owner"`
	Lamports uint64      `json:"lamports"`
	Data     string      `json:"data"` // hex
	Orders   *OrdersView `json:"orders,omitempty"`
}

type OrdersView struct {
	Reserved uint64      `json:"reserved"`
	Orders   []OrderView `json:"orders"`
}

type OrderView struct {
	ID       string `json:"id"` // u128, 0x hex
	State    string `json:"state"`
	Hash     string `json:"hash"`
	PaidBack uint64 `json:"paidBack"`
	Reserved uint64 `json:"reserved"`
}

type SubmitResponse struct {
	Status    string          `json:"status"` // "queued" or "executed"
	Signature string          `json:"signature"`
	Receipt   *ledger.Receipt `json:"receipt,omitempty"`
}

type StatusResponse struct {
	ProgramID        string `json:"programId"`
	Slot             uint64 `json:"slot"`
	Pending          int    `json:"pending"`
	CodeTableVersion int    `json:"codeTableVersion"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

type AccountUpdate struct {
	Type    string      `json:"type"` // "account"
	Account AccountView `json:"account"`
}

type ReceiptUpdate struct {
	Type    string         `json:"type"` // "receipt"
	Receipt ledger.Receipt `json:"receipt"`
}

type SlotUpdate struct {
	Type string            `json:"type"` // "slot"
	Slot ledger.SlotRecord `json:"slot"`
}

// WSAck answers every subscribe/unsubscribe request. Rejected lists
// channel names that are not recognised.
type WSAck struct {
	Type     string   `json:"type"` // "subscribed", "unsubscribed" or "error"
	Channels []string `json:"channels,omitempty"`
	Rejected []string `json:"rejected,omitempty"`
	Message  string   `json:"message,omitempty"`
}
