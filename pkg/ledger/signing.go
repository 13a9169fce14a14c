package ledger

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/gagliardetto/solana-go"
)

var ErrBadSignature = errors.New("signature verification failed")

// TxSignature is one signer's ed25519 signature over Transaction.Message
type TxSignature struct {
	Signer    solana.PublicKey `json:"signer"`
	Signature solana.Signature `json:"signature"`
}

// Message is the byte string signers commit to:
//
//	program id [32] | nonce u64 | account count u16 |
//	count x (key [32] | flags u8) | data length u16 | data
//
// flags bit 0 is signer, bit 1 writable. Signatures are not part of it.
func (tx *Transaction) Message() []byte {
	out := make([]byte, 0, 32+8+2+len(tx.Accounts)*33+2+len(tx.Data))
	out = append(out, tx.ProgramID[:]...)
	out = binary.LittleEndian.AppendUint64(out, tx.Nonce)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(tx.Accounts)))
	for _, m := range tx.Accounts {
		var flags byte
		if m.IsSigner {
			flags |= 1
		}
		if m.IsWritable {
			flags |= 2
		}
		out = append(out, m.Key[:]...)
		out = append(out, flags)
	}
	out = binary.LittleEndian.AppendUint16(out, uint16(len(tx.Data)))
	return append(out, tx.Data...)
}

// Sign appends one signature per key, replacing any earlier signature by the
// same signer.
func (tx *Transaction) Sign(keys ...solana.PrivateKey) error {
	msg := tx.Message()
	for _, key := range keys {
		sig, err := key.Sign(msg)
		if err != nil {
			return errors.Wrapf(err, "sign as %s", key.PublicKey())
		}
		pub := key.PublicKey()
		replaced := false
		for i := range tx.Signatures {
			if tx.Signatures[i].Signer.Equals(pub) {
				tx.Signatures[i].Signature = sig
				replaced = true
			}
		}
		if !replaced {
			tx.Signatures = append(tx.Signatures, TxSignature{Signer: pub, Signature: sig})
		}
	}
	return nil
}

// VerifySignatures checks that every account flagged as signer has a valid
// signature. Extra signatures from keys not listed as signers are rejected.
func (tx *Transaction) VerifySignatures() error {
	required := make(map[solana.PublicKey]bool)
	for _, m := range tx.Accounts {
		if m.IsSigner {
			required[m.Key] = false
		}
	}

	msg := tx.Message()
	for _, s := range tx.Signatures {
		seen, ok := required[s.Signer]
		if !ok {
			return errors.Wrapf(ErrBadSignature, "%s is not a signer of this transaction", s.Signer)
		}
		if seen {
			return errors.Wrapf(ErrBadSignature, "duplicate signature from %s", s.Signer)
		}
		if !s.Signature.Verify(s.Signer, msg) {
			return errors.Wrapf(ErrBadSignature, "invalid signature from %s", s.Signer)
		}
		required[s.Signer] = true
	}
	for key, ok := range required {
		if !ok {
			return errors.Wrapf(ErrBadSignature, "missing signature from %s", key)
		}
	}
	return nil
}
