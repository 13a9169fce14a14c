package main

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/uhyunpark/decefi/pkg/program/instruction"
	"github.com/uhyunpark/decefi/pkg/program/processor"
)

func newEncodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Print the hex wire form of an instruction",
	}
	cmd.AddCommand(
		amountCmd("deposit", func(n uint64) instruction.Instruction { return instruction.Deposit{Amount: n} }),
		amountCmd("withdraw", func(n uint64) instruction.Instruction { return instruction.Withdraw{Amount: n} }),
		newOrderCmd(),
		cancelOrderCmd(),
	)
	return cmd
}

func amountCmd(name string, build func(uint64) instruction.Instruction) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <amount>",
		Short: "Encode a " + name,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return errors.Wrap(err, "amount")
			}
			if n == 0 {
				return errors.New("amount must be nonzero")
			}
			fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(instruction.Encode(build(n))))
			return nil
		},
	}
}

func newOrderCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "new-order [hash-hex]",
		Short: "Encode a new order from a 32-byte hash, or from --text via keccak256",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var hash [instruction.HashLen]byte
			switch {
			case text != "" && len(args) == 0:
				hash = crypto.Keccak256Hash([]byte(text))
			case text == "" && len(args) == 1:
				h, err := parseHash(args[0])
				if err != nil {
					return err
				}
				hash = h
			default:
				return errors.New("give exactly one of <hash-hex> or --text")
			}
			if hash == ([instruction.HashLen]byte{}) {
				return errors.New("order hash must be nonzero")
			}
			fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(instruction.Encode(instruction.NewOrderWithHash(hash))))
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "derive the hash as keccak256(text)")
	return cmd
}

func cancelOrderCmd() *cobra.Command {
	var (
		orderID   string
		orderHash string
		owner     string
		ownerSlot uint8
	)
	cmd := &cobra.Command{
		Use:   "cancel-order",
		Short: "Encode a cancel for the order named by --order-id or --order-hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var id instruction.Uint128
			switch {
			case orderHash != "" && orderID == "":
				h, err := parseHash(orderHash)
				if err != nil {
					return err
				}
				id = instruction.OrderIDFromHash(h)
			case orderID != "" && orderHash == "":
				v, err := parseUint128(orderID)
				if err != nil {
					return err
				}
				id = v
			default:
				return errors.New("give exactly one of --order-id or --order-hash")
			}

			authority, err := solana.PublicKeyFromBase58(owner)
			if err != nil {
				return errors.Wrap(err, "owner")
			}
			ix := instruction.CancelOrder{
				OrderID:   id,
				Owner:     processor.OwnerCorrelation(authority),
				OwnerSlot: ownerSlot,
			}
			fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(instruction.Encode(ix)))
			return nil
		},
	}
	cmd.Flags().StringVar(&orderID, "order-id", "", "order id as a u128, decimal or 0x hex")
	cmd.Flags().StringVar(&orderHash, "order-hash", "", "order hash (hex); the id is derived from it")
	cmd.Flags().StringVar(&owner, "owner", "", "orders account key (base58); it must sign the transaction")
	cmd.Flags().Uint8Var(&ownerSlot, "owner-slot", 0, "index of the signing orders account in the transaction account list")
	cmd.MarkFlagRequired("owner")
	return cmd
}

func newOrderHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order-hash <text>",
		Short: "Print keccak256(text) and the order id derived from it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash := crypto.Keccak256Hash([]byte(args[0]))
			fmt.Fprintf(cmd.OutOrStdout(), "hash: %s\nid:   %s\n", hash.Hex(), instruction.OrderIDFromHash(hash))
			return nil
		},
	}
}

func parseHash(s string) ([instruction.HashLen]byte, error) {
	var h [instruction.HashLen]byte
	b, err := hexutil.Decode(s)
	if err != nil {
		return h, errors.Wrap(err, "hash")
	}
	if len(b) != instruction.HashLen {
		return h, errors.Newf("hash is %d bytes, want %d", len(b), instruction.HashLen)
	}
	copy(h[:], b)
	return h, nil
}

func parseUint128(s string) (instruction.Uint128, error) {
	v, ok := new(big.Int).SetString(s, 0)
	if !ok || v.Sign() < 0 || v.BitLen() > 128 {
		return instruction.Uint128{}, errors.Newf("invalid u128 %q", s)
	}
	mask := new(big.Int).SetUint64(^uint64(0))
	lo := new(big.Int).And(v, mask).Uint64()
	hi := new(big.Int).Rsh(v, 64).Uint64()
	return instruction.Uint128{Lo: lo, Hi: hi}, nil
}
