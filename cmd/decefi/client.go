package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/uhyunpark/decefi/pkg/api"
	"github.com/uhyunpark/decefi/pkg/ledger"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

func newCreateAccountCmd() *cobra.Command {
	var (
		owner    string
		space    int
		lamports uint64
	)
	cmd := &cobra.Command{
		Use:   "create-account <key>",
		Short: "Fund a zeroed devnet account (defaults to an orders account owned by the program)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return errors.Wrap(err, "key")
			}
			req := api.CreateAccountRequest{Key: key, Lamports: lamports}
			if owner != "" {
				pk, err := solana.PublicKeyFromBase58(owner)
				if err != nil {
					return errors.Wrap(err, "owner")
				}
				req.Owner = &pk
			}
			if cmd.Flags().Changed("space") {
				req.Space = &space
			}
			return call(cmd, http.MethodPost, "/api/v1/accounts", req)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner program (base58); defaults to the node's program")
	cmd.Flags().IntVar(&space, "space", 0, "data size in bytes; defaults to the orders account size")
	cmd.Flags().Uint64Var(&lamports, "lamports", 1, "initial balance")
	return cmd
}

func newSubmitCmd() *cobra.Command {
	var (
		accounts []string
		keypairs []string
		nonce    uint64
		sync     bool
	)
	cmd := &cobra.Command{
		Use:   "submit <data-hex>",
		Short: "Send an encoded instruction to the node",
		Long: "Send an encoded instruction to the node. Accounts are given in order as\n" +
			"<base58>[:flags], where flags combine w (writable) and s (signer).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := hexutil.Decode(args[0])
			if err != nil {
				return errors.Wrap(err, "data")
			}
			metas, err := parseAccountMetas(accounts)
			if err != nil {
				return err
			}
			pid, err := solana.PublicKeyFromBase58(programID)
			if err != nil {
				return errors.Wrap(err, "program")
			}
			if nonce == 0 {
				nonce = uint64(time.Now().UnixNano())
			}
			tx := &ledger.Transaction{ProgramID: pid, Nonce: nonce, Accounts: metas, Data: data}
			for _, path := range keypairs {
				key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
				if err != nil {
					return errors.Wrapf(err, "keypair %s", path)
				}
				if err := tx.Sign(key); err != nil {
					return err
				}
			}

			path := "/api/v1/transactions"
			if sync {
				path += "?mode=sync"
			}
			return call(cmd, http.MethodPost, path, api.TransactionRequest{
				ProgramID:  &tx.ProgramID,
				Nonce:      tx.Nonce,
				Accounts:   tx.Accounts,
				Data:       tx.Data,
				Signatures: tx.Signatures,
			})
		},
	}
	cmd.Flags().StringSliceVarP(&accounts, "account", "a", nil, "account meta <base58>[:ws], repeatable")
	cmd.Flags().StringSliceVarP(&keypairs, "keypair", "k", nil, "keypair file to sign with, repeatable")
	cmd.Flags().Uint64Var(&nonce, "nonce", 0, "message nonce; defaults to the current time")
	cmd.Flags().BoolVar(&sync, "sync", false, "execute immediately instead of queueing for the next slot")
	return cmd
}

func newAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "account <key>",
		Short: "Show a ledger account and its decoded orders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := solana.PublicKeyFromBase58(args[0]); err != nil {
				return errors.Wrap(err, "key")
			}
			return call(cmd, http.MethodGet, "/api/v1/accounts/"+args[0], nil)
		},
	}
}

// parseAccountMetas reads "<base58>[:flags]" entries; flags are any of w, s
func parseAccountMetas(specs []string) ([]ledger.AccountMeta, error) {
	metas := make([]ledger.AccountMeta, 0, len(specs))
	for _, spec := range specs {
		keyPart, flags, _ := strings.Cut(spec, ":")
		key, err := solana.PublicKeyFromBase58(keyPart)
		if err != nil {
			return nil, errors.Wrapf(err, "account %q", spec)
		}
		meta := ledger.AccountMeta{Key: key}
		for _, f := range flags {
			switch f {
			case 'w':
				meta.IsWritable = true
			case 's':
				meta.IsSigner = true
			default:
				return nil, errors.Newf("account %q: unknown flag %q", spec, f)
			}
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// call sends body as JSON and pretty-prints the response. Non-2xx statuses
// are returned as errors carrying the server's message.
func call(cmd *cobra.Command, method, path string, body interface{}) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(cmd.Context(), method, strings.TrimRight(nodeURL, "/")+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var apiErr api.ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return errors.Newf("%s: %s %s", resp.Status, apiErr.Error, apiErr.Message)
		}
		return errors.Newf("%s: %s", resp.Status, bytes.TrimSpace(raw))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		_, err = cmd.OutOrStdout().Write(raw)
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
	return nil
}
