package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
)

// newKeygenCmd writes a keypair in the solana-keygen JSON format, a list of
// the 64 private key bytes.
func newKeygenCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen <path>",
		Short: "Generate an ed25519 keypair file and print its public key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil && !force {
				return errors.Newf("%s exists; use --force to overwrite", path)
			}
			key, err := solana.NewRandomPrivateKey()
			if err != nil {
				return err
			}
			ints := make([]int, len(key))
			for i, b := range key {
				ints[i] = int(b)
			}
			raw, err := json.Marshal(ints)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, raw, 0o600); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key.PublicKey())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
