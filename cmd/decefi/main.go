// Command decefi builds order-program instructions and talks to a devnet node.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/decefi/params"
)

var (
	nodeURL   string
	programID string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "decefi",
		Short:         "Encode order-program instructions and submit them to a devnet node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&nodeURL, "node", "http://localhost:8080", "node API base URL")
	root.PersistentFlags().StringVar(&programID, "program", params.DefaultProgramID, "program id (base58)")

	root.AddCommand(
		newEncodeCmd(),
		newOrderHashCmd(),
		newCreateAccountCmd(),
		newSubmitCmd(),
		newAccountCmd(),
		newKeygenCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
