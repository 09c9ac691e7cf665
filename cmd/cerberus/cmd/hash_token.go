package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cerberus-gate/cerberus/internal/domain/credential"
)

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token [token]",
	Short: "Print the digest of an agent token",
	Long: `Print the stored digest and display prefix for an agent token.

The digest goes into the credential store's token_hash field; the
prefix is what admin tooling shows operators.

Security note: the token will appear in shell history. Prefer an
environment variable:
  cerberus hash-token "$AGENT_TOKEN"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		token := args[0]
		fmt.Printf("token_hash:   %s\n", credential.HashToken(token))
		fmt.Printf("token_prefix: %s\n", credential.DisplayPrefix(token))
	},
}

func init() {
	rootCmd.AddCommand(hashTokenCmd)
}
