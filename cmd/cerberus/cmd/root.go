// Package cmd provides the CLI commands for Cerberus.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cerberus-gate/cerberus/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cerberus",
	Short: "Cerberus - MCP governance gateway",
	Long: `Cerberus is a governance gateway for MCP tool servers.

Agents authenticate with bearer tokens; every request and response
passes an ordered guardrail pipeline (RBAC, PII detection, content
and CEL filters, rate limits) driven by organisation, workspace, and
agent level policies, then is forwarded to the workspace's upstream
tool server. Every decision is audited asynchronously.

Configuration:
  Config is loaded from cerberus.yaml in the current directory,
  $HOME/.cerberus/, or /etc/cerberus/.

  Environment variables override config values with the CERBERUS_ prefix.
  Example: CERBERUS_SERVER_ADDR=:9090

Commands:
  serve       Start the gateway
  hash-token  Print the digest of an agent token
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./cerberus.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
