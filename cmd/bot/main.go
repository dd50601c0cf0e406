package main

import (
	"fmt"
	"os"

	"amega-vpn-bot/config"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "amegavpn",
	Short:         "AmegaVPN Telegram bots",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Run the user-facing bot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBot(cmd.Context(), config.RoleUser)
	},
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Run the admin bot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBot(cmd.Context(), config.RoleAdmin)
	},
}

var loadKeysCmd = &cobra.Command{
	Use:   "load-keys <file>",
	Short: "Replace all unused keys with the keys listed in file, one per line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return loadKeys(cmd.Context(), args[0], cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(userCmd, adminCmd, loadKeysCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
