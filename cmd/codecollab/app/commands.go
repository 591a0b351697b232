// Package app provides the entry point for the codecollab command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "codecollab",
	DisableAutoGenTag: true,
	Short:             "Codecollab is a realtime collaboration backend for a multi-user code editor",
	Long: `Codecollab hosts ephemeral collaboration sessions for a multi-user code
editor: a session directory with invite keys and per-user permissions, a
websocket event plane for live code, file, cursor and chat traffic, and a
dispatcher that runs session code against an external execution sandbox.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates a new root command for the codecollab CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Panicf("failed to bind debug flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
