// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TuneVault Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the TuneVault CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tunevault",
		Short: "TuneVault - a music library backend",
		Long: `TuneVault is a music library backend. The serve command runs the
account and session API; migrate manages the database schema.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
