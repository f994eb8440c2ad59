// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mcpgate/pkg/ux"
)

// --- Global Command Variables ---
var (
	gatewayURL       string
	authToken        string
	clientID         string
	personalityLevel string

	rootCmd = &cobra.Command{
		Use:   "mcpctl",
		Short: "A cli to manage MCP server processes through the gateway",
		Long: `mcpctl talks to a running MCP gateway to start, inspect, and stop
pooled MCP server child processes, and to invoke their tools.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if personalityLevel != "" {
				ux.SetLevel(ux.ParseLevel(personalityLevel))
			} else {
				ux.Init()
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&gatewayURL, "gateway",
		envOr("MCPGATE_URL", "http://localhost:8765"),
		"Gateway base URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token",
		os.Getenv("MCPGATE_AUTH_TOKEN"),
		"Bearer token for gateway auth")
	rootCmd.PersistentFlags().StringVarP(&clientID, "client", "c",
		envOr("MCPGATE_CLIENT_ID", "mcpctl"),
		"Client id owning the server processes")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output personality (full/minimal/machine)")

	rootCmd.AddCommand(serversCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(auditCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
