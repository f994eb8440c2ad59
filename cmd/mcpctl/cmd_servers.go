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
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mcpgate/pkg/ux"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	ensureCatalog string   // Catalog entry name to launch
	ensureCommand string   // Explicit command to launch
	ensureArgs    []string // Arguments for the explicit command
	ensureEnv     []string // KEY=VALUE environment overrides
	ensureTTL     int      // Idle TTL in seconds
	listAll       bool     // List servers across all clients
)

// =============================================================================
// WIRE TYPES
// =============================================================================

type serverSummary struct {
	Key             string    `json:"key"`
	ClientID        string    `json:"clientId"`
	ServerName      string    `json:"serverName"`
	PID             int       `json:"pid"`
	Alive           bool      `json:"alive"`
	Initialized     bool      `json:"initialized"`
	TTLSeconds      int64     `json:"ttlSeconds"`
	LastAccessedAt  time.Time `json:"lastAccessedAt"`
	LastHeartbeatAt time.Time `json:"lastHeartbeatAt"`
}

type ensureResponse struct {
	Key               string `json:"key"`
	PID               int    `json:"pid"`
	Initialized       bool   `json:"initialized"`
	WasAlreadyRunning bool   `json:"wasAlreadyRunning"`
}

type healthResponse struct {
	Healthy bool   `json:"healthy"`
	Reason  string `json:"reason"`
}

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Manage MCP server processes",
}

var serversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List running server processes",
	Run:   runServersList,
}

var serversEnsureCmd = &cobra.Command{
	Use:   "ensure [server-name]",
	Short: "Start a server process, or reuse the running one",
	Long: `Ensures a server process exists for your client id. Supply either
--catalog to launch a predefined entry or --command (with optional --args
and --env) for an explicit launch config. Re-running with the same config
reuses the live process; a changed config replaces it.`,
	Args: cobra.ExactArgs(1),
	Run:  runServersEnsure,
}

var serversKillCmd = &cobra.Command{
	Use:   "kill [server-name]",
	Short: "Force kill a server process regardless of idle state",
	Args:  cobra.ExactArgs(1),
	Run:   runServersKill,
}

var serversHealthCmd = &cobra.Command{
	Use:   "health [server-name]",
	Short: "Check liveness and readiness of a server process",
	Args:  cobra.ExactArgs(1),
	Run:   runServersHealth,
}

func init() {
	serversEnsureCmd.Flags().StringVar(&ensureCatalog, "catalog", "",
		"Launch a predefined catalog entry by name")
	serversEnsureCmd.Flags().StringVar(&ensureCommand, "command", "",
		"Program to launch (alternative to --catalog)")
	serversEnsureCmd.Flags().StringSliceVar(&ensureArgs, "args", nil,
		"Arguments for --command")
	serversEnsureCmd.Flags().StringSliceVar(&ensureEnv, "env", nil,
		"KEY=VALUE environment overrides for the process")
	serversEnsureCmd.Flags().IntVar(&ensureTTL, "ttl", 0,
		"Idle TTL in seconds (0 = gateway default)")
	serversListCmd.Flags().BoolVar(&listAll, "all", false,
		"List servers across all clients")

	serversCmd.AddCommand(serversListCmd)
	serversCmd.AddCommand(serversEnsureCmd)
	serversCmd.AddCommand(serversKillCmd)
	serversCmd.AddCommand(serversHealthCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runServersList(cmd *cobra.Command, args []string) {
	client := newGatewayClient()

	path := "/v1/servers?clientId=" + url.QueryEscape(clientID)
	if listAll {
		path = "/v1/servers/all"
	}

	var resp struct {
		Servers []serverSummary `json:"servers"`
	}
	if err := client.get(path, &resp); err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	if len(resp.Servers) == 0 {
		ux.Muted("no server processes running")
		return
	}

	rows := [][]string{{"KEY", "PID", "ALIVE", "READY", "IDLE"}}
	for _, s := range resp.Servers {
		rows = append(rows, []string{
			s.Key,
			fmt.Sprintf("%d", s.PID),
			fmt.Sprintf("%t", s.Alive),
			fmt.Sprintf("%t", s.Initialized),
			time.Since(s.LastAccessedAt).Truncate(time.Second).String(),
		})
	}
	fmt.Print(ux.Table(rows))
}

func runServersEnsure(cmd *cobra.Command, args []string) {
	serverName := args[0]
	if ensureCatalog == "" && ensureCommand == "" {
		ux.Error("either --catalog or --command is required")
		os.Exit(1)
	}

	body := map[string]interface{}{
		"clientId":   clientID,
		"serverName": serverName,
	}
	if ensureTTL > 0 {
		body["ttlSeconds"] = ensureTTL
	}
	if ensureCatalog != "" {
		body["catalog"] = ensureCatalog
	} else {
		env := make(map[string]string, len(ensureEnv))
		for _, kv := range ensureEnv {
			key, value, found := strings.Cut(kv, "=")
			if !found {
				ux.Error(fmt.Sprintf("invalid --env entry %q, want KEY=VALUE", kv))
				os.Exit(1)
			}
			env[key] = value
		}
		body["config"] = map[string]interface{}{
			"command": ensureCommand,
			"args":    ensureArgs,
			"env":     env,
		}
	}

	client := newGatewayClient()
	var resp ensureResponse
	err := ux.WithSpinner("ensuring "+serverName, func() error {
		return client.post("/v1/servers", body, &resp)
	})
	if err != nil {
		os.Exit(1)
	}

	ux.KeyValue("key", resp.Key)
	ux.KeyValue("pid", fmt.Sprintf("%d", resp.PID))
	ux.KeyValue("initialized", fmt.Sprintf("%t", resp.Initialized))
	ux.KeyValue("reused", fmt.Sprintf("%t", resp.WasAlreadyRunning))
	if !resp.Initialized {
		ux.Warning("handshake has not completed; re-run ensure to retry")
	}
}

func runServersKill(cmd *cobra.Command, args []string) {
	client := newGatewayClient()
	path := fmt.Sprintf("/v1/servers/%s/%s",
		url.PathEscape(clientID), url.PathEscape(args[0]))

	if err := client.delete(path, nil); err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
	ux.Success("killed " + clientID + ":" + args[0])
}

func runServersHealth(cmd *cobra.Command, args []string) {
	client := newGatewayClient()
	path := fmt.Sprintf("/v1/servers/%s/%s/health",
		url.PathEscape(clientID), url.PathEscape(args[0]))

	var resp healthResponse
	err := client.get(path, &resp)
	if resp.Reason == "" && err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	if resp.Healthy {
		ux.Success(args[0] + " is healthy")
		return
	}
	ux.Warning(fmt.Sprintf("%s is unhealthy: %s", args[0], resp.Reason))
	os.Exit(1)
}
