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
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mcpgate/pkg/ux"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	callArgs    []string // key=value tool arguments
	callJSON    string   // JSON object of tool arguments
	callRaw     string   // Pre-built JSON-RPC request line
	callTimeout int      // Listening window in seconds
	toolsRawOut bool     // Dump raw stdout instead of the parsed response
)

// =============================================================================
// WIRE TYPES
// =============================================================================

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type callResponse struct {
	RawOutput   string       `json:"rawOutput"`
	ErrorOutput string       `json:"errorOutput"`
	Response    *rpcResponse `json:"response"`
}

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List and invoke tools on a running server process",
}

var toolsListCmd = &cobra.Command{
	Use:   "list [server-name]",
	Short: "List the tools a server exposes",
	Args:  cobra.ExactArgs(1),
	Run:   runToolsList,
}

var toolsCallCmd = &cobra.Command{
	Use:   "call [server-name] [tool-name]",
	Short: "Invoke a tool on a server process",
	Long: `Invokes a tool and prints the parsed JSON-RPC result. Arguments come
from repeated --arg key=value flags or a single --json object. With --raw,
the given line is sent verbatim and the tool name argument is skipped.

Examples:
  mcpctl tools call filesystem read_file --arg path=/tmp/notes.txt
  mcpctl tools call fetch fetch --json '{"url":"https://example.com"}'
  mcpctl tools call filesystem --raw '{"jsonrpc":"2.0","id":9,"method":"tools/list"}'`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runToolsCall,
}

func init() {
	toolsCallCmd.Flags().StringSliceVar(&callArgs, "arg", nil,
		"Tool argument as key=value (repeatable)")
	toolsCallCmd.Flags().StringVar(&callJSON, "json", "",
		"Tool arguments as a JSON object")
	toolsCallCmd.Flags().StringVar(&callRaw, "raw", "",
		"Send this JSON-RPC line verbatim")
	toolsCallCmd.Flags().IntVar(&callTimeout, "timeout", 0,
		"Listening window in seconds (0 = gateway default)")
	toolsCallCmd.Flags().BoolVar(&toolsRawOut, "raw-output", false,
		"Print the raw stdout capture instead of the parsed response")

	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsCallCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runToolsList(cmd *cobra.Command, args []string) {
	client := newGatewayClient()
	path := fmt.Sprintf("/v1/servers/%s/%s/tools",
		url.PathEscape(clientID), url.PathEscape(args[0]))

	var resp callResponse
	if err := client.get(path, &resp); err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
	if resp.Response == nil {
		ux.Warning("no tools/list response within the window")
		if resp.RawOutput != "" {
			fmt.Println(resp.RawOutput)
		}
		os.Exit(1)
	}
	if resp.Response.Error != nil {
		ux.Error(fmt.Sprintf("server error %d: %s",
			resp.Response.Error.Code, resp.Response.Error.Message))
		os.Exit(1)
	}

	var result struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Response.Result, &result); err != nil {
		// Fall back to the raw result when the shape is unexpected.
		fmt.Println(string(resp.Response.Result))
		return
	}

	rows := [][]string{{"TOOL", "DESCRIPTION"}}
	for _, tool := range result.Tools {
		desc := tool.Description
		if len(desc) > 70 {
			desc = desc[:67] + "..."
		}
		rows = append(rows, []string{tool.Name, desc})
	}
	fmt.Print(ux.Table(rows))
}

func runToolsCall(cmd *cobra.Command, args []string) {
	serverName := args[0]

	body := map[string]interface{}{}
	switch {
	case callRaw != "":
		body["raw"] = callRaw
	case len(args) == 2:
		body["name"] = args[1]
		arguments, err := buildArguments()
		if err != nil {
			ux.Error(err.Error())
			os.Exit(1)
		}
		body["arguments"] = arguments
	default:
		ux.Error("tool name or --raw is required")
		os.Exit(1)
	}
	if callTimeout > 0 {
		body["timeoutSeconds"] = callTimeout
	}

	client := newGatewayClient()
	path := fmt.Sprintf("/v1/servers/%s/%s/tools/call",
		url.PathEscape(clientID), url.PathEscape(serverName))

	var resp callResponse
	if err := client.post(path, body, &resp); err != nil {
		ux.Error(err.Error())
		if resp.ErrorOutput != "" {
			ux.Muted(resp.ErrorOutput)
		}
		os.Exit(1)
	}

	if toolsRawOut {
		fmt.Print(resp.RawOutput)
		return
	}
	if resp.Response == nil {
		ux.Warning("no response within the window; raw output follows")
		fmt.Println(resp.RawOutput)
		os.Exit(1)
	}
	if resp.Response.Error != nil {
		ux.Error(fmt.Sprintf("server error %d: %s",
			resp.Response.Error.Code, resp.Response.Error.Message))
		os.Exit(1)
	}

	var pretty map[string]interface{}
	if json.Unmarshal(resp.Response.Result, &pretty) == nil {
		formatted, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(formatted))
		return
	}
	fmt.Println(string(resp.Response.Result))
}

// buildArguments merges --json and --arg flags into one argument map.
func buildArguments() (map[string]interface{}, error) {
	arguments := map[string]interface{}{}
	if callJSON != "" {
		if err := json.Unmarshal([]byte(callJSON), &arguments); err != nil {
			return nil, fmt.Errorf("--json is not a JSON object: %w", err)
		}
	}
	for _, kv := range callArgs {
		key, value, found := strings.Cut(kv, "=")
		if !found {
			return nil, fmt.Errorf("invalid --arg entry %q, want key=value", kv)
		}
		arguments[key] = value
	}
	return arguments, nil
}
