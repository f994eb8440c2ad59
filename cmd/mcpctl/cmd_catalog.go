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
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mcpgate/pkg/ux"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show the gateway's predefined server catalog",
	Run:   runCatalog,
}

func runCatalog(cmd *cobra.Command, args []string) {
	client := newGatewayClient()

	var resp struct {
		Servers []struct {
			Name        string   `json:"name"`
			Description string   `json:"description"`
			Command     string   `json:"command"`
			Args        []string `json:"args"`
		} `json:"servers"`
	}
	if err := client.get("/v1/catalog", &resp); err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	if len(resp.Servers) == 0 {
		ux.Muted("catalog is empty")
		return
	}

	rows := [][]string{{"NAME", "COMMAND", "DESCRIPTION"}}
	for _, s := range resp.Servers {
		command := s.Command
		if len(s.Args) > 0 {
			command += " " + strings.Join(s.Args, " ")
		}
		if len(command) > 48 {
			command = command[:45] + "..."
		}
		rows = append(rows, []string{s.Name, command, s.Description})
	}
	fmt.Print(ux.Table(rows))
}
