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
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mcpgate/pkg/ux"
)

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent tool invocations from the audit trail",
	Run:   runAudit,
}

func init() {
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50,
		"Maximum number of records to show")
}

func runAudit(cmd *cobra.Command, args []string) {
	client := newGatewayClient()

	var resp struct {
		Records []struct {
			Timestamp  time.Time `json:"timestamp"`
			Key        string    `json:"key"`
			Tool       string    `json:"tool"`
			Outcome    string    `json:"outcome"`
			DurationMS int64     `json:"durationMs"`
			UserID     string    `json:"userId"`
		} `json:"records"`
	}
	if err := client.get(fmt.Sprintf("/v1/audit/recent?limit=%d", auditLimit), &resp); err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	if len(resp.Records) == 0 {
		ux.Muted("no audit records")
		return
	}

	rows := [][]string{{"TIME", "KEY", "TOOL", "OUTCOME", "MS", "USER"}}
	for _, r := range resp.Records {
		rows = append(rows, []string{
			r.Timestamp.Local().Format("15:04:05"),
			r.Key,
			r.Tool,
			r.Outcome,
			fmt.Sprintf("%d", r.DurationMS),
			r.UserID,
		})
	}
	fmt.Print(ux.Table(rows))
}
