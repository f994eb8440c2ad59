// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/mcpgate/pkg/extensions"
)

// defaultAuditLimit caps GET /v1/audit/recent when no limit is given.
const defaultAuditLimit = 100

// RecentAudit handles GET /v1/audit/recent?limit=: newest tool-invocation
// records first.
func RecentAudit(auditor extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultAuditLimit
		if v := c.Query("limit"); v != "" {
			if err := bindPositiveInt(v, &limit); err != nil {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
				return
			}
		}

		records, err := auditor.Recent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		if records == nil {
			records = []extensions.AuditRecord{}
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	}
}

// bindPositiveInt parses a non-negative integer query value into dst.
func bindPositiveInt(v string, dst *int) error {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid value %q", v)
	}
	*dst = n
	return nil
}
