// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/mcpgate/services/gateway/mcp"
)

func writeCatalog(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoadEmbeddedDefault(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if len(c.List()) == 0 {
		t.Error("embedded catalog is empty")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeCatalog(t, `
servers:
  - name: filesystem
    description: Filesystem access
    command: npx
    args: ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]
    ttl_seconds: 600
  - name: fetch
    command: uvx
    args: ["mcp-server-fetch"]
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	def, err := c.Lookup("filesystem")
	if err != nil {
		t.Fatalf("Lookup(filesystem) error = %v", err)
	}
	if def.Command != "npx" {
		t.Errorf("command = %q, want npx", def.Command)
	}
	if def.TTL().Seconds() != 600 {
		t.Errorf("TTL = %s, want 600s", def.TTL())
	}

	if _, err := c.Lookup("nope"); !errors.Is(err, ErrUnknownServer) {
		t.Errorf("Lookup(nope) error = %v, want ErrUnknownServer", err)
	}

	if got := len(c.List()); got != 2 {
		t.Errorf("List() returned %d entries, want 2", got)
	}
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	path := writeCatalog(t, `
servers:
  - name: twin
    command: a
  - name: twin
    command: b
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load() = nil error for duplicate names")
	}
}

func TestLoadRejectsInvalidEntries(t *testing.T) {
	cases := map[string]string{
		"missing command": `
servers:
  - name: broken
`,
		"missing name": `
servers:
  - command: something
`,
		"ttl out of range": `
servers:
  - name: eternal
    command: something
    ttl_seconds: 999999
`,
	}
	for name, yaml := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeCatalog(t, yaml)); err == nil {
				t.Error("Load() = nil error, want validation failure")
			}
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	if _, err := Load(writeCatalog(t, "servers: [what")); err == nil {
		t.Fatal("Load() = nil error for malformed YAML")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() = nil error for missing file")
	}
}

func TestReloadKeepsPreviousSetOnFailure(t *testing.T) {
	path := writeCatalog(t, `
servers:
  - name: keeper
    command: srv
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("servers: [broken"), 0o644); err != nil {
		t.Fatalf("overwrite catalog: %v", err)
	}
	if err := c.Reload(); err == nil {
		t.Fatal("Reload() = nil error for broken file")
	}

	// The pre-failure set must remain queryable.
	if _, err := c.Lookup("keeper"); err != nil {
		t.Errorf("Lookup(keeper) after failed reload error = %v", err)
	}
}

func TestReloadSwapsActiveSet(t *testing.T) {
	path := writeCatalog(t, `
servers:
  - name: old
    command: srv
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := os.WriteFile(path, []byte(`
servers:
  - name: new
    command: srv
`), 0o644); err != nil {
		t.Fatalf("overwrite catalog: %v", err)
	}
	if err := c.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if _, err := c.Lookup("new"); err != nil {
		t.Errorf("Lookup(new) error = %v", err)
	}
	if _, err := c.Lookup("old"); !errors.Is(err, ErrUnknownServer) {
		t.Errorf("Lookup(old) error = %v, want ErrUnknownServer after swap", err)
	}
}

func TestListRedactsSensitiveValues(t *testing.T) {
	path := writeCatalog(t, `
servers:
  - name: github
    command: npx
    args: ["--token", "ghp_secret"]
    env:
      GITHUB_TOKEN: ghp_secret
      WORKDIR: /srv
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	listed := c.List()[0]
	if listed.Env["GITHUB_TOKEN"] != mcp.RedactionMarker {
		t.Errorf("listed GITHUB_TOKEN = %q, want redacted", listed.Env["GITHUB_TOKEN"])
	}
	if listed.Env["WORKDIR"] != "/srv" {
		t.Errorf("listed WORKDIR = %q, want passthrough", listed.Env["WORKDIR"])
	}
	if listed.Args[1] != mcp.RedactionMarker {
		t.Errorf("listed token arg = %q, want redacted", listed.Args[1])
	}

	// Lookup must return the launchable, unredacted definition.
	def, err := c.Lookup("github")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if def.Env["GITHUB_TOKEN"] != "ghp_secret" {
		t.Error("Lookup() returned a redacted definition; processes could not launch")
	}
}
