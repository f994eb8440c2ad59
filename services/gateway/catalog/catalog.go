// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog loads the predefined MCP server launch catalog.
//
// The catalog lets clients ensure a server by name instead of shipping a
// full launch config in every request. An embedded default ships with the
// binary; deployments point MCPGATE_CATALOG_PATH at a YAML file, which is
// hot-reloaded on change.
//
// Thread Safety:
//
//	All exported methods are safe for concurrent use.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/mcpgate/services/gateway/mcp"
)

// MaxCatalogFileSize caps catalog files at 1MB to bound memory on load.
const MaxCatalogFileSize = 1024 * 1024

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// ErrUnknownServer indicates the requested name is not in the catalog.
var ErrUnknownServer = errors.New("catalog: unknown server name")

var (
	catalogLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpgate_catalog_loads_total",
		Help: "Total catalog load attempts by source and outcome",
	}, []string{"source", "outcome"})

	catalogEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mcpgate_catalog_entries",
		Help: "Number of server definitions in the active catalog",
	})
)

// =============================================================================
// TYPES
// =============================================================================

// ServerDef is one predefined server launch specification.
type ServerDef struct {
	// Name is the catalog key clients reference. Path-segment safe.
	Name string `yaml:"name" json:"name" validate:"required,min=1,max=64"`

	// Description is shown in catalog listings.
	Description string `yaml:"description" json:"description" validate:"max=256"`

	// Command is the program to launch.
	Command string `yaml:"command" json:"command" validate:"required,min=1"`

	// Args are the literal program arguments.
	Args []string `yaml:"args" json:"args,omitempty"`

	// Env contains environment overrides for the spawned process.
	Env map[string]string `yaml:"env" json:"env,omitempty"`

	// TTLSeconds is the idle time-to-live for processes launched from this
	// definition. Zero uses the manager default.
	TTLSeconds int `yaml:"ttl_seconds" json:"ttlSeconds" validate:"gte=0,lte=86400"`
}

// Config converts the definition to a launch config.
func (d ServerDef) Config() mcp.ServerConfig {
	return mcp.ServerConfig{
		Command: d.Command,
		Args:    d.Args,
		Env:     d.Env,
	}
}

// TTL returns the definition's idle time-to-live, or zero when unset.
func (d ServerDef) TTL() time.Duration {
	return time.Duration(d.TTLSeconds) * time.Second
}

// catalogFile is the YAML document shape.
type catalogFile struct {
	Servers []ServerDef `yaml:"servers" validate:"dive"`
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog is the active set of predefined server definitions.
type Catalog struct {
	mu       sync.RWMutex
	byName   map[string]ServerDef
	ordered  []ServerDef
	path     string
	validate *validator.Validate
}

// Load builds a catalog from the file at path, or from the embedded default
// when path is empty.
func Load(path string) (*Catalog, error) {
	c := &Catalog{
		path:     path,
		validate: validator.New(),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the catalog source and atomically swaps the active set.
// On failure the previous set stays active.
func (c *Catalog) Reload() error {
	source := "embedded"
	data := defaultCatalogYAML

	if c.path != "" {
		source = "file"
		info, err := os.Stat(c.path)
		if err != nil {
			catalogLoads.WithLabelValues(source, "error").Inc()
			return fmt.Errorf("stat catalog: %w", err)
		}
		if info.Size() > MaxCatalogFileSize {
			catalogLoads.WithLabelValues(source, "error").Inc()
			return fmt.Errorf("catalog file too large: %d bytes", info.Size())
		}
		data, err = os.ReadFile(c.path)
		if err != nil {
			catalogLoads.WithLabelValues(source, "error").Inc()
			return fmt.Errorf("read catalog: %w", err)
		}
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		catalogLoads.WithLabelValues(source, "error").Inc()
		return fmt.Errorf("parse catalog: %w", err)
	}

	byName := make(map[string]ServerDef, len(file.Servers))
	for i, def := range file.Servers {
		if err := c.validate.Struct(def); err != nil {
			catalogLoads.WithLabelValues(source, "error").Inc()
			return fmt.Errorf("catalog entry %d (%q): %w", i, def.Name, err)
		}
		if _, dup := byName[def.Name]; dup {
			catalogLoads.WithLabelValues(source, "error").Inc()
			return fmt.Errorf("catalog entry %d: duplicate name %q", i, def.Name)
		}
		byName[def.Name] = def
	}

	c.mu.Lock()
	c.byName = byName
	c.ordered = file.Servers
	c.mu.Unlock()

	catalogLoads.WithLabelValues(source, "success").Inc()
	catalogEntries.Set(float64(len(byName)))

	slog.Info("catalog loaded",
		slog.String("source", source),
		slog.Int("servers", len(byName)),
	)
	return nil
}

// Lookup returns the definition for name.
func (c *Catalog) Lookup(name string) (ServerDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.byName[name]
	if !ok {
		return ServerDef{}, fmt.Errorf("%w: %q", ErrUnknownServer, name)
	}
	return def, nil
}

// List returns all definitions in file order with sensitive env values
// redacted for reporting.
func (c *Catalog) List() []ServerDef {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ServerDef, len(c.ordered))
	for i, def := range c.ordered {
		redacted := mcp.RedactConfig(def.Config())
		def.Env = redacted.Env
		def.Args = redacted.Args
		out[i] = def
	}
	return out
}
