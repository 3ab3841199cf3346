// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

// Package config loads process configuration from an optional YAML file
// layered under command-line flags. Flags win.
package config

import (
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Controller holds configuration for the controller process.
type Controller struct {
	// DataDir is where the persisted group files live. Empty selects the
	// XDG data directory.
	DataDir     string `koanf:"data-dir"`
	MetricsAddr string `koanf:"metrics-addr"`
	LogFormat   string `koanf:"log-format"`
	// AllowRoleInconsistency permits explicit user→group assignment and
	// enables the user-group persistence file.
	AllowRoleInconsistency bool `koanf:"allow-role-inconsistency"`
}

// Validate checks that the configuration is valid.
func (c *Controller) Validate() error {
	if err := validateLogFormat(c.LogFormat); err != nil {
		return err
	}
	return nil
}

// Instance holds configuration for an instance host process.
type Instance struct {
	// ID is this instance's cluster-wide identifier.
	ID string `koanf:"id"`
	// SyncGroups mirrors the Global origin instead of a private one.
	SyncGroups  bool   `koanf:"sync-groups"`
	MetricsAddr string `koanf:"metrics-addr"`
	LogFormat   string `koanf:"log-format"`
}

// Validate checks that the configuration is valid.
func (c *Instance) Validate() error {
	if c.ID == "" {
		return oops.In("config").Code("INVALID_CONFIG").New("instance id is required")
	}
	if c.ID == "Global" {
		return oops.In("config").Code("INVALID_CONFIG").
			New("instance id 'Global' collides with the shared origin")
	}
	return validateLogFormat(c.LogFormat)
}

func validateLogFormat(format string) error {
	if format != "json" && format != "text" {
		return oops.In("config").Code("INVALID_CONFIG").
			With("log_format", format).New("log-format must be 'json' or 'text'")
	}
	return nil
}

// LoadController resolves controller configuration from the given file (may
// be empty) and flag set.
func LoadController(path string, flags *pflag.FlagSet) (*Controller, error) {
	var cfg Controller
	if err := load(path, flags, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadInstance resolves instance configuration from the given file (may be
// empty) and flag set.
func LoadInstance(path string, flags *pflag.FlagSet) (*Instance, error) {
	var cfg Instance
	if err := load(path, flags, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func load(path string, flags *pflag.FlagSet, out any) error {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return oops.In("config").Code("LOAD_FAILED").With("path", path).Wrap(err)
		}
	}
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return oops.In("config").Code("LOAD_FAILED").Wrap(err)
		}
	}
	if err := k.Unmarshal("", out); err != nil {
		return oops.In("config").Code("LOAD_FAILED").Wrap(err)
	}
	return nil
}
