// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/explosivegaming/expcluster/pkg/errutil"
)

func controllerFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("controller", pflag.ContinueOnError)
	fs.String("data-dir", "", "data directory")
	fs.String("metrics-addr", "127.0.0.1:9100", "metrics address")
	fs.String("log-format", "json", "log format")
	fs.Bool("allow-role-inconsistency", false, "allow explicit user-group assignment")
	return fs
}

func instanceFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("instance", pflag.ContinueOnError)
	fs.String("id", "", "instance id")
	fs.Bool("sync-groups", false, "mirror the Global origin")
	fs.String("metrics-addr", "127.0.0.1:9101", "metrics address")
	fs.String("log-format", "json", "log format")
	return fs
}

func TestLoadController_FlagDefaults(t *testing.T) {
	cfg, err := LoadController("", controllerFlags())
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
	assert.False(t, cfg.AllowRoleInconsistency)
}

func TestLoadController_FileLayeredUnderFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controller.yaml")
	content := "data-dir: /var/lib/expcluster\nlog-format: text\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	fs := controllerFlags()
	require.NoError(t, fs.Parse([]string{"--log-format=json"}))

	cfg, err := LoadController(path, fs)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/expcluster", cfg.DataDir, "file value survives")
	assert.Equal(t, "json", cfg.LogFormat, "explicit flag beats file")
}

func TestLoadController_BadLogFormat(t *testing.T) {
	fs := controllerFlags()
	require.NoError(t, fs.Parse([]string{"--log-format=xml"}))
	_, err := LoadController("", fs)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_CONFIG")
}

func TestLoadController_MissingFile(t *testing.T) {
	_, err := LoadController(filepath.Join(t.TempDir(), "absent.yaml"), controllerFlags())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "LOAD_FAILED")
}

func TestLoadInstance_RequiresID(t *testing.T) {
	_, err := LoadInstance("", instanceFlags())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_CONFIG")
}

func TestLoadInstance_RejectsGlobalID(t *testing.T) {
	fs := instanceFlags()
	require.NoError(t, fs.Parse([]string{"--id=Global"}))
	_, err := LoadInstance("", fs)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_CONFIG")
}

func TestLoadInstance_Complete(t *testing.T) {
	fs := instanceFlags()
	require.NoError(t, fs.Parse([]string{"--id=7", "--sync-groups"}))
	cfg, err := LoadInstance("", fs)
	require.NoError(t, err)
	assert.Equal(t, "7", cfg.ID)
	assert.True(t, cfg.SyncGroups)
}
