// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ttlplan/ttlc/internal/config"
)

func TestLoad_DefaultsWithoutFileOrEnv(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, config.DefaultArenaSize, cfg.ArenaSize)
	require.Empty(t, cfg.TelemetryEndpoint)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ttlc.yaml")
	require.NoError(t, writeFile(path, "arena_size: 1048576\ntelemetry_endpoint: http://collector:4318\n"))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 1048576, cfg.ArenaSize)
	require.Equal(t, "http://collector:4318", cfg.TelemetryEndpoint)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ttlc.yaml")
	require.NoError(t, writeFile(path, "arena_size: 1048576\n"))

	t.Setenv("TTLC_ARENA_SIZE", "2097152")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 2097152, cfg.ArenaSize)
}

func TestLoad_BadEnvIsReported(t *testing.T) {
	t.Setenv("TTLC_ARENA_SIZE", "not-a-number")

	_, err := config.Load("")
	require.Error(t, err)
	kind, ok := config.Kind(err)
	require.True(t, ok)
	require.Equal(t, config.ErrBadEnv, kind)
}

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}
