// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package config

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadWithKoanfDefaults(t *testing.T) {
	clearRailEnv(t)

	cfg, err := LoadWithKoanf()
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Flatten.WorkerCount)
	require.Equal(t, 84, cfg.Flatten.HorizonDays)
	require.Equal(t, 7, cfg.Refresh.MaxGapDays)
	require.Equal(t, "cartographus-live", cfg.Live.DurableName)
	require.Equal(t, "/data/cartographus.duckdb", cfg.Database.Path)
}

func TestLoadWithKoanfEnvOverride(t *testing.T) {
	clearRailEnv(t)
	t.Setenv("FLATTEN_WORKER_COUNT", "8")
	t.Setenv("DUCKDB_PATH", "/tmp/test.duckdb")
	t.Setenv("LIVE_DURABLE_NAME", "test-durable")

	cfg, err := LoadWithKoanf()
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Flatten.WorkerCount)
	require.Equal(t, "/tmp/test.duckdb", cfg.Database.Path)
	require.Equal(t, "test-durable", cfg.Live.DurableName)
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cfg := defaultConfig()
	cfg.Database.Path = ""
	require.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Flatten.WorkerCount = 0
	require.Error(t, cfg.Validate())

	cfg = defaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestEnvTransformFuncSkipsUnmapped(t *testing.T) {
	require.Equal(t, "cif.url_template", envTransformFunc("CIF_URL_TEMPLATE"))
	require.Equal(t, "", envTransformFunc("SOME_UNRELATED_VAR"))
}

// clearRailEnv ensures no environment variable from a prior test leaks into
// the next one, since LoadWithKoanf reads the real process environment.
func clearRailEnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		key, _, found := strings.Cut(e, "=")
		if !found {
			continue
		}
		for _, prefix := range []string{"CIF_", "LIVE_", "REFRESH_", "FLATTEN_", "DUCKDB_", "LOG_"} {
			if strings.HasPrefix(key, prefix) {
				original := os.Getenv(key)
				t.Cleanup(func() { os.Setenv(key, original) })
				os.Unsetenv(key)
			}
		}
	}
}
