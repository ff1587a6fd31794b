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

// Package config resolves the compiler's tunables from, in increasing
// priority order: built-in defaults, an optional YAML file, and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Defaults, applied before the config file or environment are consulted.
const (
	DefaultArenaSize = 4 << 20 // 4 MiB.
)

// Config holds every externally tunable knob the driver exposes.
type Config struct {
	// ArenaSize is the initial size, in bytes, of the arena's first zone.
	ArenaSize int `yaml:"arena_size"`
	// TelemetryEndpoint is resolved like every other field, but nothing in
	// this repository sends data to it: the driver logs the --stats report
	// through its own logger whether or not it is set.
	TelemetryEndpoint string `yaml:"telemetry_endpoint"`
}

// ErrKind enumerates the ways configuration resolution can fail.
type ErrKind int

const (
	_ ErrKind = iota
	// ErrReadFile means the YAML config file could not be read.
	ErrReadFile
	// ErrParseFile means the YAML config file was malformed.
	ErrParseFile
	// ErrBadEnv means an environment variable held an unparseable value.
	ErrBadEnv
)

func (k ErrKind) String() string {
	switch k {
	case ErrReadFile:
		return "config-read-error"
	case ErrParseFile:
		return "config-parse-error"
	case ErrBadEnv:
		return "bad-environment-variable"
	default:
		return "unknown"
	}
}

// Error is the error type every failure in this package is reported as.
type Error struct {
	Kind ErrKind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("config: %s: %s", e.Kind, e.Msg) }

// Kind extracts the ErrKind from err, if it originated from this package.
func Kind(err error) (ErrKind, bool) {
	ce, ok := err.(*Error)
	if !ok {
		return 0, false
	}
	return ce.Kind, true
}

const (
	envArenaSize         = "TTLC_ARENA_SIZE"
	envTelemetryEndpoint = "TTLC_TELEMETRY_ENDPOINT"
)

// Load resolves a Config starting from the built-in defaults, optionally
// overlaying a YAML file at path (skipped entirely if path is empty), and
// finally overlaying any of the TTLC_* environment variables that are set.
func Load(path string) (*Config, error) {
	cfg := &Config{ArenaSize: DefaultArenaSize}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &Error{Kind: ErrReadFile, Msg: err.Error()}
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &Error{Kind: ErrParseFile, Msg: err.Error()}
		}
	}

	if v, ok := os.LookupEnv(envArenaSize); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, &Error{Kind: ErrBadEnv, Msg: fmt.Sprintf("%s: %v", envArenaSize, err)}
		}
		cfg.ArenaSize = n
	}
	if v, ok := os.LookupEnv(envTelemetryEndpoint); ok {
		cfg.TelemetryEndpoint = v
	}

	return cfg, nil
}
