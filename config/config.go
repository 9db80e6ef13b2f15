// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package config holds the handful of VM tunables that don't make sense as
// command-line flags: settings cmd/gst loads once at startup from an
// optional YAML file rather than wiring yet another -flag for each one.
package config

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// VMConfig is the top-level shape of a config file.
type VMConfig struct {
	// TableCapacity sizes a freshly cold-booted object table (§3). Ignored
	// when warm-starting, since the image file already fixes its own
	// capacity.
	TableCapacity int32 `json:"tableCapacity,omitempty"`

	// Trace starts the interpreter with Interp.Trace already set.
	Trace bool `json:"trace,omitempty"`
}

// Default returns the configuration used when no -config flag is given.
func Default() VMConfig {
	return VMConfig{
		TableCapacity: 65536,
	}
}

// Load reads and parses a YAML config file at path, starting from Default()
// so a file only needs to mention the settings it overrides.
func Load(path string) (VMConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
