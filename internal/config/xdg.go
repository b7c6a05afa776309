// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package config

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
)

// ConfigDir returns the XDG config directory for traceai, honouring
// XDG_CONFIG_HOME and falling back to ~/.config/traceai.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "traceai"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Resolve loads settings for the CLI. An explicit path must exist. Without
// one the default config file is used when present, else the environment
// alone.
func Resolve(path string) (*Settings, error) {
	if path != "" {
		return LoadFile(path)
	}

	if def, err := ConfigPath(); err == nil {
		if _, err := os.Stat(def); err == nil {
			return LoadFile(def)
		} else if !stderrors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	s, err := Load()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
