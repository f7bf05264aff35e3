// This file is part of Gopher2600.
//
// Gopher2600 is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Gopher2600 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Gopher2600.  If not, see <https://www.gnu.org/licenses/>.

// Package config loads the YAML document that tells the simulator facade
// how to expose itself: what API surface to use, and which local socket to
// listen for a proxy connection on. Unknown keys are ignored rather than
// rejected, so that a configuration document shared with a newer or older
// build of the simulator still loads.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gvsoc-go/iss-core/errors"
)

// APIMode selects whether the simulator facade's host API blocks the
// caller until the requested operation completes (sync) or returns
// immediately and notifies completion later through a callback or event
// (async).
type APIMode string

// The API modes a Config document may select.
const (
	APIModeSync  APIMode = "sync"
	APIModeAsync APIMode = "async"
)

// Config is the top-level configuration document.
type Config struct {
	// LoadedFrom is not itself part of the document; it records the
	// filesystem path the Config was loaded from, for diagnostics.
	LoadedFrom string `yaml:"-"`

	// ConfigPath is a required document option naming the path to the
	// system/platform description (chip layout, memory map) the
	// simulator should wire up. It is distinct from LoadedFrom, which is
	// this document's own path.
	ConfigPath string `yaml:"config_path"`

	APIMode APIMode `yaml:"api_mode"`

	// ProxySocket is the port number an external control channel listens
	// on. Zero means no proxy socket is configured.
	ProxySocket int `yaml:"proxy_socket"`
}

// Default returns a Config with every field set to its zero-risk default:
// synchronous API mode, no proxy socket.
func Default() Config {
	return Config{APIMode: APIModeSync}
}

// Load reads and parses the YAML document at path. An empty path returns a
// curated ConfigMissing error. A document missing the required config_path
// option returns a curated ConfigPathRequired error. A document that parses
// but contains an unrecognised api_mode returns a curated
// ConfigUnknownAPIMode error; any other unknown key is silently ignored,
// matching this package's forward-compatibility contract.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.Errorf(errors.ConfigMissing)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Errorf(errors.ConfigNotValid, path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Errorf(errors.ConfigNotValid, path, err)
	}
	cfg.LoadedFrom = path

	if cfg.ConfigPath == "" {
		return Config{}, errors.Errorf(errors.ConfigPathRequired, path)
	}

	switch cfg.APIMode {
	case APIModeSync, APIModeAsync:
	default:
		return Config{}, errors.Errorf(errors.ConfigUnknownAPIMode, cfg.APIMode)
	}

	return cfg, nil
}
