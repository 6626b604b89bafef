// Package config loads the broker's TOML configuration file: the listen
// address, the access-key policy, and the subscription table in either of
// its two accepted forms.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/skytfs/streammesh/internal/message"
)

// AccessPolicy controls how the broker validates a client's Auth
// handshake. An empty Keys list means any access key is accepted.
type AccessPolicy struct {
	Keys []string `toml:"keys"`
}

// Allows reports whether key is acceptable under this policy.
func (p AccessPolicy) Allows(key string) bool {
	if len(p.Keys) == 0 {
		return true
	}
	for _, k := range p.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Broker is the root of a broker's TOML configuration file.
type Broker struct {
	Host       string             `toml:"host"`
	Access     AccessPolicy       `toml:"access"`
	Subscribes message.Subscribes `toml:"subscribes"`
}

// Load reads and parses a broker configuration file at path.
func Load(path string) (*Broker, error) {
	var cfg Broker
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("config: %s: host is required", path)
	}
	return &cfg, nil
}
