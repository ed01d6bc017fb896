// Package config holds the JSON-tagged configuration tree for a jpc peer
// process: a single struct tree, encoding/json only, no schema library.
// The dispatch core itself has no timeouts; everything here is transport
// addressing and process identity, never a call deadline.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// PeerConfig is the top-level configuration for cmd/jpc-peer and
// cmd/jpc-shell.
type PeerConfig struct {
	// Role is "server" or "client"; mirrors peer_mockup's -s switch.
	Role string `json:"role"`

	// Transport selects which transport/* implementation to construct:
	// "pipe", "tcp", "redis", or "http". cmd/jpc-peer builds only "tcp",
	// "redis" and "http"; it rejects "pipe", which is in-process only.
	Transport string `json:"transport"`

	TCP   TCPConfig   `json:"tcp,omitempty"`
	Redis RedisConfig `json:"redis,omitempty"`
	HTTP  HTTPConfig  `json:"http,omitempty"`

	// IDAllocator selects registry.IDAllocator: "uuid", "counter", or
	// "hash". Defaults to "uuid".
	IDAllocator string `json:"idAllocator"`

	// Seed names which demo object (see examples/) to publish as the
	// start object when acting as server: "ledger" or "resolver".
	Seed string `json:"seed"`
}

// TCPConfig addresses the transport/tcp listener/dialer.
type TCPConfig struct {
	ListenAddr string `json:"listenAddr,omitempty"`
	DialAddr   string `json:"dialAddr,omitempty"`
}

// RedisConfig addresses the transport/redistransport pub/sub channel.
type RedisConfig struct {
	Addr        string `json:"addr"`
	ChannelOut  string `json:"channelOut"`
	ChannelIn   string `json:"channelIn"`
	DB          int    `json:"db"`
}

// HTTPConfig addresses the transport/httprpc endpoint.
type HTTPConfig struct {
	ListenAddr string `json:"listenAddr,omitempty"`
	RemoteURL  string `json:"remoteUrl,omitempty"`
}

// Load reads a PeerConfig from a JSON file at path.
func Load(path string) (*PeerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg PeerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a pipe-transport, server-role, uuid-allocator config
// suitable for local experimentation without a config file.
func Default() *PeerConfig {
	cfg := &PeerConfig{Role: "server", Transport: "pipe", Seed: "ledger"}
	cfg.applyDefaults()
	return cfg
}

func (c *PeerConfig) applyDefaults() {
	if c.IDAllocator == "" {
		c.IDAllocator = "uuid"
	}
	if c.Transport == "" {
		c.Transport = "pipe"
	}
	if c.Seed == "" {
		c.Seed = "ledger"
	}
}
