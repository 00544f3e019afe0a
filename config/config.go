// Package config loads node bootstrap configuration from environment
// variables, the way atlas loads its server configuration, keeping the
// core free of any CLI or flag-parsing concerns (spec.md §6).
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/hashicorp/go-envparse"
)

// NodeConfig is everything a Node needs to boot: its listen/advertise
// addresses, log verbosity and the protocol version it speaks.
type NodeConfig struct {
	ListenAddress    string
	AdvertiseAddress string
	Debug            bool
	ProtocolVersion  uint32
}

const (
	envListen    = "SWARM_LISTEN_ADDRESS"
	envAdvertise = "SWARM_ADVERTISE_ADDRESS"
	envDebug     = "SWARM_DEBUG"
	envVersion   = "SWARM_PROTOCOL_VERSION"
)

// DefaultProtocolVersion is used when SWARM_PROTOCOL_VERSION is unset.
const DefaultProtocolVersion = 1

// Load reads an envfile-formatted byte slice (same KEY=VALUE shape as a
// .env file) with hashicorp/go-envparse and overlays any of the
// recognized SWARM_* variables already present in the process environment.
func Load(envfile []byte) (NodeConfig, error) {
	values, err := envparse.Parse(bytes.NewReader(envfile))
	if err != nil {
		return NodeConfig{}, fmt.Errorf("config: parse envfile: %w", err)
	}

	get := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return values[key]
	}

	cfg := NodeConfig{
		ListenAddress:    get(envListen),
		AdvertiseAddress: get(envAdvertise),
		Debug:            get(envDebug) == "true",
		ProtocolVersion:  DefaultProtocolVersion,
	}
	if v := get(envVersion); v != "" {
		pv, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return NodeConfig{}, fmt.Errorf("config: parse %s: %w", envVersion, err)
		}
		cfg.ProtocolVersion = uint32(pv)
	}
	if cfg.AdvertiseAddress == "" {
		cfg.AdvertiseAddress = cfg.ListenAddress
	}
	return cfg, nil
}

// FromEnv is Load against the live process environment only, for the
// common case of no envfile on disk.
func FromEnv() (NodeConfig, error) {
	return Load(nil)
}
