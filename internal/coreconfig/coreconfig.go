// Package coreconfig loads and validates the node's configuration and
// reconciles the cluster-invariant subset of it against a peer at startup.
//
// Grounded on the teacher's config.go + loader.go
// (coordinator/internal/config): defaults → file → env-override → validate
// pipeline, mapstructure-tagged struct, adapted from YAML to the JSON file
// format this spec mandates.
package coreconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config is the node's full configuration: cluster-invariant fields that
// must agree across every node, plus node-local fields.
type Config struct {
	N              int    `mapstructure:"n"`
	R              int    `mapstructure:"r"`
	W              int    `mapstructure:"w"`
	Q              int    `mapstructure:"q"`
	StorageMod     string `mapstructure:"storage_mod"`
	Blocksize      int    `mapstructure:"blocksize"`
	BufferedWrites bool   `mapstructure:"buffered_writes"`

	Directory string `mapstructure:"directory"`

	NodeID    string   `mapstructure:"node_id"`
	RPCAddr   string   `mapstructure:"rpc_addr"`
	AdminAddr string   `mapstructure:"admin_addr"`
	LogLevel  string   `mapstructure:"log_level"`
	Seeds     []string `mapstructure:"seeds"`
}

// Default returns engine defaults, used before any file or environment
// override is applied.
func Default() *Config {
	return &Config{
		N:              3,
		R:              2,
		W:              2,
		Q:              1024,
		StorageMod:     "sha256",
		Blocksize:      4096,
		BufferedWrites: true,
		Directory:      "./data",
		NodeID:         "node-1",
		RPCAddr:        "0.0.0.0:7000",
		AdminAddr:      "0.0.0.0:7001",
		LogLevel:       "info",
	}
}

// Load reads configPath (a JSON file; absent fields take engine defaults,
// unknown fields are ignored, and a missing file leaves every default in
// place), applies environment overrides, and validates the result.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
	} else if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("DYNOMITE_NODE_ID"); v != "" {
		cfg.NodeID = v
	}
	if v := os.Getenv("DYNOMITE_DIRECTORY"); v != "" {
		cfg.Directory = v
	}
	if v := os.Getenv("DYNOMITE_RPC_ADDR"); v != "" {
		cfg.RPCAddr = v
	}
	if v := os.Getenv("DYNOMITE_ADMIN_ADDR"); v != "" {
		cfg.AdminAddr = v
	}
	if v := os.Getenv("DYNOMITE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DYNOMITE_SEEDS"); v != "" {
		cfg.Seeds = strings.Split(v, ",")
	}
	if v := os.Getenv("DYNOMITE_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.N = n
		}
	}
	if v := os.Getenv("DYNOMITE_R"); v != "" {
		if r, err := strconv.Atoi(v); err == nil {
			cfg.R = r
		}
	}
	if v := os.Getenv("DYNOMITE_W"); v != "" {
		if w, err := strconv.Atoi(v); err == nil {
			cfg.W = w
		}
	}
	if v := os.Getenv("DYNOMITE_Q"); v != "" {
		if q, err := strconv.Atoi(v); err == nil {
			cfg.Q = q
		}
	}
}

// Validate checks the invariants §3 requires: 1 <= r <= n, 1 <= w <= n.
// r + w > n is recommended but, per spec, not enforced.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id is required")
	}
	if c.Directory == "" {
		return fmt.Errorf("directory is required")
	}
	if c.N <= 0 {
		return fmt.Errorf("n must be positive")
	}
	if c.R < 1 || c.R > c.N {
		return fmt.Errorf("r must satisfy 1 <= r <= n (r=%d, n=%d)", c.R, c.N)
	}
	if c.W < 1 || c.W > c.N {
		return fmt.Errorf("w must satisfy 1 <= w <= n (w=%d, n=%d)", c.W, c.N)
	}
	if c.Q <= 0 {
		return fmt.Errorf("q must be positive")
	}
	return nil
}

// applyInvariants overwrites c's cluster-invariant fields with peer's,
// leaving node-local fields (directory, identity, listener addresses)
// untouched.
func (c *Config) applyInvariants(peer *Config) {
	c.N = peer.N
	c.R = peer.R
	c.W = peer.W
	c.Q = peer.Q
	c.StorageMod = peer.StorageMod
	c.Blocksize = peer.Blocksize
	c.BufferedWrites = peer.BufferedWrites
}
