package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bondchain/crypto"
	"bondchain/observability/logging"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress     string   `toml:"RPCAddress"`
	MetricsAddress string   `toml:"MetricsAddress"`
	DataDir        string   `toml:"DataDir"`
	NetworkName    string   `toml:"NetworkName"`
	LogLevel       string   `toml:"LogLevel"`
	AdminAddress   string   `toml:"AdminAddress"`
	RPCAuthToken   string   `toml:"RPCAuthToken"`
	MaxBonds       uint64   `toml:"MaxBonds"`
	PausedModules  []string `toml:"PausedModules"`

	Genesis Genesis `toml:"genesis"`
}

// Genesis seeds the ledger on first boot: the transferable assets, the bond
// instruments, and the price feeds operators submit against.
type Genesis struct {
	Tokens []TokenConfig `toml:"tokens"`
	Bonds  []BondConfig  `toml:"bonds"`
	Feeds  []FeedConfig  `toml:"feeds"`
}

type TokenConfig struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

type BondConfig struct {
	Symbol         string `toml:"Symbol"`
	Name           string `toml:"Name"`
	Underlying     string `toml:"Underlying"`
	ExpirationTime uint64 `toml:"ExpirationTime"`
}

type FeedConfig struct {
	Symbol      string `toml:"Symbol"`
	Asset       string `toml:"Asset"`
	Description string `toml:"Description"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./bond-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "bond-local"
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if cfg.PausedModules == nil {
		cfg.PausedModules = []string{}
	}
}

// Validate rejects configurations that would wedge the node at runtime rather
// than at boot.
func (cfg *Config) Validate() error {
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("config: invalid LogLevel: %w", err)
	}
	if strings.TrimSpace(cfg.AdminAddress) != "" {
		if _, err := crypto.DecodeAddress(cfg.AdminAddress); err != nil {
			return fmt.Errorf("config: invalid AdminAddress: %w", err)
		}
	}
	seenTokens := make(map[string]bool)
	for _, token := range cfg.Genesis.Tokens {
		symbol := strings.ToUpper(strings.TrimSpace(token.Symbol))
		if symbol == "" {
			return fmt.Errorf("config: genesis token with empty symbol")
		}
		if seenTokens[symbol] {
			return fmt.Errorf("config: duplicate genesis token %s", symbol)
		}
		seenTokens[symbol] = true
		if token.Decimals == 0 || token.Decimals > 18 {
			return fmt.Errorf("config: genesis token %s: decimals must be in [1, 18]", symbol)
		}
	}
	seenBonds := make(map[string]bool)
	for _, bond := range cfg.Genesis.Bonds {
		symbol := strings.ToUpper(strings.TrimSpace(bond.Symbol))
		if symbol == "" {
			return fmt.Errorf("config: genesis bond with empty symbol")
		}
		if seenBonds[symbol] {
			return fmt.Errorf("config: duplicate genesis bond %s", symbol)
		}
		seenBonds[symbol] = true
		underlying := strings.ToUpper(strings.TrimSpace(bond.Underlying))
		if !seenTokens[underlying] {
			return fmt.Errorf("config: genesis bond %s: underlying %s is not a genesis token", symbol, bond.Underlying)
		}
		if bond.ExpirationTime == 0 {
			return fmt.Errorf("config: genesis bond %s: expiration time must be set", symbol)
		}
	}
	for _, feed := range cfg.Genesis.Feeds {
		if strings.TrimSpace(feed.Symbol) == "" {
			return fmt.Errorf("config: genesis feed with empty symbol")
		}
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:     ":8080",
		MetricsAddress: ":9090",
		DataDir:        "./bond-data",
		NetworkName:    "bond-local",
		LogLevel:       "info",
		MaxBonds:       10,
		PausedModules:  []string{},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
