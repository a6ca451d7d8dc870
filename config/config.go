package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Config drives the nftbankd process. Addresses are hex-encoded; balances are
// decimal strings so genesis allocations are not capped by int64.
type Config struct {
	RPCAddress string `toml:"RPCAddress"`
	DataDir    string `toml:"DataDir"`
	EventIndex string `toml:"EventIndex"`

	Owner             string `toml:"Owner"`
	PrimaryToken      string `toml:"PrimaryToken"`
	SecondaryToken    string `toml:"SecondaryToken"`
	BankAddress       string `toml:"BankAddress"`
	MintAddress       string `toml:"MintAddress"`
	RouterAddress     string `toml:"RouterAddress"`
	CollectionAddress string `toml:"CollectionAddress"`

	MaxSupply           uint64 `toml:"MaxSupply"`
	MaxPerTransaction   uint64 `toml:"MaxPerTransaction"`
	LookbackSeconds     uint64 `toml:"LookbackSeconds"`
	AllowedDeviationBps uint64 `toml:"AllowedDeviationBps"`
	PoolFeePips         uint64 `toml:"PoolFeePips"`

	GenesisBalances          map[string]string `toml:"GenesisBalances"`
	GenesisSecondaryBalances map[string]string `toml:"GenesisSecondaryBalances"`
}

// Load reads the configuration at path, writing a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if cfg.GenesisBalances == nil {
		cfg.GenesisBalances = map[string]string{}
	}
	if cfg.GenesisSecondaryBalances == nil {
		cfg.GenesisSecondaryBalances = map[string]string{}
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for name, value := range map[string]string{
		"Owner":             c.Owner,
		"PrimaryToken":      c.PrimaryToken,
		"SecondaryToken":    c.SecondaryToken,
		"BankAddress":       c.BankAddress,
		"MintAddress":       c.MintAddress,
		"RouterAddress":     c.RouterAddress,
		"CollectionAddress": c.CollectionAddress,
	} {
		if !common.IsHexAddress(value) {
			return fmt.Errorf("%s is not a valid address: %q", name, value)
		}
	}
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("RPCAddress must be set")
	}
	if c.MaxSupply == 0 {
		return fmt.Errorf("MaxSupply must be positive")
	}
	for account := range c.GenesisBalances {
		if !common.IsHexAddress(account) {
			return fmt.Errorf("genesis balance account is not a valid address: %q", account)
		}
	}
	for account := range c.GenesisSecondaryBalances {
		if !common.IsHexAddress(account) {
			return fmt.Errorf("genesis secondary balance account is not a valid address: %q", account)
		}
	}
	return nil
}

// Address parses one of the validated hex fields.
func Address(value string) common.Address {
	return common.HexToAddress(value)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:               ":8080",
		DataDir:                  "./nftbank-data",
		EventIndex:               "./nftbank-data/events.db",
		Owner:                    "0x00000000000000000000000000000000000000ad",
		PrimaryToken:             "0x1000000000000000000000000000000000000001",
		SecondaryToken:           "0x2000000000000000000000000000000000000002",
		BankAddress:              "0x4000000000000000000000000000000000000004",
		MintAddress:              "0x7000000000000000000000000000000000000007",
		RouterAddress:            "0x3000000000000000000000000000000000000003",
		CollectionAddress:        "0x6000000000000000000000000000000000000006",
		MaxSupply:                10_000,
		MaxPerTransaction:        50,
		LookbackSeconds:          300,
		AllowedDeviationBps:      500,
		PoolFeePips:              3000,
		GenesisBalances:          map[string]string{},
		GenesisSecondaryBalances: map[string]string{},
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
