package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress       string  `toml:"RPCAddress"`
	MetricsAddress   string  `toml:"MetricsAddress"`
	DataDir          string  `toml:"DataDir"`
	AuditDSN         string  `toml:"AuditDSN"`
	IssuerAddress    string  `toml:"IssuerAddress"`
	TokenAddress     string  `toml:"TokenAddress"`
	VerifyingKeyFile string  `toml:"VerifyingKeyFile"`
	Environment      string  `toml:"Environment"`
	LogLevel         string  `toml:"LogLevel"`
	RateLimitRPS     float64 `toml:"RateLimitRPS"`
	RateLimitBurst   int     `toml:"RateLimitBurst"`
}

// Load loads the configuration from the given path. A missing file is
// populated with defaults and persisted so the operator has something to edit.
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
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := parseAddress(c.IssuerAddress); err != nil {
		return fmt.Errorf("IssuerAddress: %w", err)
	}
	if _, err := parseAddress(c.TokenAddress); err != nil {
		return fmt.Errorf("TokenAddress: %w", err)
	}
	if strings.EqualFold(strings.TrimPrefix(strings.TrimSpace(c.IssuerAddress), "0x"), strings.TrimPrefix(strings.TrimSpace(c.TokenAddress), "0x")) {
		return fmt.Errorf("IssuerAddress and TokenAddress must differ")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RateLimitRPS must not be negative")
	}
	if c.RateLimitBurst < 0 {
		return fmt.Errorf("RateLimitBurst must not be negative")
	}
	return nil
}

// Issuer returns the parsed issuer identity.
func (c *Config) Issuer() ([20]byte, error) {
	return parseAddress(c.IssuerAddress)
}

// Token returns the parsed token identity.
func (c *Config) Token() ([20]byte, error) {
	return parseAddress(c.TokenAddress)
}

func parseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return addr, fmt.Errorf("address required")
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid hex address %q", raw)
	}
	if len(decoded) != 20 {
		return addr, fmt.Errorf("address %q must be 20 bytes", raw)
	}
	copy(addr[:], decoded)
	return addr, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./proofpay-data"
	}
	if strings.TrimSpace(cfg.AuditDSN) == "" {
		cfg.AuditDSN = filepath.Join(cfg.DataDir, "audit.db")
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 50
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 100
	}
}

// createDefault creates and saves a default configuration file. The identity
// fields are left empty on purpose: the daemon refuses to start without them.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

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
