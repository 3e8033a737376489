// Package config handles loading and parsing of the gateway's configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Network       NetworkConfig       `yaml:"network"`
	Wallet        WalletConfig        `yaml:"wallet"`
	Staging       StagingConfig       `yaml:"staging"`
	Ledger        LedgerConfig        `yaml:"ledger"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ObservabilityConfig holds settings for metrics and health check endpoints.
type ObservabilityConfig struct {
	// Metrics is the metrics switch read from the config file. The server
	// does not consult it: /metrics is always registered.
	Metrics bool `yaml:"metrics"`
	// HealthCheck is the health-check switch read from the config file. The
	// server does not consult it: /health is always registered, and there
	// are no /healthz or /readyz routes.
	HealthCheck bool `yaml:"health_check"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `yaml:"level"`
	// Format is the log output format: "text" or "json".
	Format string `yaml:"format"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	BaseDomain      string `yaml:"base_domain"`      // Base domain for virtual-hosted-style bucket name parsing.
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // Graceful shutdown timeout in seconds (default: 30).
	MaxObjectSize   int64  `yaml:"max_object_size"`  // Maximum object size in bytes (default: 5 GiB).
}

// AuthConfig holds authentication settings. Authentication is either
// disabled (Enabled false) or backed by exactly one static
// access/secret pair; there is no multi-tenant credential store.
type AuthConfig struct {
	// Enabled turns on SigV4 verification. When false every request is
	// accepted unauthenticated.
	Enabled bool `yaml:"enabled"`
	// AccessKey is the single S3 access key used for SigV4 authentication.
	AccessKey string `yaml:"access_key"`
	// SecretKey is the single S3 secret key used for SigV4 authentication.
	SecretKey string `yaml:"secret_key"`
	// Region is the SigV4 region component of the credential scope.
	Region string `yaml:"region"`
}

// NetworkConfig selects the FVM subnet the backend Provider talks to.
type NetworkConfig struct {
	// Preset is one of "mainnet", "testnet", "localnet", "devnet", "custom".
	Preset string `yaml:"preset"`
	// SubnetID names the target subnet. It is not read by the gateway code.
	SubnetID string `yaml:"subnet_id"`
	// RPCURL is the FVM JSON-RPC endpoint. It is not read by the gateway
	// code, and nothing checks that it is set.
	RPCURL string `yaml:"rpc_url"`
	// ObjectAPIURL is the base URL rpcprovider.Provider issues requests
	// against. Required for every preset except "localnet" and "devnet".
	ObjectAPIURL string `yaml:"object_api_url"`
}

// WalletConfig configures the optional signer. Its presence or absence
// determines read-write vs. read-only mode.
type WalletConfig struct {
	// PrivateKeyHex is a hex-encoded secp256k1 private key. Empty means no
	// wallet is configured and the gateway runs read-only.
	PrivateKeyHex string `yaml:"private_key_hex"`
	// PrivateKeyFile, if set, is read instead of PrivateKeyHex (the file's
	// trimmed contents are used as the hex key).
	PrivateKeyFile string `yaml:"private_key_file"`
}

// StagingConfig configures the local multipart-upload staging area.
type StagingConfig struct {
	// RootDir is the staging directory (default "~/.s3-basin", falling
	// back to "./data/staging" when no home directory is resolvable).
	RootDir string `yaml:"root_dir"`
}

// LedgerConfig configures the upload crash-recovery ledger.
type LedgerConfig struct {
	// Path is the SQLite DSN/file path for the upload ledger.
	Path string `yaml:"path"`
	// SweepIntervalSeconds is how often the startup-style stale-upload
	// sweep re-runs while the process is up (0 disables the periodic
	// sweep; a sweep always still runs once at startup).
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
	// UploadTTLSeconds is how long an upload may sit in the ledger before
	// the sweep reaps its staged part files.
	UploadTTLSeconds int `yaml:"upload_ttl_seconds"`
}

// Load reads a YAML configuration file from the given path and returns
// a parsed Config. It applies sensible defaults for unset values.
// If the primary path fails, it falls back to basingate.example.yaml
// in the same directory or parent directory.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		// Try fallback paths
		fallbackPaths := []string{
			filepath.Join(filepath.Dir(path), "basingate.example.yaml"),
			filepath.Join(filepath.Dir(path), "..", "basingate.example.yaml"),
		}
		var fallbackErr error
		for _, fp := range fallbackPaths {
			data, fallbackErr = os.ReadFile(fp)
			if fallbackErr == nil {
				break
			}
		}
		if fallbackErr != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            9000,
			ShutdownTimeout: 30,
			MaxObjectSize:   5368709120, // 5 GiB
		},
		Auth: AuthConfig{
			Region: "us-east-1",
		},
		Network: NetworkConfig{
			Preset: "localnet",
		},
		Staging: StagingConfig{
			RootDir: defaultStagingDir(),
		},
		Ledger: LedgerConfig{
			Path:                 "./data/ledger.db",
			SweepIntervalSeconds: 300,
			UploadTTLSeconds:     86400,
		},
		Observability: ObservabilityConfig{
			Metrics:     true,
			HealthCheck: true,
		},
	}
}

// applyDefaults fills in any fields that are still at their zero value
// after YAML unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30
	}
	if cfg.Server.MaxObjectSize == 0 {
		cfg.Server.MaxObjectSize = 5368709120 // 5 GiB
	}
	if cfg.Auth.Region == "" {
		cfg.Auth.Region = "us-east-1"
	}
	if cfg.Network.Preset == "" {
		cfg.Network.Preset = "localnet"
	}
	if cfg.Staging.RootDir == "" {
		cfg.Staging.RootDir = defaultStagingDir()
	}
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = "./data/ledger.db"
	}
	if cfg.Ledger.UploadTTLSeconds == 0 {
		cfg.Ledger.UploadTTLSeconds = 86400
	}
}

// defaultStagingDir is the staging root used when none is configured.
func defaultStagingDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data/staging"
	}
	return filepath.Join(home, ".s3-basin")
}

// HasWallet reports whether a wallet is configured, i.e. whether the
// gateway should run read-write.
func (c *Config) HasWallet() bool {
	return c.Wallet.PrivateKeyHex != "" || c.Wallet.PrivateKeyFile != ""
}

// ResolveWalletKey returns the hex-encoded private key to load, reading
// PrivateKeyFile if PrivateKeyHex was not set directly.
func (c *Config) ResolveWalletKey() (string, error) {
	if c.Wallet.PrivateKeyHex != "" {
		return c.Wallet.PrivateKeyHex, nil
	}
	if c.Wallet.PrivateKeyFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Wallet.PrivateKeyFile)
	if err != nil {
		return "", fmt.Errorf("reading wallet key file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
