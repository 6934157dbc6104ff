package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Network       string
	Networks      map[string]Network
	Vault         VaultConfig
	AuditPath     string
	MetricsAddr   string
	MaxRetries    int
	RetryBackoff  time.Duration
	ReadTimeout   time.Duration
	SubmitTimeout time.Duration
	PollInterval  time.Duration
	SimulateFirst bool
	LogLevel      string
}

// VaultConfig selects and configures the credential store.
type VaultConfig struct {
	Backend         string
	DSN             string
	MasterKey       string
	ScryptN         int
	ScryptP         int
	ExportPerMinute float64
	ExportBurst     int
}

// Selected returns the active network configuration.
func (c Config) Selected() (Network, error) {
	return c.Lookup(c.Network)
}

// Lookup returns the named network configuration.
func (c Config) Lookup(name string) (Network, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Network{}, fmt.Errorf("network is required")
	}
	n, ok := c.Networks[name]
	if !ok {
		return Network{}, fmt.Errorf("unknown network: %s", name)
	}
	return n, nil
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BLEND")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("network", "testnet")
	v.SetDefault("vault-backend", "sqlite")
	v.SetDefault("vault-dsn", "./data/vault.db")
	v.SetDefault("scrypt-n", 1<<18)
	v.SetDefault("scrypt-p", 1)
	v.SetDefault("export-per-minute", 1.0)
	v.SetDefault("export-burst", 1)
	v.SetDefault("audit", "./data/audit.jsonl")
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 250*time.Millisecond)
	v.SetDefault("read-timeout", 5*time.Second)
	v.SetDefault("submit-timeout", 60*time.Second)
	v.SetDefault("poll-interval", time.Second)
	v.SetDefault("simulate", true)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	networks, err := loadNetworks(v)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Network:  strings.ToLower(v.GetString("network")),
		Networks: networks,
		Vault: VaultConfig{
			Backend:         v.GetString("vault-backend"),
			DSN:             v.GetString("vault-dsn"),
			MasterKey:       v.GetString("master-key"),
			ScryptN:         v.GetInt("scrypt-n"),
			ScryptP:         v.GetInt("scrypt-p"),
			ExportPerMinute: v.GetFloat64("export-per-minute"),
			ExportBurst:     v.GetInt("export-burst"),
		},
		AuditPath:     v.GetString("audit"),
		MetricsAddr:   v.GetString("metrics-addr"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		ReadTimeout:   v.GetDuration("read-timeout"),
		SubmitTimeout: v.GetDuration("submit-timeout"),
		PollInterval:  v.GetDuration("poll-interval"),
		SimulateFirst: v.GetBool("simulate"),
		LogLevel:      v.GetString("log-level"),
	}

	// Flag-level overrides apply to the selected network only.
	if n, ok := cfg.Networks[cfg.Network]; ok {
		if rpc := v.GetString("rpc"); rpc != "" {
			n.RPCURL = rpc
		}
		if pass := v.GetString("passphrase"); pass != "" {
			n.Passphrase = pass
		}
		cfg.Networks[cfg.Network] = n
	}

	return cfg, nil
}
