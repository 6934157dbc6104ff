package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "blendctl",
		Short:        "Blend pool state and position client",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file path")
	pf.String("network", "testnet", "network name (testnet, mainnet or one from the config file)")
	pf.String("rpc", "", "Soroban RPC URL, overrides the network default")
	pf.String("passphrase", "", "network passphrase, overrides the network default")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9102)")
	pf.Int("max-retries", 3, "maximum retry attempts for transport errors")
	pf.Duration("retry-backoff", 250*time.Millisecond, "initial retry backoff")
	pf.Duration("read-timeout", 5*time.Second, "timeout for batched ledger reads")
	pf.String("vault-backend", "sqlite", "credential store (memory, sqlite, postgres)")
	pf.String("vault-dsn", "./data/vault.db", "credential store path or DSN")
	pf.String("master-key", "", "vault master key (prefer BLEND_MASTER_KEY)")
	pf.String("audit", "./data/audit.jsonl", "audit journal JSONL path")

	root.AddCommand(
		newPoolsCmd(),
		newYieldCmd(),
		newBestYieldCmd(),
		newPositionsCmd(),
		newPositionCmd(),
		newTxStatusCmd(),
		newAccountCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
