package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yusefmosiah/tuxedo-sub004/internal/audit"
	"github.com/yusefmosiah/tuxedo-sub004/internal/config"
	"github.com/yusefmosiah/tuxedo-sub004/internal/engine"
	"github.com/yusefmosiah/tuxedo-sub004/internal/ledgerkey"
	"github.com/yusefmosiah/tuxedo-sub004/internal/metrics"
	"github.com/yusefmosiah/tuxedo-sub004/internal/pool"
	"github.com/yusefmosiah/tuxedo-sub004/internal/soroban"
	"github.com/yusefmosiah/tuxedo-sub004/internal/submit"
	"github.com/yusefmosiah/tuxedo-sub004/internal/vault"
	"github.com/yusefmosiah/tuxedo-sub004/internal/vault/postgres"
	"github.com/yusefmosiah/tuxedo-sub004/internal/vault/sqlite"
)

// app holds the wired components for one command invocation.
type app struct {
	cfg     config.Config
	network config.Network
	logger  *zap.Logger
	metrics *metrics.Metrics
	rpc     *soroban.Client
	vault   *vault.Vault
	engine  *engine.Engine
	closers []func()
}

type needs struct {
	rpc   bool
	vault bool
}

func newApp(ctx context.Context, cmd *cobra.Command, n needs) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	network, err := cfg.Selected()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, network: network, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	registry := prometheus.NewRegistry()
	a.metrics = metrics.New(registry)
	if cfg.MetricsAddr != "" {
		a.serveMetrics(registry, cfg.MetricsAddr)
	}

	recorder := audit.Recorder(audit.Nop{})
	if cfg.AuditPath != "" {
		recorder = audit.NewJournal(cfg.AuditPath)
	}

	if n.vault {
		if err := a.openVault(ctx, recorder); err != nil {
			a.Close()
			return nil, err
		}
	}
	if !n.rpc {
		return a, nil
	}

	if network.RPCURL == "" {
		a.Close()
		return nil, fmt.Errorf("rpc url is required for network %s", network.Name)
	}
	rpcClient, err := soroban.Dial(ctx, network.RPCURL, soroban.Options{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Metrics:      a.metrics,
		Logger:       logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	a.rpc = rpcClient
	a.closers = append(a.closers, rpcClient.Close)

	codec, err := ledgerkey.NewCodec(network.KeyStrategies, network.KeyNames)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("key strategies: %w", err)
	}
	caller := pool.NewContractCaller(rpcClient, network.SimulationSource)
	reader := pool.NewReader(codec, rpcClient, caller, pool.Options{
		DirectReads:  network.DirectReads,
		MissingCodes: network.MissingErrors,
		ReadTimeout:  cfg.ReadTimeout,
		Logger:       logger,
		Metrics:      a.metrics,
	})

	var creds submit.Credentials
	var accounts engine.Accounts
	if a.vault != nil {
		creds = a.vault
		accounts = a.vault
	}
	submitter := submit.New(rpcClient, creds, submit.Options{
		Passphrase:     network.Passphrase,
		Simulate:       cfg.SimulateFirst,
		Timeout:        cfg.SubmitTimeout,
		PollInterval:   cfg.PollInterval,
		ContractErrors: network.ContractErrors,
		Audit:          recorder,
		Logger:         logger,
		Metrics:        a.metrics,
	})

	a.engine = engine.New(network, engine.Deps{
		Reader:    reader,
		Symbols:   pool.NewAssetCache(caller, network.Assets),
		Accounts:  accounts,
		Submitter: submitter,
		Logger:    logger,
	})

	logger.Debug("client ready",
		zap.String("network", network.Name),
		zap.String("rpc", network.RPCURL),
		zap.Strings("key_strategies", network.KeyStrategies),
		zap.Bool("direct_reads", network.DirectReads),
	)
	return a, nil
}

func (a *app) openVault(ctx context.Context, recorder audit.Recorder) error {
	vc := a.cfg.Vault
	if vc.MasterKey == "" {
		return fmt.Errorf("vault master key is required (set BLEND_MASTER_KEY)")
	}
	cipher, err := vault.NewKeystoreCipher(vc.MasterKey, vc.ScryptN, vc.ScryptP)
	if err != nil {
		return err
	}

	var store vault.Store
	switch strings.ToLower(vc.Backend) {
	case "memory":
		store = vault.NewMemoryStore()
	case "sqlite", "":
		s, err := sqlite.Open(vc.DSN)
		if err != nil {
			return fmt.Errorf("open vault: %w", err)
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		store = s
	case "postgres":
		s, err := postgres.NewStore(ctx, vc.DSN)
		if err != nil {
			return fmt.Errorf("open vault: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		if err := s.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate vault: %w", err)
		}
		store = s
	default:
		return fmt.Errorf("unknown vault backend: %s", vc.Backend)
	}

	a.vault = vault.New(store, cipher, vault.Options{
		ExportPerMinute: vc.ExportPerMinute,
		ExportBurst:     vc.ExportBurst,
		Audit:           recorder,
		Logger:          a.logger,
		Metrics:         a.metrics,
	})
	return nil
}

// checkNetwork refuses to sign for a server on a different network.
func (a *app) checkNetwork(ctx context.Context) error {
	info, err := a.rpc.GetNetwork(ctx)
	if err != nil {
		return fmt.Errorf("get network: %w", err)
	}
	if info.Passphrase != a.network.Passphrase {
		return fmt.Errorf("rpc server is on %q, configured passphrase is %q", info.Passphrase, a.network.Passphrase)
	}
	return nil
}

func (a *app) serveMetrics(registry *prometheus.Registry, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	a.logger.Info("metrics server started", zap.String("addr", addr))
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
