package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/yusefmosiah/tuxedo-sub004/internal/config"
	"github.com/yusefmosiah/tuxedo-sub004/internal/errs"
	"github.com/yusefmosiah/tuxedo-sub004/internal/ledgerkey"
	"github.com/yusefmosiah/tuxedo-sub004/internal/model"
	"github.com/yusefmosiah/tuxedo-sub004/internal/pool"
)

// StateReader reads decoded contract state.
type StateReader interface {
	ReadMany(ctx context.Context, keys []pool.LogicalKey) []pool.Result
}

// Registry discovers the pools of a network.
type Registry struct {
	reader StateReader
	logger *zap.Logger
}

func NewRegistry(reader StateReader, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{reader: reader, logger: logger}
}

// DiscoverPools lists the pools in the backstop's reward zone followed by any
// configured pools missing from it. When the reward zone cannot be read the
// configured pools are returned alone.
func (r *Registry) DiscoverPools(ctx context.Context, network config.Network) ([]model.PoolSummary, error) {
	type candidate struct {
		address    string
		provenance model.Provenance
	}
	var candidates []candidate
	seen := make(map[string]bool)

	if network.Backstop != "" {
		res := r.reader.ReadMany(ctx, []pool.LogicalKey{{Contract: network.Backstop, Field: ledgerkey.BackstopRewardZone}})[0]
		if res.Err != nil {
			r.logger.Warn("reward zone unavailable, using configured pools", zap.String("backstop", network.Backstop), zap.Error(res.Err))
		} else if zone, ok := res.Record.(model.RewardZone); ok {
			for _, addr := range zone {
				if !seen[addr] {
					seen[addr] = true
					candidates = append(candidates, candidate{address: addr, provenance: res.Provenance})
				}
			}
		}
	}
	for _, addr := range network.Pools {
		if !seen[addr] {
			seen[addr] = true
			candidates = append(candidates, candidate{address: addr, provenance: model.ProvenanceConfigured})
		}
	}
	if len(candidates) == 0 {
		return nil, errs.NotFound("no pools known for network %s", network.Name)
	}

	keys := make([]pool.LogicalKey, 0, 2*len(candidates))
	for _, c := range candidates {
		keys = append(keys,
			pool.LogicalKey{Contract: c.address, Field: ledgerkey.PoolName},
			pool.LogicalKey{Contract: c.address, Field: ledgerkey.PoolConfig},
		)
	}
	results := r.reader.ReadMany(ctx, keys)

	out := make([]model.PoolSummary, 0, len(candidates))
	for i, c := range candidates {
		summary := model.PoolSummary{Address: c.address, Status: "unknown", Provenance: c.provenance}
		if name, ok := results[2*i].Record.(model.PoolName); ok && results[2*i].Err == nil {
			summary.Name = string(name)
		} else {
			r.logger.Debug("pool name unavailable", zap.String("pool", c.address), zap.Error(results[2*i].Err))
		}
		if cfg, ok := results[2*i+1].Record.(model.PoolConfig); ok && results[2*i+1].Err == nil {
			summary.Status = StatusName(cfg.Status)
		}
		if summary.Name == "" {
			summary.Name = shortAddress(c.address)
		}
		out = append(out, summary)
	}
	return out, nil
}

// StatusName renders a pool status code.
func StatusName(status uint32) string {
	switch status {
	case 0, 1:
		return "active"
	case 2, 3:
		return "on_ice"
	case 4, 5:
		return "frozen"
	case 6:
		return "setup"
	default:
		return "unknown"
	}
}

func shortAddress(address string) string {
	if len(address) <= 8 {
		return address
	}
	return address[:4] + "..." + address[len(address)-4:]
}
