package pool

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/yusefmosiah/tuxedo-sub004/internal/ledgerkey"
	"github.com/yusefmosiah/tuxedo-sub004/internal/model"
)

// AssetCache caches token metadata by contract address. Entries seeded from
// the network's asset table are never fetched.
type AssetCache struct {
	mu     sync.RWMutex
	data   map[string]model.TokenMeta
	getter ContractReader
}

// NewAssetCache seeds the cache with symbol -> address pairs.
func NewAssetCache(getter ContractReader, known map[string]string) *AssetCache {
	c := &AssetCache{data: make(map[string]model.TokenMeta), getter: getter}
	for symbol, addr := range known {
		c.data[addr] = model.TokenMeta{Address: addr, Symbol: strings.ToUpper(symbol)}
	}
	return c
}

func (c *AssetCache) Get(address string) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *AssetCache) Set(address string, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// Symbol resolves the display symbol of a token, asking the token contract on
// a cache miss. Unresolvable tokens get a shortened address.
func (c *AssetCache) Symbol(ctx context.Context, address string) string {
	if meta, ok := c.Get(address); ok && meta.Symbol != "" {
		return meta.Symbol
	}
	meta, err := c.fetch(ctx, address)
	if err != nil {
		return shortAddress(address)
	}
	c.Set(address, meta)
	return meta.Symbol
}

func (c *AssetCache) fetch(ctx context.Context, address string) (model.TokenMeta, error) {
	if c.getter == nil {
		return model.TokenMeta{}, fmt.Errorf("no contract reader")
	}
	val, err := c.getter.Call(ctx, address, "symbol")
	if err != nil {
		return model.TokenMeta{}, fmt.Errorf("symbol: %w", err)
	}
	symbol, err := ledgerkey.AsText(val)
	if err != nil {
		return model.TokenMeta{}, fmt.Errorf("symbol: %w", err)
	}
	meta := model.TokenMeta{Address: address, Symbol: strings.ToUpper(symbol)}
	if val, err := c.getter.Call(ctx, address, "decimals"); err == nil {
		if d, err := ledgerkey.AsU32(val); err == nil {
			meta.Decimals = d
		}
	}
	return meta, nil
}

func shortAddress(address string) string {
	if len(address) <= 8 {
		return address
	}
	return address[:4] + "..." + address[len(address)-4:]
}
