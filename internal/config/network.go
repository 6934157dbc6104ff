package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Network holds everything needed to talk to one deployment of the protocol.
type Network struct {
	Name             string
	RPCURL           string
	Passphrase       string
	Backstop         string
	Pools            []string
	Assets           map[string]string
	KeyStrategies    []string
	KeyNames         map[string]string
	DirectReads      bool
	SimulationSource string
	RateScale        int64
	ContractErrors   map[uint32]string
	MissingErrors    []uint32
}

// AssetAddress resolves a symbol through the asset table. Addresses pass through.
func (n Network) AssetAddress(symbolOrAddress string) (string, bool) {
	key := strings.ToUpper(strings.TrimSpace(symbolOrAddress))
	if addr, ok := n.Assets[key]; ok {
		return addr, true
	}
	if len(key) == 56 && strings.HasPrefix(key, "C") {
		return key, true
	}
	return "", false
}

// AssetSymbol reverse-resolves an address through the asset table.
func (n Network) AssetSymbol(address string) (string, bool) {
	for symbol, addr := range n.Assets {
		if addr == address {
			return symbol, true
		}
	}
	return "", false
}

// DefaultContractErrors maps pool and token contract error codes to failure reasons.
func DefaultContractErrors() map[uint32]string {
	return map[uint32]string{
		10:   "insufficient_balance",
		1204: "pool_paused",
		1206: "pool_paused",
		1207: "exceeds_liquidity",
	}
}

// DefaultMissingErrors lists the pool contract error codes a getter raises for
// a reserve the pool does not list.
func DefaultMissingErrors() []uint32 {
	return []uint32{1209}
}

// DefaultNetworks returns the built-in testnet and mainnet parameters. The
// mainnet RPC URL has no public default and must be configured.
func DefaultNetworks() map[string]Network {
	return map[string]Network{
		"testnet": {
			Name:       "testnet",
			RPCURL:     "https://soroban-testnet.stellar.org",
			Passphrase: "Test SDF Network ; September 2015",
			Backstop:   "CBHWKF4RHIKOKSURAKXSJRIIA7RJAMJH4VHRVPYGUF4AJ5L544LYZ35X",
			Pools:      []string{"CCQ74HNBMLYICEFUGNLM23QQJU7BKZS7CXC7OAOX4IHRT3LDINZ4V3AF"},
			Assets: map[string]string{
				"XLM":  "CDLZFC3SYJYDZT7K67VZ75HPJVIEUVNIXF47ZG2FB2RMQQVU2HHGCYSC",
				"WETH": "CAZAQB3D7KSLSNOSQKYD2V4JP5V2Y3B4RDJZRLBFCCIXDCTE3WHSY3UE",
				"WBTC": "CAP5AMC2OHNVREO66DFIN6DHJMPOBAJ2KCDDIMFBR7WWJH5RZBFM3UEI",
			},
			KeyStrategies:  []string{"enum", "tuple", "symbol"},
			KeyNames:       map[string]string{},
			DirectReads:    true,
			RateScale:      10_000_000,
			ContractErrors: DefaultContractErrors(),
			MissingErrors:  DefaultMissingErrors(),
		},
		"mainnet": {
			Name:       "mainnet",
			Passphrase: "Public Global Stellar Network ; September 2015",
			Backstop:   "CAQQR5SWBXKIGZKPBZDH3KM5GQ5GUTPKB7JAFCINLZBC5WXPJKRG3IM7",
			Pools:      []string{"CAS3FL6TLZKDGGSISDBWGGPXT3NRR4DYTZD7YOD3HMYO6LTJUVGRVEAM"},
			Assets: map[string]string{
				"USDC": "CCW67TSZV3SSS2HXMBQ5JFGCKJNXKZM7UQUWUZPUTHXSTZLEO7SJMI75",
				"XLM":  "CAS3J7GYLGXMF6TDJBBYYSE3HQ6BBSMLNUQ34T6TZMYMW2EVH34XOWMA",
				"BLND": "CD25MNVTZDL4Y3XBCPCJXGXATV5WUHHOWMYFF4YBEGU5FCPGMYTVG5JY",
			},
			KeyStrategies:  []string{"enum", "tuple", "symbol"},
			KeyNames:       map[string]string{},
			DirectReads:    true,
			RateScale:      10_000_000,
			ContractErrors: DefaultContractErrors(),
			MissingErrors:  DefaultMissingErrors(),
		},
	}
}

// loadNetworks overlays the "networks" section of the config file onto the defaults.
func loadNetworks(v *viper.Viper) (map[string]Network, error) {
	networks := DefaultNetworks()
	if !v.IsSet("networks") {
		return networks, nil
	}

	for name := range v.GetStringMap("networks") {
		sub := v.Sub("networks." + name)
		if sub == nil {
			continue
		}
		key := strings.ToLower(name)
		n, ok := networks[key]
		if !ok {
			n = Network{
				Name:           key,
				Assets:         map[string]string{},
				KeyNames:       map[string]string{},
				KeyStrategies:  []string{"enum", "tuple", "symbol"},
				DirectReads:    true,
				RateScale:      10_000_000,
				ContractErrors: DefaultContractErrors(),
				MissingErrors:  DefaultMissingErrors(),
			}
		}
		if sub.IsSet("rpc") {
			n.RPCURL = sub.GetString("rpc")
		}
		if sub.IsSet("passphrase") {
			n.Passphrase = sub.GetString("passphrase")
		}
		if sub.IsSet("backstop") {
			n.Backstop = sub.GetString("backstop")
		}
		if sub.IsSet("pools") {
			n.Pools = getStringSlice(sub, "pools")
		}
		if sub.IsSet("assets") {
			for symbol, addr := range getStringMap(sub, "assets") {
				n.Assets[strings.ToUpper(symbol)] = addr
			}
		}
		if sub.IsSet("key-strategies") {
			n.KeyStrategies = getStringSlice(sub, "key-strategies")
		}
		if sub.IsSet("key-names") {
			n.KeyNames = getStringMap(sub, "key-names")
		}
		if sub.IsSet("direct-reads") {
			n.DirectReads = sub.GetBool("direct-reads")
		}
		if sub.IsSet("simulation-source") {
			n.SimulationSource = sub.GetString("simulation-source")
		}
		if sub.IsSet("rate-scale") {
			n.RateScale = sub.GetInt64("rate-scale")
		}
		if sub.IsSet("contract-errors") {
			codes, err := parseContractErrors(getStringMap(sub, "contract-errors"))
			if err != nil {
				return nil, fmt.Errorf("network %s: %w", key, err)
			}
			for code, reason := range codes {
				n.ContractErrors[code] = reason
			}
		}
		if sub.IsSet("missing-errors") {
			codes, err := parseCodes(getStringSlice(sub, "missing-errors"))
			if err != nil {
				return nil, fmt.Errorf("network %s: %w", key, err)
			}
			n.MissingErrors = codes
		}
		if n.RateScale <= 0 {
			return nil, fmt.Errorf("network %s: rate-scale must be positive", key)
		}
		networks[key] = n
	}
	return networks, nil
}

func parseContractErrors(raw map[string]string) (map[uint32]string, error) {
	out := make(map[uint32]string, len(raw))
	for k, reason := range raw {
		code, err := parseCode(k)
		if err != nil {
			return nil, err
		}
		out[code] = reason
	}
	return out, nil
}

func parseCodes(raw []string) ([]uint32, error) {
	out := make([]uint32, 0, len(raw))
	for _, k := range raw {
		code, err := parseCode(k)
		if err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, nil
}

func parseCode(raw string) (uint32, error) {
	code, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(raw), "#"), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("contract error code %q: %w", raw, err)
	}
	return uint32(code), nil
}

// getStringSlice reads a list given as a YAML sequence or as a comma-separated
// string. Blank items are dropped.
func getStringSlice(v *viper.Viper, key string) []string {
	var raw []string
	switch typed := v.Get(key).(type) {
	case []string:
		raw = typed
	case []interface{}:
		for _, item := range typed {
			raw = append(raw, fmt.Sprintf("%v", item))
		}
	case string:
		raw = strings.Split(typed, ",")
	}
	var out []string
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
