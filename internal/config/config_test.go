package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestLoadOverlaysNetworkSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blend.yaml")
	content := `
network: testnet
networks:
  testnet:
    pools: [CPOOLA, CPOOLB]
    assets:
      eurc: CEURC
    key-strategies: tuple,symbol
    contract-errors:
      "1209": not_listed
    missing-errors: [1200, "#1209"]
  futurenet:
    rpc: http://localhost:8000/soroban/rpc
    passphrase: Test Futurenet
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	if err := flags.Parse([]string{"--rpc", "http://override"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	testnet, err := cfg.Selected()
	if err != nil {
		t.Fatalf("selected: %v", err)
	}
	if testnet.RPCURL != "http://override" {
		t.Fatalf("rpc override not applied: %s", testnet.RPCURL)
	}
	if len(testnet.Pools) != 2 || testnet.Pools[1] != "CPOOLB" {
		t.Fatalf("pools mismatch: %+v", testnet.Pools)
	}
	if testnet.Assets["EURC"] != "CEURC" || testnet.Assets["XLM"] == "" {
		t.Fatalf("assets not merged: %+v", testnet.Assets)
	}
	if len(testnet.KeyStrategies) != 2 || testnet.KeyStrategies[0] != "tuple" {
		t.Fatalf("strategies mismatch: %+v", testnet.KeyStrategies)
	}
	if testnet.ContractErrors[1209] != "not_listed" || testnet.ContractErrors[10] != "insufficient_balance" {
		t.Fatalf("contract errors mismatch: %+v", testnet.ContractErrors)
	}

	if len(testnet.MissingErrors) != 2 || testnet.MissingErrors[0] != 1200 || testnet.MissingErrors[1] != 1209 {
		t.Fatalf("missing errors mismatch: %+v", testnet.MissingErrors)
	}

	futurenet, err := cfg.Lookup("futurenet")
	if err != nil {
		t.Fatalf("lookup futurenet: %v", err)
	}
	if futurenet.Passphrase != "Test Futurenet" || futurenet.RateScale != 10_000_000 || len(futurenet.MissingErrors) != 1 {
		t.Fatalf("futurenet mismatch: %+v", futurenet)
	}
}

func TestNetworkAssetResolution(t *testing.T) {
	n := DefaultNetworks()["testnet"]

	addr, ok := n.AssetAddress("weth")
	if !ok || addr != n.Assets["WETH"] {
		t.Fatalf("symbol lookup failed: %s", addr)
	}
	raw := "CAS3FL6TLZKDGGSISDBWGGPXT3NRR4DYTZD7YOD3HMYO6LTJUVGRVEAM"
	if addr, ok := n.AssetAddress(raw); !ok || addr != raw {
		t.Fatalf("address passthrough failed")
	}
	if _, ok := n.AssetAddress("DOGE"); ok {
		t.Fatalf("unexpected resolution for unknown symbol")
	}
	if symbol, ok := n.AssetSymbol(n.Assets["XLM"]); !ok || symbol != "XLM" {
		t.Fatalf("reverse lookup failed: %s", symbol)
	}
}
