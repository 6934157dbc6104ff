package model

// TokenMeta captures the identifying metadata of a token contract.
type TokenMeta struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint32 `json:"decimals"`
}
