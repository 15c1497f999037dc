package vault

import (
	"fmt"
	"math/big"
)

// Params are the vault's risk parameters, all bps-scaled except MinCollateral.
type Params struct {
	LTV             uint64   `json:"ltv"`
	LiqThreshold    uint64   `json:"liqThreshold"`
	LiqPenalty      uint64   `json:"liqPenalty"`
	StabilityFeeBps uint64   `json:"stabilityFeeBps"`
	MinCollateral   *big.Int `json:"minCollateral"`
}

// DefaultParams returns the launch parameter set.
func DefaultParams() Params {
	return Params{
		LTV:             DefaultLTV,
		LiqThreshold:    DefaultLiqThreshold,
		LiqPenalty:      DefaultLiqPenalty,
		StabilityFeeBps: DefaultStabilityFee,
		MinCollateral:   new(big.Int).SetUint64(DefaultMinCollateral),
	}
}

// Position is a user's collateralized debt position. Collateral is held in
// derivative-token units, debt in stablecoin units, entry price is the
// collateral-weighted average oracle price across deposits.
type Position struct {
	Owner      string   `json:"owner"`
	Collateral *big.Int `json:"collateral"`
	Debt       *big.Int `json:"debt"`
	EntryPrice *big.Int `json:"entryPrice"`
}

// VaultState is the persistent accounting root of the vault.
type VaultState struct {
	Owner           string   `json:"owner"`
	Params          Params   `json:"params"`
	Paused          bool     `json:"paused"`
	OracleAddr      string   `json:"oracleAddr"`
	TotalCollateral *big.Int `json:"totalCollateral"`
	TotalDebt       *big.Int `json:"totalDebt"`
}

// VaultStats is the read-model snapshot served over RPC.
type VaultStats struct {
	TotalCollateral *big.Int `json:"totalCollateral"`
	TotalDebt       *big.Int `json:"totalDebt"`
	Paused          bool     `json:"paused"`
	OracleAddr      string   `json:"oracleAddr"`
}

var keyVault = []byte("vault/state")

func positionKey(user string) []byte {
	return []byte(fmt.Sprintf("vault/position/%s", user))
}
