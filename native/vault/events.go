package vault

import (
	"math/big"

	"stayer/core/types"
)

const (
	EventTypeDeposit       = "vault.deposit"
	EventTypeWithdraw      = "vault.withdraw"
	EventTypeBorrow        = "vault.borrow"
	EventTypeRepay         = "vault.repay"
	EventTypeLiquidate     = "vault.liquidate"
	EventTypeParamsUpdated = "vault.params_updated"
	EventTypePauseToggled  = "vault.pause_toggled"
)

func amountString(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

// NewDepositEvent reports added collateral and the resulting entry price.
func NewDepositEvent(user string, amount, collateral, entryPrice *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeDeposit,
		Attributes: map[string]string{
			"user":       user,
			"amount":     amountString(amount),
			"collateral": amountString(collateral),
			"entryPrice": amountString(entryPrice),
		},
	}
}

// NewWithdrawEvent reports returned collateral.
func NewWithdrawEvent(user string, amount, collateral *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeWithdraw,
		Attributes: map[string]string{
			"user":       user,
			"amount":     amountString(amount),
			"collateral": amountString(collateral),
		},
	}
}

// NewBorrowEvent reports newly minted debt.
func NewBorrowEvent(user string, amount, debt *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeBorrow,
		Attributes: map[string]string{
			"user":   user,
			"amount": amountString(amount),
			"debt":   amountString(debt),
		},
	}
}

// NewRepayEvent reports burned debt.
func NewRepayEvent(user string, amount, debt *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRepay,
		Attributes: map[string]string{
			"user":   user,
			"amount": amountString(amount),
			"debt":   amountString(debt),
		},
	}
}

// NewLiquidateEvent reports a partial or full liquidation.
func NewLiquidateEvent(liquidator, user string, covered, seized *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeLiquidate,
		Attributes: map[string]string{
			"liquidator": liquidator,
			"user":       user,
			"covered":    amountString(covered),
			"seized":     amountString(seized),
		},
	}
}

// NewParamsUpdatedEvent reports a risk parameter change.
func NewParamsUpdatedEvent(params Params) *types.Event {
	return &types.Event{
		Type: EventTypeParamsUpdated,
		Attributes: map[string]string{
			"ltv":          amountString(new(big.Int).SetUint64(params.LTV)),
			"liqThreshold": amountString(new(big.Int).SetUint64(params.LiqThreshold)),
			"liqPenalty":   amountString(new(big.Int).SetUint64(params.LiqPenalty)),
		},
	}
}

// NewPauseToggledEvent reports a pause state change.
func NewPauseToggledEvent(paused bool) *types.Event {
	value := "false"
	if paused {
		value = "true"
	}
	return &types.Event{
		Type: EventTypePauseToggled,
		Attributes: map[string]string{
			"paused": value,
		},
	}
}
