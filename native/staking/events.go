package staking

import (
	"fmt"
	"math/big"

	"stayer/core/types"
)

const (
	EventTypeStaked                = "staking.staked"
	EventTypeUnstakeRequested      = "staking.unstake_requested"
	EventTypeClaimed               = "staking.claimed"
	EventTypeRewardsHarvested      = "staking.rewards_harvested"
	EventTypeDelegationProcessed   = "staking.delegation_processed"
	EventTypeUndelegationProcessed = "staking.undelegation_processed"
)

func amountString(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

// NewStakedEvent reports a completed stake with the applied multiplier.
func NewStakedEvent(user, validator string, amount, minted *big.Int, multiplier uint64) *types.Event {
	return &types.Event{
		Type: EventTypeStaked,
		Attributes: map[string]string{
			"user":       user,
			"validator":  validator,
			"amount":     amountString(amount),
			"minted":     amountString(minted),
			"multiplier": fmt.Sprintf("%d", multiplier),
		},
	}
}

// NewUnstakeRequestedEvent reports a new withdrawal request.
func NewUnstakeRequestedEvent(user, validator string, amount *big.Int, requestID, unlockEra uint64) *types.Event {
	return &types.Event{
		Type: EventTypeUnstakeRequested,
		Attributes: map[string]string{
			"user":      user,
			"validator": validator,
			"amount":    amountString(amount),
			"requestId": fmt.Sprintf("%d", requestID),
			"unlockEra": fmt.Sprintf("%d", unlockEra),
		},
	}
}

// NewClaimedEvent reports a payout of matured withdrawal requests.
func NewClaimedEvent(user string, amount *big.Int, requests int) *types.Event {
	return &types.Event{
		Type: EventTypeClaimed,
		Attributes: map[string]string{
			"user":     user,
			"amount":   amountString(amount),
			"requests": fmt.Sprintf("%d", requests),
		},
	}
}

// NewRewardsHarvestedEvent reports a harvest and the resulting exchange rate.
func NewRewardsHarvestedEvent(rewards, fee, rate *big.Int, era uint64) *types.Event {
	return &types.Event{
		Type: EventTypeRewardsHarvested,
		Attributes: map[string]string{
			"rewards":      amountString(rewards),
			"fee":          amountString(fee),
			"exchangeRate": amountString(rate),
			"era":          fmt.Sprintf("%d", era),
		},
	}
}

// NewDelegationProcessedEvent reports a keeper-confirmed delegation.
func NewDelegationProcessedEvent(validator string, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeDelegationProcessed,
		Attributes: map[string]string{
			"validator": validator,
			"amount":    amountString(amount),
		},
	}
}

// NewUndelegationProcessedEvent reports a keeper-confirmed undelegation.
func NewUndelegationProcessedEvent(validator string, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeUndelegationProcessed,
		Attributes: map[string]string{
			"validator": validator,
			"amount":    amountString(amount),
		},
	}
}
