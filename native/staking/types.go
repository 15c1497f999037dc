package staking

import (
	"fmt"
	"math/big"
)

// RequestStatus tracks the lifecycle of a withdrawal request. Pending requests
// become Claimed exactly once; Claimed is terminal.
type RequestStatus string

const (
	RequestStatusPending RequestStatus = "pending"
	RequestStatusClaimed RequestStatus = "claimed"
)

// WithdrawalRequest is a user's unbonding claim ticket.
type WithdrawalRequest struct {
	ID         uint64        `json:"id"`
	User       string        `json:"user"`
	Validator  string        `json:"validator"`
	Amount     *big.Int      `json:"amount"`
	RequestEra uint64        `json:"requestEra"`
	UnlockEra  uint64        `json:"unlockEra"`
	Status     RequestStatus `json:"status"`
}

// PendingDelegation is an on-chain intent for the keeper to delegate funds to
// a validator. Entries for the same validator are merged on insert; Era records
// the era of the first insert.
type PendingDelegation struct {
	Validator string   `json:"validator"`
	Amount    *big.Int `json:"amount"`
	Era       uint64   `json:"era"`
}

// PendingUndelegation is the undelegation counterpart of PendingDelegation.
type PendingUndelegation struct {
	Validator string   `json:"validator"`
	Amount    *big.Int `json:"amount"`
	Era       uint64   `json:"era"`
}

// PoolState is the persistent accounting root of the staking pool.
type PoolState struct {
	Owner                  string   `json:"owner"`
	Keeper                 string   `json:"keeper"`
	TotalStaked            *big.Int `json:"totalStaked"`
	TotalPendingWithdrawal *big.Int `json:"totalPendingWithdrawal"`
	TotalDelegated         *big.Int `json:"totalDelegated"`
	CumulativeRewards      *big.Int `json:"cumulativeRewards"`
	NextRequestID          uint64   `json:"nextRequestId"`
	LastHarvestEra         uint64   `json:"lastHarvestEra"`
}

// PoolStats is the read-model snapshot served over RPC.
type PoolStats struct {
	TotalStaked            *big.Int `json:"totalStaked"`
	TotalPendingWithdrawal *big.Int `json:"totalPendingWithdrawal"`
	TotalDelegated         *big.Int `json:"totalDelegated"`
	CumulativeRewards      *big.Int `json:"cumulativeRewards"`
	DerivativeSupply       *big.Int `json:"derivativeSupply"`
	ExchangeRate           *big.Int `json:"exchangeRate"`
	LastHarvestEra         uint64   `json:"lastHarvestEra"`
}

var (
	keyPool                 = []byte("staking/pool")
	keyPendingDelegations   = []byte("staking/pending/delegations")
	keyPendingUndelegations = []byte("staking/pending/undelegations")
)

func stakeKey(user, validator string) []byte {
	return []byte(fmt.Sprintf("staking/stake/%s/%s", user, validator))
}

func validatorStakeKey(validator string) []byte {
	return []byte(fmt.Sprintf("staking/validator/%s", validator))
}

func requestKey(id uint64) []byte {
	return []byte(fmt.Sprintf("staking/request/%d", id))
}

func userRequestsKey(user string) []byte {
	return []byte(fmt.Sprintf("staking/userreq/%s", user))
}
