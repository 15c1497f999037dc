package main

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
)

// ValidatorStatus is the off-chain view of one validator as reported by the
// staking backend.
type ValidatorStatus struct {
	PublicKey   string
	Fee         uint64
	DecayFactor uint64
	Active      bool
}

// StakingBackend abstracts the external staking network the keeper delegates
// into. Implementations must be safe for concurrent use.
type StakingBackend interface {
	Delegate(ctx context.Context, validator string, amount *big.Int) error
	Undelegate(ctx context.Context, validator string, amount *big.Int) error
	TotalDelegation(ctx context.Context) (*big.Int, error)
	CurrentEra(ctx context.Context) (uint64, error)
	Validators(ctx context.Context) ([]ValidatorStatus, error)
}

var errUnknownValidator = errors.New("keeperd: unknown validator")

// SimulatedBackend is an in-memory staking backend used for local development
// and tests. Eras advance only when AdvanceEra is called; rewards accrue at a
// fixed basis-point rate per era advance.
type SimulatedBackend struct {
	mu          sync.Mutex
	era         uint64
	rewardBps   uint64
	delegations map[string]*big.Int
	validators  map[string]ValidatorStatus
}

// NewSimulatedBackend seeds a backend with the given validator public keys,
// all active with a 10 percent fee and full decay factor.
func NewSimulatedBackend(validators []string, rewardBps uint64) *SimulatedBackend {
	backend := &SimulatedBackend{
		era:         1,
		rewardBps:   rewardBps,
		delegations: make(map[string]*big.Int),
		validators:  make(map[string]ValidatorStatus),
	}
	for _, pubkey := range validators {
		pubkey = strings.ToLower(strings.TrimSpace(pubkey))
		if pubkey == "" {
			continue
		}
		backend.validators[pubkey] = ValidatorStatus{
			PublicKey:   pubkey,
			Fee:         10,
			DecayFactor: 100,
			Active:      true,
		}
	}
	return backend
}

func (b *SimulatedBackend) Delegate(_ context.Context, validator string, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	validator = strings.ToLower(strings.TrimSpace(validator))
	if _, ok := b.validators[validator]; !ok {
		return errUnknownValidator
	}
	current, ok := b.delegations[validator]
	if !ok {
		current = big.NewInt(0)
	}
	b.delegations[validator] = new(big.Int).Add(current, amount)
	return nil
}

func (b *SimulatedBackend) Undelegate(_ context.Context, validator string, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	validator = strings.ToLower(strings.TrimSpace(validator))
	current, ok := b.delegations[validator]
	if !ok || current.Cmp(amount) < 0 {
		return errUnknownValidator
	}
	b.delegations[validator] = new(big.Int).Sub(current, amount)
	return nil
}

func (b *SimulatedBackend) TotalDelegation(context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := big.NewInt(0)
	for _, amount := range b.delegations {
		total.Add(total, amount)
	}
	return total, nil
}

func (b *SimulatedBackend) CurrentEra(context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.era, nil
}

func (b *SimulatedBackend) Validators(context.Context) ([]ValidatorStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ValidatorStatus, 0, len(b.validators))
	for _, status := range b.validators {
		out = append(out, status)
	}
	return out, nil
}

// AdvanceEra moves the backend forward one era and accrues rewards on every
// delegation.
func (b *SimulatedBackend) AdvanceEra() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.era++
	if b.rewardBps == 0 {
		return
	}
	rate := new(big.Int).SetUint64(b.rewardBps)
	for validator, amount := range b.delegations {
		reward := new(big.Int).Mul(amount, rate)
		reward.Quo(reward, big.NewInt(10000))
		b.delegations[validator] = new(big.Int).Add(amount, reward)
	}
}
