package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"stayer/native/registry"
)

// Relay drives one keeper cycle: move pending delegation intents to the
// backend, surface undelegated funds back to the pool, report rewards, and
// refresh the validator registry.
type Relay struct {
	client  *Client
	backend StakingBackend
	keeper  string
	feedID  string
	log     *slog.Logger
}

func NewRelay(client *Client, backend StakingBackend, keeper, feedID string, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{client: client, backend: backend, keeper: keeper, feedID: feedID, log: log}
}

type pendingEntry struct {
	Validator string   `json:"validator"`
	Amount    *big.Int `json:"amount"`
}

type poolStatsResult struct {
	LastHarvestEra uint64 `json:"lastHarvestEra"`
}

type relayAmountParams struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type confirmParams struct {
	Caller    string `json:"caller"`
	Validator string `json:"validator"`
	Amount    string `json:"amount"`
}

type harvestParams struct {
	Caller             string `json:"caller"`
	NewTotalDelegation string `json:"newTotalDelegation"`
	Era                uint64 `json:"era"`
}

type registryUpdateParams struct {
	Caller string                     `json:"caller"`
	Batch  []registry.ValidatorUpdate `json:"batch"`
	PAvg   uint64                     `json:"pAvg"`
	Era    uint64                     `json:"era"`
}

// RunCycle executes one full pass. Step failures are logged and do not abort
// the remaining steps; the next cycle retries naturally.
func (r *Relay) RunCycle(ctx context.Context) {
	era, err := r.backend.CurrentEra(ctx)
	if err != nil {
		r.log.Error("failed to read backend era", "error", err)
		return
	}
	if err := r.processDelegations(ctx); err != nil {
		r.log.Error("delegation relay failed", "error", err)
	}
	if err := r.processUndelegations(ctx); err != nil {
		r.log.Error("undelegation relay failed", "error", err)
	}
	if err := r.harvest(ctx, era); err != nil {
		r.log.Error("reward harvest failed", "era", era, "error", err)
	}
	if err := r.refreshRegistry(ctx, era); err != nil {
		r.log.Error("registry refresh failed", "era", era, "error", err)
	}
	if err := r.pushPrice(ctx); err != nil {
		r.log.Error("price push failed", "feed", r.feedID, "error", err)
	}
}

func (r *Relay) processDelegations(ctx context.Context) error {
	var queue []pendingEntry
	if err := r.client.Call(ctx, "staking_pendingDelegations", nil, &queue); err != nil {
		return err
	}
	for _, entry := range queue {
		if entry.Amount == nil || entry.Amount.Sign() <= 0 {
			continue
		}
		amount := entry.Amount.String()
		if err := r.client.Call(ctx, "staking_withdrawForDelegation", confirmParams{Caller: r.keeper, Validator: entry.Validator, Amount: amount}, nil); err != nil {
			return fmt.Errorf("withdraw %s for %s: %w", amount, entry.Validator, err)
		}
		if err := r.backend.Delegate(ctx, entry.Validator, entry.Amount); err != nil {
			return fmt.Errorf("delegate %s to %s: %w", amount, entry.Validator, err)
		}
		if err := r.client.Call(ctx, "staking_confirmDelegation", confirmParams{Caller: r.keeper, Validator: entry.Validator, Amount: amount}, nil); err != nil {
			return fmt.Errorf("confirm delegation %s to %s: %w", amount, entry.Validator, err)
		}
		r.log.Info("delegation relayed", "validator", entry.Validator, "amount", amount)
	}
	return nil
}

func (r *Relay) processUndelegations(ctx context.Context) error {
	var queue []pendingEntry
	if err := r.client.Call(ctx, "staking_pendingUndelegations", nil, &queue); err != nil {
		return err
	}
	for _, entry := range queue {
		if entry.Amount == nil || entry.Amount.Sign() <= 0 {
			continue
		}
		amount := entry.Amount.String()
		if err := r.backend.Undelegate(ctx, entry.Validator, entry.Amount); err != nil {
			return fmt.Errorf("undelegate %s from %s: %w", amount, entry.Validator, err)
		}
		if err := r.client.Call(ctx, "staking_depositFromUndelegation", relayAmountParams{Caller: r.keeper, Amount: amount}, nil); err != nil {
			return fmt.Errorf("deposit %s from %s: %w", amount, entry.Validator, err)
		}
		if err := r.client.Call(ctx, "staking_confirmUndelegation", confirmParams{Caller: r.keeper, Validator: entry.Validator, Amount: amount}, nil); err != nil {
			return fmt.Errorf("confirm undelegation %s from %s: %w", amount, entry.Validator, err)
		}
		r.log.Info("undelegation relayed", "validator", entry.Validator, "amount", amount)
	}
	return nil
}

// harvest reports the backend's total delegation once per era.
func (r *Relay) harvest(ctx context.Context, era uint64) error {
	var stats poolStatsResult
	if err := r.client.Call(ctx, "staking_getStats", nil, &stats); err != nil {
		return err
	}
	if era <= stats.LastHarvestEra {
		return nil
	}
	total, err := r.backend.TotalDelegation(ctx)
	if err != nil {
		return err
	}
	params := harvestParams{Caller: r.keeper, NewTotalDelegation: total.String(), Era: era}
	if err := r.client.Call(ctx, "staking_harvestRewards", params, nil); err != nil {
		return err
	}
	r.log.Info("rewards harvested", "era", era, "totalDelegation", total.String())
	return nil
}

// refreshRegistry pushes the backend's validator set once per era. The network
// average is the mean performance score of the reported set, clamped to the
// accepted band.
func (r *Relay) refreshRegistry(ctx context.Context, era uint64) error {
	var last struct {
		Era uint64 `json:"era"`
	}
	if err := r.client.Call(ctx, "registry_getLastUpdateEra", nil, &last); err != nil {
		return err
	}
	if era <= last.Era {
		return nil
	}
	statuses, err := r.backend.Validators(ctx)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		return nil
	}
	if len(statuses) > registry.MaxValidatorsPerUpdate {
		statuses = statuses[:registry.MaxValidatorsPerUpdate]
	}
	batch := make([]registry.ValidatorUpdate, 0, len(statuses))
	var sum, counted uint64
	for _, status := range statuses {
		batch = append(batch, registry.ValidatorUpdate{
			PublicKey:   status.PublicKey,
			Fee:         status.Fee,
			DecayFactor: status.DecayFactor,
			Active:      status.Active,
		})
		if status.Active && status.Fee < 100 {
			sum += (100 - status.Fee) * 100 * status.DecayFactor / 10000
			counted++
		}
	}
	pAvg := registry.MinPAvg
	if counted > 0 {
		pAvg = sum / counted
	}
	if pAvg < registry.MinPAvg {
		pAvg = registry.MinPAvg
	}
	if pAvg > registry.MaxPAvg {
		pAvg = registry.MaxPAvg
	}
	params := registryUpdateParams{Caller: r.keeper, Batch: batch, PAvg: pAvg, Era: era}
	if err := r.client.Call(ctx, "registry_updateValidators", params, nil); err != nil {
		return err
	}
	r.log.Info("registry refreshed", "era", era, "validators", len(batch), "pAvg", pAvg)
	return nil
}

func (r *Relay) pushPrice(ctx context.Context) error {
	if r.feedID == "" {
		return nil
	}
	params := map[string]string{"feedId": r.feedID}
	return r.client.Call(ctx, "oracle_fetchFromFeed", params, nil)
}
