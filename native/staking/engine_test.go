package staking

import (
	"errors"
	"math/big"
	"testing"

	"stayer/native/common"
	"stayer/native/token"
	"stayer/state"
	"stayer/storage"
)

type fakeRegistry struct {
	valid  bool
	score  uint64
	known  bool
	pAvg   uint64
	errAll error
}

func (f *fakeRegistry) IsValid(string, uint64) (bool, error) {
	return f.valid, f.errAll
}

func (f *fakeRegistry) Score(string) (uint64, bool, error) {
	return f.score, f.known, f.errAll
}

func (f *fakeRegistry) NetworkPAvg() (uint64, error) {
	return f.pAvg, f.errAll
}

type testEnv struct {
	engine     *Engine
	registry   *fakeRegistry
	base       *token.Ledger
	derivative *token.Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())

	base := token.NewLedger("STAY")
	base.SetState(mgr)
	derivative := token.NewLedger("ySTAY")
	derivative.SetState(mgr)

	registry := &fakeRegistry{valid: true, score: 80, known: true, pAvg: 80}

	engine := NewEngine()
	engine.SetState(mgr)
	engine.SetRegistry(registry)
	engine.SetBaseLedger(base)
	engine.SetDerivativeToken(derivative)
	if err := engine.Initialize("owner", "keeper"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return &testEnv{engine: engine, registry: registry, base: base, derivative: derivative}
}

func (env *testEnv) fund(t *testing.T, user string, amount *big.Int) {
	t.Helper()
	if err := env.base.Mint(user, amount); err != nil {
		t.Fatalf("fund %s: %v", user, err)
	}
}

func stakeUnits(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).SetUint64(Precision))
}

func TestStakeAtParMintsOneToOne(t *testing.T) {
	env := newTestEnv(t)
	amount := stakeUnits(100)
	env.fund(t, "alice", amount)

	minted, err := env.engine.Stake("alice", "val-1", 1, amount)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}
	if minted.Cmp(amount) != 0 {
		t.Fatalf("par stake must mint 1:1, got %s", minted)
	}
	rate, err := env.engine.ExchangeRate()
	if err != nil {
		t.Fatalf("exchange rate: %v", err)
	}
	if rate.Cmp(new(big.Int).SetUint64(Precision)) != 0 {
		t.Fatalf("rate must stay at par, got %s", rate)
	}
	bal, err := env.derivative.BalanceOf("alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(amount) != 0 {
		t.Fatalf("expected derivative balance %s, got %s", amount, bal)
	}
	staked, err := env.engine.StakeOf("alice", "val-1")
	if err != nil {
		t.Fatalf("stake of: %v", err)
	}
	if staked.Cmp(amount) != 0 {
		t.Fatalf("expected recorded stake %s, got %s", amount, staked)
	}
}

func TestStakeMultiplierBand(t *testing.T) {
	for _, tc := range []struct {
		name  string
		score uint64
		pAvg  uint64
		want  uint64
	}{
		{"above par", 95, 80, 11875},
		{"floor clamp", 10, 100, MinMultiplier},
		{"ceiling clamp", 100, 10, MaxMultiplier},
		{"zero avg is par", 80, 0, BasisPoints},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := mintMultiplier(tc.score, tc.pAvg); got != tc.want {
				t.Fatalf("expected multiplier %d, got %d", tc.want, got)
			}
		})
	}
}

func TestStakeAboveParMintsMore(t *testing.T) {
	env := newTestEnv(t)
	env.registry.score = 95
	amount := stakeUnits(100)
	env.fund(t, "alice", amount)

	minted, err := env.engine.Stake("alice", "val-1", 1, amount)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}
	// 95/80 => multiplier 11875, 100 units mint 118.75 units.
	want := new(big.Int).Mul(amount, big.NewInt(11875))
	want.Quo(want, big.NewInt(10000))
	if minted.Cmp(want) != 0 {
		t.Fatalf("expected %s minted, got %s", want, minted)
	}
}

func TestStakeRangeBounds(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", stakeUnits(1_000_000))

	below := new(big.Int).SetUint64(MinStake - 1)
	if _, err := env.engine.Stake("alice", "val-1", 1, below); !errors.Is(err, ErrStakeOutOfRange) {
		t.Fatalf("expected ErrStakeOutOfRange below minimum, got %v", err)
	}
	above := new(big.Int).SetUint64(MaxSingleStake)
	above.Add(above, big.NewInt(1))
	if _, err := env.engine.Stake("alice", "val-1", 1, above); !errors.Is(err, ErrStakeOutOfRange) {
		t.Fatalf("expected ErrStakeOutOfRange above maximum, got %v", err)
	}
	if _, err := env.engine.Stake("alice", "val-1", 1, new(big.Int).SetUint64(MinStake)); err != nil {
		t.Fatalf("minimum stake rejected: %v", err)
	}
}

func TestStakeRejectsInvalidValidator(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", stakeUnits(100))
	env.registry.valid = false
	if _, err := env.engine.Stake("alice", "val-1", 1, stakeUnits(100)); !errors.Is(err, ErrInvalidValidator) {
		t.Fatalf("expected ErrInvalidValidator, got %v", err)
	}
	env.registry.valid = true
	env.registry.score = 0
	if _, err := env.engine.Stake("alice", "val-1", 1, stakeUnits(100)); !errors.Is(err, ErrInvalidValidator) {
		t.Fatalf("expected ErrInvalidValidator for zero score, got %v", err)
	}
}

func TestStakeRespectsPause(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", stakeUnits(100))
	pauses := common.NewPauseSet()
	pauses.SetPaused(ModuleName, true)
	env.engine.SetPauses(pauses)
	if _, err := env.engine.Stake("alice", "val-1", 1, stakeUnits(100)); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	pauses.SetPaused(ModuleName, false)
	if _, err := env.engine.Stake("alice", "val-1", 1, stakeUnits(100)); err != nil {
		t.Fatalf("stake after unpause: %v", err)
	}
}

func TestUnstakeChecksUserStake(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", stakeUnits(1000))
	if _, err := env.engine.Stake("alice", "val-1", 1, stakeUnits(1000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	// alice never staked on val-2.
	if _, err := env.engine.Unstake("alice", "val-2", stakeUnits(10), 2); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake, got %v", err)
	}
}

func TestUnstakePoolDrainCap(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", stakeUnits(1000))
	if _, err := env.engine.Stake("alice", "val-1", 1, stakeUnits(1000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	// Exactly 10% of the pool passes, one unit more is rejected.
	if _, err := env.engine.Unstake("alice", "val-1", stakeUnits(100), 2); err != nil {
		t.Fatalf("unstake at the cap: %v", err)
	}
	over := new(big.Int).Add(stakeUnits(90), big.NewInt(1))
	if _, err := env.engine.Unstake("alice", "val-1", over, 2); !errors.Is(err, ErrUnstakeTooLarge) {
		t.Fatalf("expected ErrUnstakeTooLarge, got %v", err)
	}
}

func TestUnstakeCreatesRequest(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", stakeUnits(1000))
	if _, err := env.engine.Stake("alice", "val-1", 1, stakeUnits(1000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	request, err := env.engine.Unstake("alice", "val-1", stakeUnits(100), 5)
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if request.UnlockEra != 5+UnbondingDelay {
		t.Fatalf("expected unlock era %d, got %d", 5+UnbondingDelay, request.UnlockEra)
	}
	if request.Status != RequestStatusPending {
		t.Fatalf("expected pending status, got %s", request.Status)
	}
	if request.Amount.Cmp(stakeUnits(100)) != 0 {
		t.Fatalf("expected amount %s, got %s", stakeUnits(100), request.Amount)
	}
	stats, err := env.engine.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalStaked.Cmp(stakeUnits(900)) != 0 {
		t.Fatalf("expected total staked 900, got %s", stats.TotalStaked)
	}
	if stats.TotalPendingWithdrawal.Cmp(stakeUnits(100)) != 0 {
		t.Fatalf("expected pending 100, got %s", stats.TotalPendingWithdrawal)
	}
}

func TestClaimLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", stakeUnits(1000))
	if _, err := env.engine.Stake("alice", "val-1", 1, stakeUnits(1000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	request, err := env.engine.Unstake("alice", "val-1", stakeUnits(100), 5)
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}

	// Before the unlock era nothing has matured.
	if _, _, err := env.engine.Claim("alice", request.UnlockEra-1); !errors.Is(err, ErrNoMaturedWithdrawals) {
		t.Fatalf("expected ErrNoMaturedWithdrawals, got %v", err)
	}

	paid, ids, err := env.engine.Claim("alice", request.UnlockEra)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid.Cmp(stakeUnits(100)) != 0 {
		t.Fatalf("expected payout 100 units, got %s", paid)
	}
	if len(ids) != 1 || ids[0] != request.ID {
		t.Fatalf("unexpected claimed ids %v", ids)
	}
	bal, err := env.base.BalanceOf("alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(stakeUnits(100)) != 0 {
		t.Fatalf("expected base balance 100, got %s", bal)
	}

	// The request is terminal, the index is gone.
	if _, _, err := env.engine.Claim("alice", request.UnlockEra+1); !errors.Is(err, ErrNoPendingWithdrawals) {
		t.Fatalf("expected ErrNoPendingWithdrawals after full claim, got %v", err)
	}
	stored, ok, err := env.engine.Request(request.ID)
	if err != nil || !ok {
		t.Fatalf("request lookup: ok=%t err=%v", ok, err)
	}
	if stored.Status != RequestStatusClaimed {
		t.Fatalf("expected claimed status, got %s", stored.Status)
	}
}

func TestClaimKeepsUnmaturedRequests(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", stakeUnits(1000))
	if _, err := env.engine.Stake("alice", "val-1", 1, stakeUnits(1000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	first, err := env.engine.Unstake("alice", "val-1", stakeUnits(50), 5)
	if err != nil {
		t.Fatalf("first unstake: %v", err)
	}
	second, err := env.engine.Unstake("alice", "val-1", stakeUnits(50), 8)
	if err != nil {
		t.Fatalf("second unstake: %v", err)
	}

	paid, ids, err := env.engine.Claim("alice", first.UnlockEra)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid.Cmp(stakeUnits(50)) != 0 {
		t.Fatalf("expected payout 50, got %s", paid)
	}
	if len(ids) != 1 || ids[0] != first.ID {
		t.Fatalf("unexpected claimed ids %v", ids)
	}

	// The second request is still claimable later.
	paid, ids, err = env.engine.Claim("alice", second.UnlockEra)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if paid.Cmp(stakeUnits(50)) != 0 {
		t.Fatalf("expected payout 50, got %s", paid)
	}
	if len(ids) != 1 || ids[0] != second.ID {
		t.Fatalf("unexpected claimed ids %v", ids)
	}
}

func TestClaimFailedPayoutLeavesRequestsPending(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", stakeUnits(1000))
	if _, err := env.engine.Stake("alice", "val-1", 1, stakeUnits(1000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	request, err := env.engine.Unstake("alice", "val-1", stakeUnits(50), 2)
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	// The keeper pulls the full pooled balance before the unbonded amount
	// returns.
	if err := env.engine.WithdrawForDelegation("keeper", "val-1", stakeUnits(1000)); err != nil {
		t.Fatalf("withdraw for delegation: %v", err)
	}

	if _, _, err := env.engine.Claim("alice", request.UnlockEra); err == nil {
		t.Fatalf("claim against an empty module account must fail")
	}
	stored, ok, err := env.engine.Request(request.ID)
	if err != nil || !ok {
		t.Fatalf("request lookup: ok=%t err=%v", ok, err)
	}
	if stored.Status != RequestStatusPending {
		t.Fatalf("failed payout must leave the request pending, got %s", stored.Status)
	}
	stats, err := env.engine.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalPendingWithdrawal.Cmp(stakeUnits(50)) != 0 {
		t.Fatalf("pending withdrawal total must be untouched, got %s", stats.TotalPendingWithdrawal)
	}

	// Once the keeper returns the unbonded funds the claim pays out normally.
	if err := env.engine.DepositFromUndelegation("keeper", stakeUnits(50)); err != nil {
		t.Fatalf("deposit from undelegation: %v", err)
	}
	paid, ids, err := env.engine.Claim("alice", request.UnlockEra)
	if err != nil {
		t.Fatalf("claim after refill: %v", err)
	}
	if paid.Cmp(stakeUnits(50)) != 0 || len(ids) != 1 || ids[0] != request.ID {
		t.Fatalf("unexpected claim result paid=%s ids=%v", paid, ids)
	}
}

func TestHarvestRaisesExchangeRate(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", stakeUnits(1000))
	if _, err := env.engine.Stake("alice", "val-1", 1, stakeUnits(1000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	before, err := env.engine.ExchangeRate()
	if err != nil {
		t.Fatalf("rate: %v", err)
	}

	reported := new(big.Int).Add(stakeUnits(1000), stakeUnits(100))
	if err := env.engine.HarvestRewards("keeper", reported, 2); err != nil {
		t.Fatalf("harvest: %v", err)
	}
	after, err := env.engine.ExchangeRate()
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if after.Cmp(before) <= 0 {
		t.Fatalf("harvest must raise the rate: before %s after %s", before, after)
	}

	// 100 units rewards, 5% protocol fee, 95 units net.
	stats, err := env.engine.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalStaked.Cmp(stakeUnits(1095)) != 0 {
		t.Fatalf("expected total staked 1095, got %s", stats.TotalStaked)
	}
	if stats.CumulativeRewards.Cmp(stakeUnits(95)) != 0 {
		t.Fatalf("expected cumulative rewards 95, got %s", stats.CumulativeRewards)
	}
}

func TestHarvestNoopStillAdvancesEra(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", stakeUnits(1000))
	if _, err := env.engine.Stake("alice", "val-1", 1, stakeUnits(1000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	before, err := env.engine.ExchangeRate()
	if err != nil {
		t.Fatalf("rate: %v", err)
	}

	// Reported total matches the expected balance, nothing to distribute.
	if err := env.engine.HarvestRewards("keeper", stakeUnits(1000), 3); err != nil {
		t.Fatalf("harvest: %v", err)
	}
	after, err := env.engine.ExchangeRate()
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if after.Cmp(before) != 0 {
		t.Fatalf("no-op harvest must keep the rate: before %s after %s", before, after)
	}
	stats, err := env.engine.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.LastHarvestEra != 3 {
		t.Fatalf("expected harvest era 3, got %d", stats.LastHarvestEra)
	}
}

func TestHarvestRejectsNonIncreasingEra(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.HarvestRewards("keeper", big.NewInt(0), 5); err != nil {
		t.Fatalf("harvest: %v", err)
	}
	if err := env.engine.HarvestRewards("keeper", big.NewInt(0), 5); !errors.Is(err, ErrInvalidEra) {
		t.Fatalf("expected ErrInvalidEra, got %v", err)
	}
	if err := env.engine.HarvestRewards("keeper", big.NewInt(0), 4); !errors.Is(err, ErrInvalidEra) {
		t.Fatalf("expected ErrInvalidEra, got %v", err)
	}
}

func TestHarvestKeeperOnly(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.HarvestRewards("mallory", big.NewInt(0), 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestExchangeRateEmptySupplyIsPar(t *testing.T) {
	env := newTestEnv(t)
	rate, err := env.engine.ExchangeRate()
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rate.Cmp(new(big.Int).SetUint64(Precision)) != 0 {
		t.Fatalf("empty pool must be par, got %s", rate)
	}
}

func TestSetKeeperOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetKeeper("keeper", "keeper2"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := env.engine.SetKeeper("owner", "keeper2"); err != nil {
		t.Fatalf("set keeper: %v", err)
	}
	if err := env.engine.HarvestRewards("keeper2", big.NewInt(0), 1); err != nil {
		t.Fatalf("new keeper rejected: %v", err)
	}
}

func TestTotalStakedMatchesPositions(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", stakeUnits(500))
	env.fund(t, "bob", stakeUnits(700))
	if _, err := env.engine.Stake("alice", "val-1", 1, stakeUnits(500)); err != nil {
		t.Fatalf("stake alice: %v", err)
	}
	if _, err := env.engine.Stake("bob", "val-2", 1, stakeUnits(700)); err != nil {
		t.Fatalf("stake bob: %v", err)
	}
	if _, err := env.engine.Unstake("bob", "val-2", stakeUnits(100), 2); err != nil {
		t.Fatalf("unstake bob: %v", err)
	}

	total, err := env.engine.TotalStaked()
	if err != nil {
		t.Fatalf("total staked: %v", err)
	}
	sum := big.NewInt(0)
	for _, pair := range [][2]string{{"alice", "val-1"}, {"bob", "val-2"}} {
		staked, err := env.engine.StakeOf(pair[0], pair[1])
		if err != nil {
			t.Fatalf("stake of %s: %v", pair[0], err)
		}
		sum.Add(sum, staked)
	}
	if total.Cmp(sum) != 0 {
		t.Fatalf("accumulator %s diverged from position sum %s", total, sum)
	}
}
