package staking

import (
	"errors"
	"math/big"
	"strings"

	"stayer/core/events"
	"stayer/core/types"
	"stayer/native/common"
)

var (
	errNilState = errors.New("staking engine: state not configured")

	// ErrUnauthorized is returned when the caller is not the keeper or owner.
	ErrUnauthorized = errors.New("staking engine: unauthorized")
	// ErrNotInitialized signals that the pool was never seeded.
	ErrNotInitialized = errors.New("staking engine: pool not initialized")
	// ErrInvalidAmount rejects nil, zero or negative amounts.
	ErrInvalidAmount = errors.New("staking engine: invalid amount")
	// ErrStakeOutOfRange rejects stakes outside [MinStake, MaxSingleStake].
	ErrStakeOutOfRange = errors.New("staking engine: stake amount out of range")
	// ErrInvalidValidator rejects stakes to unknown, inactive or stale validators.
	ErrInvalidValidator = errors.New("staking engine: validator not eligible")
	// ErrInsufficientStake is returned when an unstake exceeds the caller's
	// recorded stake on that validator.
	ErrInsufficientStake = errors.New("staking engine: insufficient staked balance")
	// ErrUnstakeTooLarge enforces the single-unstake pool drain cap.
	ErrUnstakeTooLarge = errors.New("staking engine: unstake exceeds pool cap")
	// ErrNoPendingWithdrawals is returned when the caller has no requests at all.
	ErrNoPendingWithdrawals = errors.New("staking engine: no pending withdrawals")
	// ErrNoMaturedWithdrawals is returned when no request has unlocked yet.
	ErrNoMaturedWithdrawals = errors.New("staking engine: no matured withdrawals")
	// ErrInvalidEra rejects harvest calls whose era does not advance.
	ErrInvalidEra = errors.New("staking engine: era must increase")
	// ErrPendingAmountExceeded bounds keeper relay amounts by the recorded intent.
	ErrPendingAmountExceeded = errors.New("staking engine: amount exceeds pending intent")
)

const (
	// MinStake and MaxSingleStake bound a single stake call, in base units.
	MinStake       = uint64(100_000_000_000)
	MaxSingleStake = uint64(100_000_000_000_000)
	// UnbondingDelay is the number of eras between unstake and claim.
	UnbondingDelay = uint64(7)
	// ProtocolFeeBps is the protocol's cut of harvested rewards.
	ProtocolFeeBps = uint64(500)
	// MinMultiplier and MaxMultiplier bound the validator-quality mint
	// multiplier. Par is 10000.
	MinMultiplier = uint64(5000)
	MaxMultiplier = uint64(15000)
	// Precision is the fixed-point scale of the exchange rate.
	Precision = uint64(1_000_000_000)
	// BasisPoints is the denominator for bps ratios.
	BasisPoints = uint64(10000)

	// ModuleName identifies the pool for pause guards.
	ModuleName = "staking"
	// moduleAddress holds pooled base-asset funds on the ledger.
	moduleAddress = "module/staking-pool"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// validatorSource exposes the registry reads the pool depends on.
type validatorSource interface {
	IsValid(pubkey string, era uint64) (bool, error)
	Score(pubkey string) (uint64, bool, error)
	NetworkPAvg() (uint64, error)
}

// derivativeToken is the mint/burn capability for the yield derivative.
type derivativeToken interface {
	Mint(to string, amount *big.Int) error
	Burn(from string, amount *big.Int) error
	TotalSupply() (*big.Int, error)
}

// baseLedger moves the staked base asset between accounts.
type baseLedger interface {
	Transfer(from, to string, amount *big.Int) error
}

type stakingEvent struct {
	evt *types.Event
}

func (e stakingEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e stakingEvent) Event() *types.Event { return e.evt }

// Engine implements the liquid staking pool: stake-to-mint with a validator
// quality multiplier, delayed unbonding withdrawals, and harvest-driven
// exchange rate appreciation.
type Engine struct {
	state      engineState
	registry   validatorSource
	derivative derivativeToken
	base       baseLedger
	emitter    events.Emitter
	pauses     common.PauseView
}

// NewEngine creates a staking engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry wires the validator registry read surface.
func (e *Engine) SetRegistry(registry validatorSource) { e.registry = registry }

// SetDerivativeToken wires the derivative mint/burn capability.
func (e *Engine) SetDerivativeToken(token derivativeToken) { e.derivative = token }

// SetBaseLedger wires the base asset ledger.
func (e *Engine) SetBaseLedger(ledger baseLedger) { e.base = ledger }

// SetPauses wires the node pause view checked on every mutating call.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(stakingEvent{evt: evt})
}

// ModuleAddress returns the ledger account holding pooled funds.
func ModuleAddress() string { return moduleAddress }

// Initialize seeds the pool accounting root.
func (e *Engine) Initialize(owner, keeper string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	owner, keeper = normalize(owner), normalize(keeper)
	if owner == "" || keeper == "" {
		return ErrUnauthorized
	}
	return e.state.KVPut(keyPool, PoolState{
		Owner:                  owner,
		Keeper:                 keeper,
		TotalStaked:            big.NewInt(0),
		TotalPendingWithdrawal: big.NewInt(0),
		TotalDelegated:         big.NewInt(0),
		CumulativeRewards:      big.NewInt(0),
		NextRequestID:          1,
	})
}

// Stake locks amount base units behind the chosen validator and mints the
// derivative at the validator-quality multiplier.
func (e *Engine) Stake(caller, validator string, era uint64, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if e.registry == nil || e.derivative == nil || e.base == nil {
		return nil, errNilState
	}
	caller, validator = normalize(caller), normalize(validator)
	if caller == "" || validator == "" {
		return nil, ErrInvalidValidator
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if amount.Cmp(new(big.Int).SetUint64(MinStake)) < 0 ||
		amount.Cmp(new(big.Int).SetUint64(MaxSingleStake)) > 0 {
		return nil, ErrStakeOutOfRange
	}
	valid, err := e.registry.IsValid(validator, era)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, ErrInvalidValidator
	}
	score, known, err := e.registry.Score(validator)
	if err != nil {
		return nil, err
	}
	if !known || score == 0 {
		return nil, ErrInvalidValidator
	}
	pAvg, err := e.registry.NetworkPAvg()
	if err != nil {
		return nil, err
	}
	multiplier := mintMultiplier(score, pAvg)
	minted := new(big.Int).Mul(amount, new(big.Int).SetUint64(multiplier))
	minted.Quo(minted, new(big.Int).SetUint64(BasisPoints))

	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	if err := e.base.Transfer(caller, moduleAddress, amount); err != nil {
		return nil, err
	}
	if err := e.addAmount(stakeKey(caller, validator), amount); err != nil {
		return nil, err
	}
	if err := e.addAmount(validatorStakeKey(validator), amount); err != nil {
		return nil, err
	}
	pool.TotalStaked = new(big.Int).Add(pool.TotalStaked, amount)
	if err := e.state.KVPut(keyPool, pool); err != nil {
		return nil, err
	}
	if err := e.mergePendingDelegation(validator, amount, era); err != nil {
		return nil, err
	}
	if err := e.derivative.Mint(caller, minted); err != nil {
		return nil, err
	}
	e.emit(NewStakedEvent(caller, validator, amount, minted, multiplier))
	return minted, nil
}

// mintMultiplier maps a validator score against the network average into the
// dampened mint band. A zero network average yields par.
func mintMultiplier(score, pAvg uint64) uint64 {
	if pAvg == 0 {
		return BasisPoints
	}
	multiplier := score * BasisPoints / pAvg
	if multiplier < MinMultiplier {
		return MinMultiplier
	}
	if multiplier > MaxMultiplier {
		return MaxMultiplier
	}
	return multiplier
}

// Unstake burns derivative tokens and opens a withdrawal request that unlocks
// after the unbonding delay.
func (e *Engine) Unstake(caller, validator string, derivativeAmount *big.Int, era uint64) (*WithdrawalRequest, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if e.derivative == nil {
		return nil, errNilState
	}
	caller, validator = normalize(caller), normalize(validator)
	if derivativeAmount == nil || derivativeAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	rate, err := e.ExchangeRate()
	if err != nil {
		return nil, err
	}
	baseAmount := new(big.Int).Mul(derivativeAmount, rate)
	baseAmount.Quo(baseAmount, new(big.Int).SetUint64(Precision))
	if baseAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	userStake, err := e.loadAmount(stakeKey(caller, validator))
	if err != nil {
		return nil, err
	}
	if baseAmount.Cmp(userStake) > 0 {
		return nil, ErrInsufficientStake
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	// Single-unstake cap: at most 10% of the pool may leave in one call.
	drainCap := new(big.Int).Quo(pool.TotalStaked, big.NewInt(10))
	if baseAmount.Cmp(drainCap) > 0 {
		return nil, ErrUnstakeTooLarge
	}

	if err := e.derivative.Burn(caller, derivativeAmount); err != nil {
		return nil, err
	}
	if err := e.subAmount(stakeKey(caller, validator), baseAmount); err != nil {
		return nil, err
	}
	if err := e.subAmount(validatorStakeKey(validator), baseAmount); err != nil {
		return nil, err
	}
	pool.TotalStaked = new(big.Int).Sub(pool.TotalStaked, baseAmount)
	pool.TotalPendingWithdrawal = new(big.Int).Add(pool.TotalPendingWithdrawal, baseAmount)

	request := WithdrawalRequest{
		ID:         pool.NextRequestID,
		User:       caller,
		Validator:  validator,
		Amount:     baseAmount,
		RequestEra: era,
		UnlockEra:  era + UnbondingDelay,
		Status:     RequestStatusPending,
	}
	pool.NextRequestID++
	if err := e.state.KVPut(requestKey(request.ID), request); err != nil {
		return nil, err
	}
	if err := e.appendUserRequest(caller, request.ID); err != nil {
		return nil, err
	}
	if err := e.state.KVPut(keyPool, pool); err != nil {
		return nil, err
	}
	if err := e.mergePendingUndelegation(validator, baseAmount, era); err != nil {
		return nil, err
	}
	e.emit(NewUnstakeRequestedEvent(caller, validator, baseAmount, request.ID, request.UnlockEra))
	return &request, nil
}

// Claim pays out every matured withdrawal request of the caller.
func (e *Engine) Claim(caller string, era uint64) (*big.Int, []uint64, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, nil, err
	}
	if e.base == nil {
		return nil, nil, errNilState
	}
	caller = normalize(caller)
	var ids []uint64
	ok, err := e.state.KVGet(userRequestsKey(caller), &ids)
	if err != nil {
		return nil, nil, err
	}
	if !ok || len(ids) == 0 {
		return nil, nil, ErrNoPendingWithdrawals
	}

	total := big.NewInt(0)
	var matured []WithdrawalRequest
	var remaining []uint64
	for _, id := range ids {
		var request WithdrawalRequest
		found, err := e.state.KVGet(requestKey(id), &request)
		if err != nil {
			return nil, nil, err
		}
		if !found || request.Status != RequestStatusPending {
			continue
		}
		if request.UnlockEra > era {
			remaining = append(remaining, id)
			continue
		}
		total = total.Add(total, request.Amount)
		matured = append(matured, request)
	}
	if len(matured) == 0 {
		return nil, nil, ErrNoMaturedWithdrawals
	}

	pool, err := e.loadPool()
	if err != nil {
		return nil, nil, err
	}
	if pool.TotalPendingWithdrawal.Cmp(total) < 0 {
		return nil, nil, ErrInvalidAmount
	}
	// The payout runs before any state write: a failed transfer leaves every
	// request pending and claimable on a later call.
	if err := e.base.Transfer(moduleAddress, caller, total); err != nil {
		return nil, nil, err
	}

	claimed := make([]uint64, 0, len(matured))
	for _, request := range matured {
		request.Status = RequestStatusClaimed
		if err := e.state.KVPut(requestKey(request.ID), request); err != nil {
			return nil, nil, err
		}
		claimed = append(claimed, request.ID)
	}
	pool.TotalPendingWithdrawal = new(big.Int).Sub(pool.TotalPendingWithdrawal, total)
	if err := e.state.KVPut(keyPool, pool); err != nil {
		return nil, nil, err
	}
	if len(remaining) == 0 {
		if err := e.state.KVDelete(userRequestsKey(caller)); err != nil {
			return nil, nil, err
		}
	} else {
		if err := e.state.KVPut(userRequestsKey(caller), remaining); err != nil {
			return nil, nil, err
		}
	}
	e.emit(NewClaimedEvent(caller, total, len(claimed)))
	return total, claimed, nil
}

// HarvestRewards reconciles the backend-reported delegation total. A total
// at or below the expected balance advances the era without minting rewards,
// so a lagging backend report cannot revert the harvest loop.
func (e *Engine) HarvestRewards(caller string, newTotalDelegation *big.Int, era uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if normalize(caller) != pool.Keeper {
		return ErrUnauthorized
	}
	if era <= pool.LastHarvestEra {
		return ErrInvalidEra
	}
	if newTotalDelegation == nil || newTotalDelegation.Sign() < 0 {
		return ErrInvalidAmount
	}
	expected := new(big.Int).Add(pool.TotalStaked, pool.TotalPendingWithdrawal)
	if newTotalDelegation.Cmp(expected) <= 0 {
		pool.LastHarvestEra = era
		return e.state.KVPut(keyPool, pool)
	}
	rewards := new(big.Int).Sub(newTotalDelegation, expected)
	fee := new(big.Int).Mul(rewards, new(big.Int).SetUint64(ProtocolFeeBps))
	fee.Quo(fee, new(big.Int).SetUint64(BasisPoints))
	net := new(big.Int).Sub(rewards, fee)

	pool.TotalStaked = new(big.Int).Add(pool.TotalStaked, net)
	pool.CumulativeRewards = new(big.Int).Add(pool.CumulativeRewards, net)
	pool.LastHarvestEra = era
	if err := e.state.KVPut(keyPool, pool); err != nil {
		return err
	}
	rate, err := e.ExchangeRate()
	if err != nil {
		return err
	}
	e.emit(NewRewardsHarvestedEvent(rewards, fee, rate, era))
	return nil
}

// ExchangeRate returns base units per derivative unit at Precision scale. An
// empty supply is par by definition.
func (e *Engine) ExchangeRate() (*big.Int, error) {
	if e == nil || e.state == nil || e.derivative == nil {
		return nil, errNilState
	}
	supply, err := e.derivative.TotalSupply()
	if err != nil {
		return nil, err
	}
	if supply == nil || supply.Sign() == 0 {
		return new(big.Int).SetUint64(Precision), nil
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	rate := new(big.Int).Mul(pool.TotalStaked, new(big.Int).SetUint64(Precision))
	return rate.Quo(rate, supply), nil
}

// TotalStaked returns the pool's staked base balance.
func (e *Engine) TotalStaked() (*big.Int, error) {
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(pool.TotalStaked), nil
}

// StakeOf returns the caller's recorded stake on a validator.
func (e *Engine) StakeOf(user, validator string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadAmount(stakeKey(normalize(user), normalize(validator)))
}

// ValidatorStake returns the aggregate stake behind a validator.
func (e *Engine) ValidatorStake(validator string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadAmount(validatorStakeKey(normalize(validator)))
}

// Request returns a withdrawal request by id. The boolean reports existence.
func (e *Engine) Request(id uint64) (*WithdrawalRequest, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	var request WithdrawalRequest
	ok, err := e.state.KVGet(requestKey(id), &request)
	if err != nil || !ok {
		return nil, false, err
	}
	return &request, true, nil
}

// Stats assembles the pool read-model snapshot.
func (e *Engine) Stats() (*PoolStats, error) {
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	supply, err := e.derivative.TotalSupply()
	if err != nil {
		return nil, err
	}
	rate, err := e.ExchangeRate()
	if err != nil {
		return nil, err
	}
	return &PoolStats{
		TotalStaked:            pool.TotalStaked,
		TotalPendingWithdrawal: pool.TotalPendingWithdrawal,
		TotalDelegated:         pool.TotalDelegated,
		CumulativeRewards:      pool.CumulativeRewards,
		DerivativeSupply:       supply,
		ExchangeRate:           rate,
		LastHarvestEra:         pool.LastHarvestEra,
	}, nil
}

// SetKeeper rotates the keeper address. Owner only.
func (e *Engine) SetKeeper(caller, keeper string) error {
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if normalize(caller) != pool.Owner {
		return ErrUnauthorized
	}
	keeper = normalize(keeper)
	if keeper == "" {
		return ErrUnauthorized
	}
	pool.Keeper = keeper
	return e.state.KVPut(keyPool, pool)
}

func (e *Engine) loadPool() (*PoolState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var pool PoolState
	ok, err := e.state.KVGet(keyPool, &pool)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return &pool, nil
}

func (e *Engine) loadAmount(key []byte) (*big.Int, error) {
	var value big.Int
	ok, err := e.state.KVGet(key, &value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return &value, nil
}

func (e *Engine) addAmount(key []byte, delta *big.Int) error {
	current, err := e.loadAmount(key)
	if err != nil {
		return err
	}
	return e.state.KVPut(key, new(big.Int).Add(current, delta))
}

func (e *Engine) subAmount(key []byte, delta *big.Int) error {
	current, err := e.loadAmount(key)
	if err != nil {
		return err
	}
	if current.Cmp(delta) < 0 {
		return ErrInsufficientStake
	}
	return e.state.KVPut(key, new(big.Int).Sub(current, delta))
}

func (e *Engine) appendUserRequest(user string, id uint64) error {
	var ids []uint64
	if _, err := e.state.KVGet(userRequestsKey(user), &ids); err != nil {
		return err
	}
	ids = append(ids, id)
	return e.state.KVPut(userRequestsKey(user), ids)
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
