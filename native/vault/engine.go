package vault

import (
	"errors"
	"math"
	"math/big"
	"strings"

	"stayer/core/events"
	"stayer/core/types"
)

var (
	errNilState = errors.New("vault engine: state not configured")

	// ErrUnauthorized is returned when the caller is not the vault owner.
	ErrUnauthorized = errors.New("vault engine: unauthorized")
	// ErrNotInitialized signals that the vault was never seeded.
	ErrNotInitialized = errors.New("vault engine: not initialized")
	// ErrPaused blocks every position operation while the breaker is tripped.
	ErrPaused = errors.New("vault engine: paused")
	// ErrInvalidAmount rejects nil, zero or negative amounts.
	ErrInvalidAmount = errors.New("vault engine: invalid amount")
	// ErrInvalidParams rejects parameter sets outside the allowed bands.
	ErrInvalidParams = errors.New("vault engine: invalid parameters")
	// ErrPositionNotFound is returned for operations on unknown positions.
	ErrPositionNotFound = errors.New("vault engine: position not found")
	// ErrCollateralTooLow rejects deposits leaving a dust position.
	ErrCollateralTooLow = errors.New("vault engine: collateral below minimum")
	// ErrExceedsMaxDebt rejects borrows beyond the LTV limit.
	ErrExceedsMaxDebt = errors.New("vault engine: exceeds maximum debt")
	// ErrExceedsDebt rejects repayments or liquidation covers above the debt.
	ErrExceedsDebt = errors.New("vault engine: exceeds outstanding debt")
	// ErrInsufficientCollateral rejects withdrawals or seizures beyond the
	// position's collateral.
	ErrInsufficientCollateral = errors.New("vault engine: insufficient collateral")
	// ErrUnhealthyPosition rejects withdrawals that would leave the position
	// below the liquidation threshold.
	ErrUnhealthyPosition = errors.New("vault engine: position would become unhealthy")
	// ErrPositionHealthy rejects liquidation of positions at or above par health.
	ErrPositionHealthy = errors.New("vault engine: position is healthy")
)

const (
	// DefaultLTV, DefaultLiqThreshold and DefaultLiqPenalty are bps-scaled.
	DefaultLTV          = uint64(5000)
	DefaultLiqThreshold = uint64(11000)
	DefaultLiqPenalty   = uint64(1000)
	DefaultStabilityFee = uint64(200)
	// DefaultMinCollateral is the dust floor in derivative-token units.
	DefaultMinCollateral = uint64(100_000_000_000)

	// Precision is the fixed-point scale shared with the oracle and the pool.
	Precision = uint64(1_000_000_000)
	// BasisPoints is the denominator for bps ratios.
	BasisPoints = uint64(10000)
	// HealthFloor is par health: below this a position is liquidatable.
	HealthFloor = uint64(10000)

	// ModuleName identifies the vault for pause guards.
	ModuleName = "vault"
	// moduleAddress escrows collateral on the derivative ledger.
	moduleAddress = "module/vault"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// priceSource is the oracle read surface.
type priceSource interface {
	GetPrice() (*big.Int, error)
}

// rateSource is the staking pool's exchange rate read surface.
type rateSource interface {
	ExchangeRate() (*big.Int, error)
}

// collateralToken moves derivative-token collateral between accounts.
type collateralToken interface {
	Transfer(from, to string, amount *big.Int) error
}

// debtToken is the stablecoin mint/burn capability.
type debtToken interface {
	Mint(to string, amount *big.Int) error
	Burn(from string, amount *big.Int) error
}

type vaultEvent struct {
	evt *types.Event
}

func (e vaultEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e vaultEvent) Event() *types.Event { return e.evt }

// Engine implements the collateralized debt positions: derivative-token
// collateral valued through the oracle price and the pool exchange rate, with
// LTV-bounded borrowing and threshold-driven liquidation.
type Engine struct {
	state      engineState
	oracle     priceSource
	pool       rateSource
	collateral collateralToken
	debt       debtToken
	emitter    events.Emitter
}

// NewEngine creates a vault engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOracleSource wires the price oracle read surface.
func (e *Engine) SetOracleSource(oracle priceSource) { e.oracle = oracle }

// SetRateSource wires the staking pool exchange rate read surface.
func (e *Engine) SetRateSource(pool rateSource) { e.pool = pool }

// SetCollateralToken wires the derivative-token ledger.
func (e *Engine) SetCollateralToken(token collateralToken) { e.collateral = token }

// SetDebtToken wires the stablecoin mint/burn capability.
func (e *Engine) SetDebtToken(token debtToken) { e.debt = token }

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
	e.emitter.Emit(vaultEvent{evt: evt})
}

// ModuleAddress returns the ledger account escrowing collateral.
func ModuleAddress() string { return moduleAddress }

// Initialize seeds the vault with its owner and default risk parameters.
func (e *Engine) Initialize(owner string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	owner = normalize(owner)
	if owner == "" {
		return ErrUnauthorized
	}
	return e.state.KVPut(keyVault, VaultState{
		Owner:           owner,
		Params:          DefaultParams(),
		TotalCollateral: big.NewInt(0),
		TotalDebt:       big.NewInt(0),
	})
}

// Deposit pulls derivative-token collateral from the caller into the vault.
// The resulting collateral must clear the dust floor and the entry price is
// re-averaged against the current oracle price.
func (e *Engine) Deposit(caller string, amount *big.Int) (*Position, error) {
	vault, err := e.loadUnpaused()
	if err != nil {
		return nil, err
	}
	if e.collateral == nil || e.oracle == nil {
		return nil, errNilState
	}
	caller = normalize(caller)
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	price, err := e.oracle.GetPrice()
	if err != nil {
		return nil, err
	}
	position, found, err := e.position(caller)
	if err != nil {
		return nil, err
	}
	if !found {
		position = &Position{
			Owner:      caller,
			Collateral: big.NewInt(0),
			Debt:       big.NewInt(0),
			EntryPrice: big.NewInt(0),
		}
	}
	newCollateral := new(big.Int).Add(position.Collateral, amount)
	if newCollateral.Cmp(vault.Params.MinCollateral) < 0 {
		return nil, ErrCollateralTooLow
	}
	if err := e.collateral.Transfer(caller, moduleAddress, amount); err != nil {
		return nil, err
	}
	if position.Collateral.Sign() == 0 {
		position.EntryPrice = new(big.Int).Set(price)
	} else {
		// Collateral-weighted average of the old entry and the current price.
		weighted := new(big.Int).Mul(position.EntryPrice, position.Collateral)
		weighted.Add(weighted, new(big.Int).Mul(price, amount))
		position.EntryPrice = weighted.Quo(weighted, newCollateral)
	}
	position.Collateral = newCollateral
	if err := e.state.KVPut(positionKey(caller), position); err != nil {
		return nil, err
	}
	vault.TotalCollateral = new(big.Int).Add(vault.TotalCollateral, amount)
	if err := e.state.KVPut(keyVault, vault); err != nil {
		return nil, err
	}
	e.emit(NewDepositEvent(caller, amount, position.Collateral, position.EntryPrice))
	return position, nil
}

// Borrow mints stablecoin debt against the caller's collateral up to the LTV
// limit.
func (e *Engine) Borrow(caller string, amount *big.Int) (*Position, error) {
	vault, err := e.loadUnpaused()
	if err != nil {
		return nil, err
	}
	if e.debt == nil {
		return nil, errNilState
	}
	caller = normalize(caller)
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	position, found, err := e.position(caller)
	if err != nil {
		return nil, err
	}
	if !found || position.Collateral.Sign() == 0 {
		return nil, ErrPositionNotFound
	}
	collateralUSD, err := e.collateralUSD(position.Collateral)
	if err != nil {
		return nil, err
	}
	maxDebt := new(big.Int).Mul(collateralUSD, new(big.Int).SetUint64(vault.Params.LTV))
	maxDebt.Quo(maxDebt, new(big.Int).SetUint64(BasisPoints))
	newDebt := new(big.Int).Add(position.Debt, amount)
	if newDebt.Cmp(maxDebt) > 0 {
		return nil, ErrExceedsMaxDebt
	}
	if err := e.debt.Mint(caller, amount); err != nil {
		return nil, err
	}
	position.Debt = newDebt
	if err := e.state.KVPut(positionKey(caller), position); err != nil {
		return nil, err
	}
	vault.TotalDebt = new(big.Int).Add(vault.TotalDebt, amount)
	if err := e.state.KVPut(keyVault, vault); err != nil {
		return nil, err
	}
	e.emit(NewBorrowEvent(caller, amount, position.Debt))
	return position, nil
}

// Repay burns stablecoin from the caller against their outstanding debt.
func (e *Engine) Repay(caller string, amount *big.Int) (*Position, error) {
	vault, err := e.loadUnpaused()
	if err != nil {
		return nil, err
	}
	if e.debt == nil {
		return nil, errNilState
	}
	caller = normalize(caller)
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	position, found, err := e.position(caller)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrPositionNotFound
	}
	if amount.Cmp(position.Debt) > 0 {
		return nil, ErrExceedsDebt
	}
	if err := e.debt.Burn(caller, amount); err != nil {
		return nil, err
	}
	position.Debt = new(big.Int).Sub(position.Debt, amount)
	if err := e.state.KVPut(positionKey(caller), position); err != nil {
		return nil, err
	}
	vault.TotalDebt = new(big.Int).Sub(vault.TotalDebt, amount)
	if err := e.state.KVPut(keyVault, vault); err != nil {
		return nil, err
	}
	e.emit(NewRepayEvent(caller, amount, position.Debt))
	return position, nil
}

// Withdraw returns collateral to the caller. With outstanding debt the
// post-withdrawal health factor must stay at or above par.
func (e *Engine) Withdraw(caller string, amount *big.Int) (*Position, error) {
	vault, err := e.loadUnpaused()
	if err != nil {
		return nil, err
	}
	if e.collateral == nil {
		return nil, errNilState
	}
	caller = normalize(caller)
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	position, found, err := e.position(caller)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrPositionNotFound
	}
	if amount.Cmp(position.Collateral) > 0 {
		return nil, ErrInsufficientCollateral
	}
	remaining := new(big.Int).Sub(position.Collateral, amount)
	if position.Debt.Sign() > 0 {
		health, err := e.healthOf(remaining, position.Debt, vault.Params.LiqThreshold)
		if err != nil {
			return nil, err
		}
		if health < HealthFloor {
			return nil, ErrUnhealthyPosition
		}
	}
	if err := e.collateral.Transfer(moduleAddress, caller, amount); err != nil {
		return nil, err
	}
	position.Collateral = remaining
	if err := e.state.KVPut(positionKey(caller), position); err != nil {
		return nil, err
	}
	vault.TotalCollateral = new(big.Int).Sub(vault.TotalCollateral, amount)
	if err := e.state.KVPut(keyVault, vault); err != nil {
		return nil, err
	}
	e.emit(NewWithdrawEvent(caller, amount, position.Collateral))
	return position, nil
}

// Liquidate lets anyone repay part of an unhealthy position's debt in exchange
// for a penalty-boosted slice of its collateral. Liquidation is always
// partial-capable: only the covered fraction moves.
func (e *Engine) Liquidate(liquidator, user string, debtToCover *big.Int) (*big.Int, error) {
	vault, err := e.loadUnpaused()
	if err != nil {
		return nil, err
	}
	if e.debt == nil || e.collateral == nil {
		return nil, errNilState
	}
	liquidator, user = normalize(liquidator), normalize(user)
	if debtToCover == nil || debtToCover.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	position, found, err := e.position(user)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrPositionNotFound
	}
	health, err := e.healthOf(position.Collateral, position.Debt, vault.Params.LiqThreshold)
	if err != nil {
		return nil, err
	}
	if health >= HealthFloor {
		return nil, ErrPositionHealthy
	}
	if debtToCover.Cmp(position.Debt) > 0 {
		return nil, ErrExceedsDebt
	}

	// Covered debt plus the penalty, in USD, converted back into
	// derivative-token units through the oracle price and the exchange rate.
	usd := new(big.Int).Mul(debtToCover, new(big.Int).SetUint64(BasisPoints+vault.Params.LiqPenalty))
	usd.Quo(usd, new(big.Int).SetUint64(BasisPoints))
	seized, err := e.usdToCollateral(usd)
	if err != nil {
		return nil, err
	}
	if seized.Cmp(position.Collateral) > 0 {
		return nil, ErrInsufficientCollateral
	}

	if err := e.debt.Burn(liquidator, debtToCover); err != nil {
		return nil, err
	}
	if err := e.collateral.Transfer(moduleAddress, liquidator, seized); err != nil {
		return nil, err
	}
	position.Debt = new(big.Int).Sub(position.Debt, debtToCover)
	position.Collateral = new(big.Int).Sub(position.Collateral, seized)
	if err := e.state.KVPut(positionKey(user), position); err != nil {
		return nil, err
	}
	vault.TotalDebt = new(big.Int).Sub(vault.TotalDebt, debtToCover)
	vault.TotalCollateral = new(big.Int).Sub(vault.TotalCollateral, seized)
	if err := e.state.KVPut(keyVault, vault); err != nil {
		return nil, err
	}
	e.emit(NewLiquidateEvent(liquidator, user, debtToCover, seized))
	return seized, nil
}

// HealthFactor returns the position's bps-scaled health. Debt-free positions
// report the maximum value and are never liquidatable.
func (e *Engine) HealthFactor(user string) (uint64, error) {
	vault, err := e.loadVault()
	if err != nil {
		return 0, err
	}
	position, found, err := e.position(normalize(user))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrPositionNotFound
	}
	return e.healthOf(position.Collateral, position.Debt, vault.Params.LiqThreshold)
}

// IsLiquidatable reports whether the position's health is below par.
func (e *Engine) IsLiquidatable(user string) (bool, error) {
	health, err := e.HealthFactor(user)
	if err != nil {
		return false, err
	}
	return health < HealthFloor, nil
}

// GetPosition returns a user's position.
func (e *Engine) GetPosition(user string) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	position, found, err := e.position(normalize(user))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrPositionNotFound
	}
	return position, nil
}

// Stats assembles the vault read-model snapshot.
func (e *Engine) Stats() (*VaultStats, error) {
	vault, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	return &VaultStats{
		TotalCollateral: vault.TotalCollateral,
		TotalDebt:       vault.TotalDebt,
		Paused:          vault.Paused,
		OracleAddr:      vault.OracleAddr,
	}, nil
}

// GetParams returns the current risk parameters.
func (e *Engine) GetParams() (Params, error) {
	vault, err := e.loadVault()
	if err != nil {
		return Params{}, err
	}
	return vault.Params, nil
}

// TotalDebt returns the outstanding stablecoin debt across all positions.
func (e *Engine) TotalDebt() (*big.Int, error) {
	vault, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(vault.TotalDebt), nil
}

// SetParams replaces the risk parameters. Owner only. LTV must sit in
// (0, 10000], the liquidation threshold strictly above the LTV, and the
// penalty at or below 5000 bps.
func (e *Engine) SetParams(caller string, params Params) error {
	vault, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if params.LTV == 0 || params.LTV > BasisPoints {
		return ErrInvalidParams
	}
	if params.LiqThreshold <= params.LTV {
		return ErrInvalidParams
	}
	if params.LiqPenalty > 5000 {
		return ErrInvalidParams
	}
	if params.MinCollateral == nil || params.MinCollateral.Sign() < 0 {
		return ErrInvalidParams
	}
	vault.Params = params
	if err := e.state.KVPut(keyVault, vault); err != nil {
		return err
	}
	e.emit(NewParamsUpdatedEvent(params))
	return nil
}

// SetOracle records the oracle identity the vault is wired against. Owner only.
func (e *Engine) SetOracle(caller, addr string) error {
	vault, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	vault.OracleAddr = strings.TrimSpace(addr)
	return e.state.KVPut(keyVault, vault)
}

// Pause trips the vault-wide circuit breaker. Owner only.
func (e *Engine) Pause(caller string) error {
	return e.setPaused(caller, true)
}

// Unpause releases the circuit breaker. Owner only.
func (e *Engine) Unpause(caller string) error {
	return e.setPaused(caller, false)
}

func (e *Engine) setPaused(caller string, paused bool) error {
	vault, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	vault.Paused = paused
	if err := e.state.KVPut(keyVault, vault); err != nil {
		return err
	}
	e.emit(NewPauseToggledEvent(paused))
	return nil
}

// collateralUSD converts derivative-token units into USD: first through the
// pool exchange rate into base units, then through the oracle price.
func (e *Engine) collateralUSD(collateral *big.Int) (*big.Int, error) {
	if e.oracle == nil || e.pool == nil {
		return nil, errNilState
	}
	rate, err := e.pool.ExchangeRate()
	if err != nil {
		return nil, err
	}
	price, err := e.oracle.GetPrice()
	if err != nil {
		return nil, err
	}
	usd := new(big.Int).Mul(collateral, rate)
	usd.Quo(usd, new(big.Int).SetUint64(Precision))
	usd.Mul(usd, price)
	usd.Quo(usd, new(big.Int).SetUint64(Precision))
	return usd, nil
}

// usdToCollateral is the inverse conversion used by liquidation.
func (e *Engine) usdToCollateral(usd *big.Int) (*big.Int, error) {
	if e.oracle == nil || e.pool == nil {
		return nil, errNilState
	}
	price, err := e.oracle.GetPrice()
	if err != nil {
		return nil, err
	}
	rate, err := e.pool.ExchangeRate()
	if err != nil {
		return nil, err
	}
	if price.Sign() == 0 || rate.Sign() == 0 {
		return nil, ErrInvalidAmount
	}
	units := new(big.Int).Mul(usd, new(big.Int).SetUint64(Precision))
	units.Quo(units, price)
	units.Mul(units, new(big.Int).SetUint64(Precision))
	units.Quo(units, rate)
	return units, nil
}

// healthOf computes collateral_usd * liq_threshold * 10000 / (debt * 10000).
// The factor-of-10000 pair cancels mathematically but the literal divide order
// is kept for compatibility with existing downstream expectations.
func (e *Engine) healthOf(collateral, debt *big.Int, liqThreshold uint64) (uint64, error) {
	if debt == nil || debt.Sign() == 0 {
		return math.MaxUint64, nil
	}
	collateralUSD, err := e.collateralUSD(collateral)
	if err != nil {
		return 0, err
	}
	numerator := new(big.Int).Mul(collateralUSD, new(big.Int).SetUint64(liqThreshold))
	numerator.Mul(numerator, new(big.Int).SetUint64(BasisPoints))
	denominator := new(big.Int).Mul(debt, new(big.Int).SetUint64(BasisPoints))
	health := numerator.Quo(numerator, denominator)
	if !health.IsUint64() {
		return math.MaxUint64, nil
	}
	return health.Uint64(), nil
}

func (e *Engine) position(user string) (*Position, bool, error) {
	var position Position
	ok, err := e.state.KVGet(positionKey(user), &position)
	if err != nil || !ok {
		return nil, false, err
	}
	return &position, true, nil
}

func (e *Engine) loadVault() (*VaultState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var vault VaultState
	ok, err := e.state.KVGet(keyVault, &vault)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return &vault, nil
}

func (e *Engine) loadUnpaused() (*VaultState, error) {
	vault, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	if vault.Paused {
		return nil, ErrPaused
	}
	return vault, nil
}

func (e *Engine) requireOwner(caller string) (*VaultState, error) {
	vault, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	if normalize(caller) != vault.Owner {
		return nil, ErrUnauthorized
	}
	return vault, nil
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
