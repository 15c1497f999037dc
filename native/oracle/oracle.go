package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"stayer/core/events"
	"stayer/core/types"
)

var (
	errNilState = errors.New("oracle engine: state not configured")

	// ErrUnauthorized is returned when the caller lacks the updater or owner role.
	ErrUnauthorized = errors.New("oracle engine: unauthorized")
	// ErrPriceOutOfRange rejects updates outside the configured sanity bounds.
	ErrPriceOutOfRange = errors.New("oracle engine: price out of acceptable range")
	// ErrInvalidConfig signals a missing or malformed oracle configuration.
	ErrInvalidConfig = errors.New("oracle engine: invalid configuration")
	// ErrFeedUnavailable is returned when the external feed reports no data.
	ErrFeedUnavailable = errors.New("oracle engine: price feed unavailable")
	// ErrPriceNotInitialized signals that no price has ever been stored.
	ErrPriceNotInitialized = errors.New("oracle engine: price not initialized")
	// ErrFallbackNotSet is returned when fallback mode is active without a
	// fallback price configured.
	ErrFallbackNotSet = errors.New("oracle engine: fallback price not set")
	// ErrStalePriceAndNoFallback is the circuit-breaker error: the stored
	// price exceeded max age and no fallback exists to substitute it.
	ErrStalePriceAndNoFallback = errors.New("oracle engine: stale price and no fallback configured")
)

const (
	// MaxAgeDefault bounds price staleness to two hours of wall time.
	MaxAgeDefault = uint64(7200)
	// MinAcceptablePrice and MaxAcceptablePrice bound manual and feed updates.
	MinAcceptablePrice = uint64(10)
	MaxAcceptablePrice = uint64(1_000_000_000)
)

var (
	keyPriceData = []byte("oracle/price")
	keyConfig    = []byte("oracle/config")
)

func updaterKey(addr string) []byte {
	return []byte(fmt.Sprintf("oracle/updater/%s", addr))
}

// PriceData is the single trusted price record, replaced wholesale on every
// update with a strictly increasing round id.
type PriceData struct {
	Price     *big.Int `json:"price"`
	UpdatedAt uint64   `json:"updatedAt"`
	RoundID   uint64   `json:"roundId"`
}

type config struct {
	Owner         string   `json:"owner"`
	MaxAge        uint64   `json:"maxAge"`
	FallbackPrice *big.Int `json:"fallbackPrice,omitempty"`
	UseFallback   bool     `json:"useFallback"`
	FeedAddress   string   `json:"feedAddress,omitempty"`
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// FeedSource pulls a TWAP price from an external feed. The boolean reports
// whether the feed had data for the requested id.
type FeedSource interface {
	TWAPPrice(feedID string) (*big.Int, bool, error)
}

type oracleEvent struct {
	evt *types.Event
}

func (e oracleEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e oracleEvent) Event() *types.Event { return e.evt }

// Engine maintains the trusted price with staleness detection and an
// owner-controlled fallback override.
type Engine struct {
	state   engineState
	emitter events.Emitter
	feed    FeedSource
	nowFn   func() uint64
}

// NewEngine creates an oracle engine with a no-op emitter and wall-clock time.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetFeed configures the external TWAP feed used by FetchFromFeed.
func (e *Engine) SetFeed(feed FeedSource) { e.feed = feed }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(oracleEvent{evt: evt})
}

// Initialize seeds the price record and default configuration. The owner
// doubles as the first authorized updater and the initial price seeds the
// fallback so the circuit breaker has a floor from day one.
func (e *Engine) Initialize(owner string, initialPrice *big.Int, feedAddress string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	owner = normalizeAddress(owner)
	if owner == "" || initialPrice == nil || initialPrice.Sign() <= 0 {
		return ErrInvalidConfig
	}
	data := PriceData{
		Price:     new(big.Int).Set(initialPrice),
		UpdatedAt: e.nowFn(),
		RoundID:   1,
	}
	if err := e.state.KVPut(keyPriceData, data); err != nil {
		return err
	}
	cfg := config{
		Owner:         owner,
		MaxAge:        MaxAgeDefault,
		FallbackPrice: new(big.Int).Set(initialPrice),
		UseFallback:   false,
		FeedAddress:   strings.TrimSpace(feedAddress),
	}
	if err := e.state.KVPut(keyConfig, cfg); err != nil {
		return err
	}
	return e.state.KVPut(updaterKey(owner), true)
}

// GetPrice returns the trusted price. When fallback mode is enabled the
// fallback price is returned unconditionally; when the stored price exceeds
// max age the fallback substitutes it, and its absence is a hard failure
// rather than silent reuse of stale data.
func (e *Engine) GetPrice() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.UseFallback {
		if cfg.FallbackPrice == nil {
			return nil, ErrFallbackNotSet
		}
		return new(big.Int).Set(cfg.FallbackPrice), nil
	}
	data, err := e.loadPriceData()
	if err != nil {
		return nil, err
	}
	now := e.nowFn()
	if now > data.UpdatedAt && now-data.UpdatedAt > cfg.MaxAge {
		if cfg.FallbackPrice == nil {
			return nil, ErrStalePriceAndNoFallback
		}
		return new(big.Int).Set(cfg.FallbackPrice), nil
	}
	return new(big.Int).Set(data.Price), nil
}

// LatestPriceData returns the full price record. In fallback mode the record
// reports round id 0 and the current timestamp so consumers can tell an
// override apart from a feed round.
func (e *Engine) LatestPriceData() (*PriceData, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.UseFallback {
		if cfg.FallbackPrice == nil {
			return nil, ErrFallbackNotSet
		}
		return &PriceData{
			Price:     new(big.Int).Set(cfg.FallbackPrice),
			UpdatedAt: e.nowFn(),
			RoundID:   0,
		}, nil
	}
	return e.loadPriceData()
}

// UpdatePrice stores a new price on behalf of an authorized updater.
func (e *Engine) UpdatePrice(caller string, newPrice *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireUpdater(caller); err != nil {
		return err
	}
	return e.updatePriceInternal(newPrice)
}

// FetchFromFeed pulls the latest TWAP price from the configured external feed
// and applies the standard update path.
func (e *Engine) FetchFromFeed(feedID string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.feed == nil {
		return ErrInvalidConfig
	}
	price, ok, err := e.feed.TWAPPrice(feedID)
	if err != nil {
		return fmt.Errorf("oracle engine: feed %s: %w", feedID, err)
	}
	if !ok || price == nil {
		return ErrFeedUnavailable
	}
	return e.updatePriceInternal(price)
}

func (e *Engine) updatePriceInternal(newPrice *big.Int) error {
	if newPrice == nil ||
		newPrice.Cmp(new(big.Int).SetUint64(MinAcceptablePrice)) < 0 ||
		newPrice.Cmp(new(big.Int).SetUint64(MaxAcceptablePrice)) > 0 {
		return ErrPriceOutOfRange
	}
	current, err := e.loadPriceData()
	if err != nil {
		return err
	}
	now := e.nowFn()
	next := PriceData{
		Price:     new(big.Int).Set(newPrice),
		UpdatedAt: now,
		RoundID:   current.RoundID + 1,
	}
	if err := e.state.KVPut(keyPriceData, next); err != nil {
		return err
	}
	e.emit(NewPriceUpdatedEvent(next.Price, next.RoundID, now))
	return nil
}

// IsPriceStale reports whether the stored price exceeds max age. Fallback mode
// is never stale since the override is served unconditionally.
func (e *Engine) IsPriceStale() (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return false, err
	}
	if cfg.UseFallback {
		return false, nil
	}
	data, err := e.loadPriceData()
	if err != nil {
		return false, err
	}
	now := e.nowFn()
	if now <= data.UpdatedAt {
		return false, nil
	}
	return now-data.UpdatedAt > cfg.MaxAge, nil
}

// PriceAge returns the age of the stored price in seconds.
func (e *Engine) PriceAge() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	data, err := e.loadPriceData()
	if err != nil {
		return 0, err
	}
	now := e.nowFn()
	if now <= data.UpdatedAt {
		return 0, nil
	}
	return now - data.UpdatedAt, nil
}

// MaxAge returns the configured staleness window in seconds.
func (e *Engine) MaxAge() (uint64, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return 0, err
	}
	return cfg.MaxAge, nil
}

// SetMaxAge updates the staleness window. Owner only; zero is rejected since
// it would mark every price stale immediately.
func (e *Engine) SetMaxAge(caller string, maxAge uint64) error {
	cfg, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if maxAge == 0 {
		return ErrInvalidConfig
	}
	cfg.MaxAge = maxAge
	if err := e.state.KVPut(keyConfig, cfg); err != nil {
		return err
	}
	e.emit(NewConfigUpdatedEvent("max_age", fmt.Sprintf("%d", maxAge)))
	return nil
}

// SetFallbackPrice stores the owner-controlled emergency price.
func (e *Engine) SetFallbackPrice(caller string, price *big.Int) error {
	cfg, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidConfig
	}
	cfg.FallbackPrice = new(big.Int).Set(price)
	if err := e.state.KVPut(keyConfig, cfg); err != nil {
		return err
	}
	e.emit(NewConfigUpdatedEvent("fallback_price", price.String()))
	return nil
}

// SetUseFallback toggles fallback mode.
func (e *Engine) SetUseFallback(caller string, enabled bool) error {
	cfg, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	cfg.UseFallback = enabled
	if err := e.state.KVPut(keyConfig, cfg); err != nil {
		return err
	}
	e.emit(NewConfigUpdatedEvent("use_fallback", fmt.Sprintf("%t", enabled)))
	return nil
}

// SetFeedAddress records the external feed identifier used for pulls.
func (e *Engine) SetFeedAddress(caller, address string) error {
	cfg, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	cfg.FeedAddress = strings.TrimSpace(address)
	if err := e.state.KVPut(keyConfig, cfg); err != nil {
		return err
	}
	e.emit(NewConfigUpdatedEvent("feed_address", cfg.FeedAddress))
	return nil
}

// AddUpdater authorizes an address for manual price pushes.
func (e *Engine) AddUpdater(caller, updater string) error {
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	updater = normalizeAddress(updater)
	if updater == "" {
		return ErrInvalidConfig
	}
	return e.state.KVPut(updaterKey(updater), true)
}

// RemoveUpdater revokes an updater authorization.
func (e *Engine) RemoveUpdater(caller, updater string) error {
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	updater = normalizeAddress(updater)
	if updater == "" {
		return ErrInvalidConfig
	}
	return e.state.KVPut(updaterKey(updater), false)
}

func (e *Engine) loadPriceData() (*PriceData, error) {
	var data PriceData
	ok, err := e.state.KVGet(keyPriceData, &data)
	if err != nil {
		return nil, err
	}
	if !ok || data.Price == nil {
		return nil, ErrPriceNotInitialized
	}
	return &data, nil
}

func (e *Engine) loadConfig() (*config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var cfg config
	ok, err := e.state.KVGet(keyConfig, &cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidConfig
	}
	return &cfg, nil
}

func (e *Engine) requireOwner(caller string) (*config, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if normalizeAddress(caller) != cfg.Owner {
		return nil, ErrUnauthorized
	}
	return cfg, nil
}

func (e *Engine) requireUpdater(caller string) error {
	caller = normalizeAddress(caller)
	if caller == "" {
		return ErrUnauthorized
	}
	var allowed bool
	ok, err := e.state.KVGet(updaterKey(caller), &allowed)
	if err != nil {
		return err
	}
	if !ok || !allowed {
		return ErrUnauthorized
	}
	return nil
}

func normalizeAddress(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
