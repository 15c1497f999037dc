package oracle

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"stayer/core/events"
)

type mockState struct {
	data map[string][]byte
}

func newMockState() *mockState {
	return &mockState{data: make(map[string][]byte)}
}

func (m *mockState) KVGet(key []byte, out interface{}) (bool, error) {
	raw, ok := m.data[string(key)]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *mockState) KVPut(key []byte, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[string(key)] = raw
	return nil
}

func newTestEngine(t *testing.T, now uint64) (*Engine, *mockState) {
	t.Helper()
	engine := NewEngine()
	state := newMockState()
	engine.SetState(state)
	engine.SetNowFunc(func() uint64 { return now })
	if err := engine.Initialize("OWNER", big.NewInt(2_000_000_000), "feed-main"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return engine, state
}

func TestInitializeSeedsPriceAndFallback(t *testing.T) {
	engine, _ := newTestEngine(t, 1000)
	data, err := engine.LatestPriceData()
	if err != nil {
		t.Fatalf("latest price data: %v", err)
	}
	if data.RoundID != 1 {
		t.Fatalf("expected round 1, got %d", data.RoundID)
	}
	if data.Price.Cmp(big.NewInt(2_000_000_000)) != 0 {
		t.Fatalf("unexpected initial price %s", data.Price)
	}
	price, err := engine.GetPrice()
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if price.Cmp(big.NewInt(2_000_000_000)) != 0 {
		t.Fatalf("unexpected price %s", price)
	}
}

func TestUpdatePriceIncrementsRound(t *testing.T) {
	engine, _ := newTestEngine(t, 1000)
	if err := engine.UpdatePrice("owner", big.NewInt(2_100_000_000)); err != nil {
		t.Fatalf("update price: %v", err)
	}
	data, err := engine.LatestPriceData()
	if err != nil {
		t.Fatalf("latest price data: %v", err)
	}
	if data.RoundID != 2 {
		t.Fatalf("expected round 2, got %d", data.RoundID)
	}
	if data.Price.Cmp(big.NewInt(2_100_000_000)) != 0 {
		t.Fatalf("unexpected price %s", data.Price)
	}
}

func TestUpdatePriceRejectsUnauthorized(t *testing.T) {
	engine, _ := newTestEngine(t, 1000)
	err := engine.UpdatePrice("mallory", big.NewInt(2_100_000_000))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestUpdatePriceRejectsOutOfRange(t *testing.T) {
	engine, _ := newTestEngine(t, 1000)
	if err := engine.UpdatePrice("owner", big.NewInt(9)); !errors.Is(err, ErrPriceOutOfRange) {
		t.Fatalf("expected ErrPriceOutOfRange for low price, got %v", err)
	}
	tooHigh := new(big.Int).SetUint64(MaxAcceptablePrice + 1)
	if err := engine.UpdatePrice("owner", tooHigh); !errors.Is(err, ErrPriceOutOfRange) {
		t.Fatalf("expected ErrPriceOutOfRange for high price, got %v", err)
	}
	// Boundary values are accepted.
	if err := engine.UpdatePrice("owner", new(big.Int).SetUint64(MinAcceptablePrice)); err != nil {
		t.Fatalf("min boundary: %v", err)
	}
	if err := engine.UpdatePrice("owner", new(big.Int).SetUint64(MaxAcceptablePrice)); err != nil {
		t.Fatalf("max boundary: %v", err)
	}
}

func TestStalePriceFallsBackToFallback(t *testing.T) {
	engine, _ := newTestEngine(t, 1000)
	if err := engine.SetFallbackPrice("owner", big.NewInt(1_500_000_000)); err != nil {
		t.Fatalf("set fallback: %v", err)
	}
	engine.SetNowFunc(func() uint64 { return 1000 + MaxAgeDefault + 1 })
	stale, err := engine.IsPriceStale()
	if err != nil {
		t.Fatalf("is stale: %v", err)
	}
	if !stale {
		t.Fatalf("expected stale price")
	}
	price, err := engine.GetPrice()
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if price.Cmp(big.NewInt(1_500_000_000)) != 0 {
		t.Fatalf("expected fallback price, got %s", price)
	}
}

func TestStaleWindowBoundaryIsFresh(t *testing.T) {
	engine, _ := newTestEngine(t, 1000)
	engine.SetNowFunc(func() uint64 { return 1000 + MaxAgeDefault })
	stale, err := engine.IsPriceStale()
	if err != nil {
		t.Fatalf("is stale: %v", err)
	}
	if stale {
		t.Fatalf("price exactly at max age must still be fresh")
	}
}

func TestFallbackModeReportsRoundZero(t *testing.T) {
	engine, _ := newTestEngine(t, 1000)
	if err := engine.SetFallbackPrice("owner", big.NewInt(1_200_000_000)); err != nil {
		t.Fatalf("set fallback: %v", err)
	}
	if err := engine.SetUseFallback("owner", true); err != nil {
		t.Fatalf("enable fallback: %v", err)
	}
	data, err := engine.LatestPriceData()
	if err != nil {
		t.Fatalf("latest price data: %v", err)
	}
	if data.RoundID != 0 {
		t.Fatalf("fallback mode must report round 0, got %d", data.RoundID)
	}
	if data.Price.Cmp(big.NewInt(1_200_000_000)) != 0 {
		t.Fatalf("unexpected fallback price %s", data.Price)
	}
	stale, err := engine.IsPriceStale()
	if err != nil {
		t.Fatalf("is stale: %v", err)
	}
	if stale {
		t.Fatalf("fallback mode is never stale")
	}
}

func TestUpdaterLifecycle(t *testing.T) {
	engine, _ := newTestEngine(t, 1000)
	if err := engine.AddUpdater("owner", "keeper"); err != nil {
		t.Fatalf("add updater: %v", err)
	}
	if err := engine.UpdatePrice("Keeper", big.NewInt(2_050_000_000)); err != nil {
		t.Fatalf("keeper update: %v", err)
	}
	if err := engine.RemoveUpdater("owner", "keeper"); err != nil {
		t.Fatalf("remove updater: %v", err)
	}
	if err := engine.UpdatePrice("keeper", big.NewInt(2_060_000_000)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after removal, got %v", err)
	}
	if err := engine.AddUpdater("keeper", "other"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("only the owner may manage updaters, got %v", err)
	}
}

func TestSetMaxAgeRejectsZero(t *testing.T) {
	engine, _ := newTestEngine(t, 1000)
	if err := engine.SetMaxAge("owner", 0); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if err := engine.SetMaxAge("owner", 600); err != nil {
		t.Fatalf("set max age: %v", err)
	}
	maxAge, err := engine.MaxAge()
	if err != nil {
		t.Fatalf("max age: %v", err)
	}
	if maxAge != 600 {
		t.Fatalf("expected max age 600, got %d", maxAge)
	}
}

type fakeFeed struct {
	price *big.Int
	ok    bool
	err   error
}

func (f *fakeFeed) TWAPPrice(string) (*big.Int, bool, error) {
	return f.price, f.ok, f.err
}

func TestFetchFromFeed(t *testing.T) {
	engine, _ := newTestEngine(t, 1000)
	engine.SetFeed(&fakeFeed{price: big.NewInt(2_250_000_000), ok: true})
	if err := engine.FetchFromFeed("cspr-usd"); err != nil {
		t.Fatalf("fetch from feed: %v", err)
	}
	price, err := engine.GetPrice()
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if price.Cmp(big.NewInt(2_250_000_000)) != 0 {
		t.Fatalf("unexpected price %s", price)
	}
}

func TestFetchFromFeedUnavailable(t *testing.T) {
	engine, _ := newTestEngine(t, 1000)
	engine.SetFeed(&fakeFeed{ok: false})
	if err := engine.FetchFromFeed("cspr-usd"); !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("expected ErrFeedUnavailable, got %v", err)
	}
}

func TestPriceUpdatedEventEmitted(t *testing.T) {
	engine, _ := newTestEngine(t, 1000)
	recorder := events.NewRecorder(16)
	engine.SetEmitter(recorder)
	if err := engine.UpdatePrice("owner", big.NewInt(2_400_000_000)); err != nil {
		t.Fatalf("update price: %v", err)
	}
	recent := recorder.Recent(1)
	if len(recent) != 1 {
		t.Fatalf("expected one event, got %d", len(recent))
	}
	if recent[0].EventType() != EventTypePriceUpdated {
		t.Fatalf("unexpected event type %s", recent[0].EventType())
	}
}
