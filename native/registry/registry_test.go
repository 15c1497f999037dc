package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
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

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine := NewEngine()
	engine.SetState(newMockState())
	if err := engine.Initialize("owner", "keeper"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return engine
}

func TestInitialNetworkAverage(t *testing.T) {
	engine := newTestEngine(t)
	pAvg, err := engine.NetworkPAvg()
	if err != nil {
		t.Fatalf("network p_avg: %v", err)
	}
	if pAvg != InitialNetworkPAvg {
		t.Fatalf("expected %d, got %d", InitialNetworkPAvg, pAvg)
	}
}

func TestUpdateValidatorsComputesScore(t *testing.T) {
	engine := newTestEngine(t)
	batch := []ValidatorUpdate{
		{PublicKey: "val-1", Fee: 5, DecayFactor: 100, Active: true},
	}
	if err := engine.UpdateValidators("keeper", batch, 85, 10); err != nil {
		t.Fatalf("update validators: %v", err)
	}
	record, err := engine.Validator("val-1")
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	// (100-5)*100*100/10000 = 95.
	if record.PScore != 95 {
		t.Fatalf("expected score 95, got %d", record.PScore)
	}
	pAvg, err := engine.NetworkPAvg()
	if err != nil {
		t.Fatalf("network p_avg: %v", err)
	}
	if pAvg != 85 {
		t.Fatalf("expected p_avg 85, got %d", pAvg)
	}
	era, err := engine.LastUpdateEra()
	if err != nil {
		t.Fatalf("last era: %v", err)
	}
	if era != 10 {
		t.Fatalf("expected era 10, got %d", era)
	}
}

func TestScoreSaturatesAtZero(t *testing.T) {
	engine := newTestEngine(t)
	batch := []ValidatorUpdate{
		{PublicKey: "greedy", Fee: 150, DecayFactor: 100, Active: true},
		{PublicKey: "idle", Fee: 5, DecayFactor: 100, Active: false},
		{PublicKey: "decayed", Fee: 5, DecayFactor: 50, Active: true},
	}
	if err := engine.UpdateValidators("keeper", batch, 80, 1); err != nil {
		t.Fatalf("update validators: %v", err)
	}
	for _, tc := range []struct {
		pubkey string
		want   uint64
	}{
		{"greedy", 0},
		{"idle", 0},
		{"decayed", 47},
	} {
		record, err := engine.Validator(tc.pubkey)
		if err != nil {
			t.Fatalf("validator %s: %v", tc.pubkey, err)
		}
		if record.PScore != tc.want {
			t.Fatalf("%s: expected score %d, got %d", tc.pubkey, tc.want, record.PScore)
		}
	}
}

func TestUpdateValidatorsAuthorization(t *testing.T) {
	engine := newTestEngine(t)
	batch := []ValidatorUpdate{{PublicKey: "val-1", Fee: 5, DecayFactor: 100, Active: true}}
	if err := engine.UpdateValidators("mallory", batch, 80, 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	// The owner may push batches directly, not just the keeper.
	if err := engine.UpdateValidators("owner", batch, 80, 1); err != nil {
		t.Fatalf("owner batch rejected: %v", err)
	}
	if err := engine.UpdateValidators("keeper", batch, 80, 2); err != nil {
		t.Fatalf("keeper batch rejected: %v", err)
	}
}

func TestUpdateValidatorsBatchLimits(t *testing.T) {
	engine := newTestEngine(t)
	if err := engine.UpdateValidators("keeper", nil, 80, 1); !errors.Is(err, ErrInvalidBatch) {
		t.Fatalf("expected ErrInvalidBatch for empty batch, got %v", err)
	}
	oversized := make([]ValidatorUpdate, MaxValidatorsPerUpdate+1)
	for i := range oversized {
		oversized[i] = ValidatorUpdate{PublicKey: fmt.Sprintf("val-%d", i), Fee: 5, DecayFactor: 100, Active: true}
	}
	if err := engine.UpdateValidators("keeper", oversized, 80, 1); !errors.Is(err, ErrInvalidBatch) {
		t.Fatalf("expected ErrInvalidBatch for oversized batch, got %v", err)
	}
	full := oversized[:MaxValidatorsPerUpdate]
	if err := engine.UpdateValidators("keeper", full, 80, 1); err != nil {
		t.Fatalf("batch at the limit must pass: %v", err)
	}
}

func TestUpdateValidatorsPAvgBounds(t *testing.T) {
	engine := newTestEngine(t)
	batch := []ValidatorUpdate{{PublicKey: "val-1", Fee: 5, DecayFactor: 100, Active: true}}
	if err := engine.UpdateValidators("keeper", batch, MinPAvg-1, 1); !errors.Is(err, ErrInvalidPAvg) {
		t.Fatalf("expected ErrInvalidPAvg below band, got %v", err)
	}
	if err := engine.UpdateValidators("keeper", batch, MaxPAvg+1, 1); !errors.Is(err, ErrInvalidPAvg) {
		t.Fatalf("expected ErrInvalidPAvg above band, got %v", err)
	}
}

func TestUpdateValidatorsRejectsNonIncreasingEra(t *testing.T) {
	engine := newTestEngine(t)
	batch := []ValidatorUpdate{{PublicKey: "val-1", Fee: 5, DecayFactor: 100, Active: true}}
	if err := engine.UpdateValidators("keeper", batch, 80, 5); err != nil {
		t.Fatalf("update validators: %v", err)
	}
	if err := engine.UpdateValidators("keeper", batch, 80, 5); !errors.Is(err, ErrInvalidEra) {
		t.Fatalf("expected ErrInvalidEra for repeated era, got %v", err)
	}
	if err := engine.UpdateValidators("keeper", batch, 80, 4); !errors.Is(err, ErrInvalidEra) {
		t.Fatalf("expected ErrInvalidEra for older era, got %v", err)
	}
	if err := engine.UpdateValidators("keeper", batch, 80, 6); err != nil {
		t.Fatalf("advancing era rejected: %v", err)
	}
}

func TestUpdateValidatorsRejectsEraZero(t *testing.T) {
	engine := newTestEngine(t)
	batch := []ValidatorUpdate{{PublicKey: "val-1", Fee: 5, DecayFactor: 100, Active: true}}
	if err := engine.UpdateValidators("keeper", batch, 80, 0); !errors.Is(err, ErrInvalidEra) {
		t.Fatalf("expected ErrInvalidEra for era zero, got %v", err)
	}
	if err := engine.UpdateValidators("keeper", batch, 80, 1); err != nil {
		t.Fatalf("first batch at era 1 rejected: %v", err)
	}
}

func TestIsValidUsesGlobalStaleness(t *testing.T) {
	engine := newTestEngine(t)
	batch := []ValidatorUpdate{{PublicKey: "val-1", Fee: 5, DecayFactor: 100, Active: true}}
	if err := engine.UpdateValidators("keeper", batch, 80, 10); err != nil {
		t.Fatalf("update validators: %v", err)
	}
	for _, tc := range []struct {
		era  uint64
		want bool
	}{
		{10, true},
		{13, true},
		{14, false},
	} {
		valid, err := engine.IsValid("val-1", tc.era)
		if err != nil {
			t.Fatalf("is valid at era %d: %v", tc.era, err)
		}
		if valid != tc.want {
			t.Fatalf("era %d: expected %t, got %t", tc.era, tc.want, valid)
		}
	}
	// A later batch for a different validator refreshes the window for all.
	other := []ValidatorUpdate{{PublicKey: "val-2", Fee: 5, DecayFactor: 100, Active: true}}
	if err := engine.UpdateValidators("keeper", other, 80, 14); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	valid, err := engine.IsValid("val-1", 14)
	if err != nil {
		t.Fatalf("is valid after refresh: %v", err)
	}
	if !valid {
		t.Fatalf("registry-wide refresh must revalidate val-1")
	}
}

func TestIsValidUnknownValidator(t *testing.T) {
	engine := newTestEngine(t)
	batch := []ValidatorUpdate{{PublicKey: "val-1", Fee: 5, DecayFactor: 100, Active: true}}
	if err := engine.UpdateValidators("keeper", batch, 80, 1); err != nil {
		t.Fatalf("update validators: %v", err)
	}
	valid, err := engine.IsValid("ghost", 1)
	if err != nil {
		t.Fatalf("is valid: %v", err)
	}
	if valid {
		t.Fatalf("unknown validator must be invalid")
	}
}

func TestSetKeeperRotation(t *testing.T) {
	engine := newTestEngine(t)
	if err := engine.SetKeeper("keeper", "keeper2"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("keeper must not rotate itself, got %v", err)
	}
	if err := engine.SetKeeper("owner", "keeper2"); err != nil {
		t.Fatalf("set keeper: %v", err)
	}
	batch := []ValidatorUpdate{{PublicKey: "val-1", Fee: 5, DecayFactor: 100, Active: true}}
	if err := engine.UpdateValidators("keeper", batch, 80, 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old keeper must be rejected, got %v", err)
	}
	if err := engine.UpdateValidators("keeper2", batch, 80, 1); err != nil {
		t.Fatalf("new keeper rejected: %v", err)
	}
}
