package registry

import (
	"errors"
	"fmt"
	"strings"

	"stayer/core/events"
	"stayer/core/types"
)

var (
	errNilState = errors.New("registry engine: state not configured")

	// ErrUnauthorized is returned when the caller is not the keeper or owner.
	ErrUnauthorized = errors.New("registry engine: unauthorized")
	// ErrInvalidBatch rejects empty or oversized update batches.
	ErrInvalidBatch = errors.New("registry engine: invalid validator batch")
	// ErrInvalidPAvg rejects network averages outside the accepted band.
	ErrInvalidPAvg = errors.New("registry engine: network average out of range")
	// ErrInvalidEra rejects batches whose era does not advance.
	ErrInvalidEra = errors.New("registry engine: era must increase")
	// ErrNotInitialized signals that the registry was never seeded.
	ErrNotInitialized = errors.New("registry engine: not initialized")
	// ErrValidatorNotFound is returned for lookups of unknown public keys.
	ErrValidatorNotFound = errors.New("registry engine: validator not found")
)

const (
	// MinPAvg and MaxPAvg bound the network performance average.
	MinPAvg = uint64(10)
	MaxPAvg = uint64(100)
	// MaxValidatorsPerUpdate caps a single batch.
	MaxValidatorsPerUpdate = 50
	// StaleDataEras is the number of eras after which registry data is
	// considered too old to trust for multiplier computation.
	StaleDataEras = uint64(3)
	// InitialNetworkPAvg seeds the network average before the first update.
	InitialNetworkPAvg = uint64(80)
)

var keyNetwork = []byte("registry/network")

func validatorKey(pubkey string) []byte {
	return []byte(fmt.Sprintf("registry/validator/%s", pubkey))
}

// Validator is the stored per-validator performance record.
type Validator struct {
	PublicKey     string `json:"publicKey"`
	Fee           uint64 `json:"fee"`
	DecayFactor   uint64 `json:"decayFactor"`
	Active        bool   `json:"active"`
	PScore        uint64 `json:"pScore"`
	LastUpdateEra uint64 `json:"lastUpdateEra"`
}

// ValidatorUpdate is one entry of a keeper batch.
type ValidatorUpdate struct {
	PublicKey   string `json:"publicKey"`
	Fee         uint64 `json:"fee"`
	DecayFactor uint64 `json:"decayFactor"`
	Active      bool   `json:"active"`
}

type networkState struct {
	Owner         string `json:"owner"`
	Keeper        string `json:"keeper"`
	PAvg          uint64 `json:"pAvg"`
	LastUpdateEra uint64 `json:"lastUpdateEra"`
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e registryEvent) Event() *types.Event { return e.evt }

// Engine tracks validator performance scores pushed by the off-chain keeper.
// Scores feed the staking pool's reward multiplier.
type Engine struct {
	state   engineState
	emitter events.Emitter
}

// NewEngine creates a registry engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

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
	e.emitter.Emit(registryEvent{evt: evt})
}

// Initialize seeds the registry with its owner and keeper. The network average
// starts at a neutral default until the first keeper push.
func (e *Engine) Initialize(owner, keeper string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	owner, keeper = normalize(owner), normalize(keeper)
	if owner == "" || keeper == "" {
		return ErrUnauthorized
	}
	return e.state.KVPut(keyNetwork, networkState{
		Owner:  owner,
		Keeper: keeper,
		PAvg:   InitialNetworkPAvg,
	})
}

// UpdateValidators applies a batch from the keeper or the owner: recomputes
// each validator's performance score and advances the network average and
// update era.
func (e *Engine) UpdateValidators(caller string, batch []ValidatorUpdate, pAvg, era uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	network, err := e.loadNetwork()
	if err != nil {
		return err
	}
	caller = normalize(caller)
	if caller != network.Keeper && caller != network.Owner {
		return ErrUnauthorized
	}
	if len(batch) == 0 || len(batch) > MaxValidatorsPerUpdate {
		return ErrInvalidBatch
	}
	if pAvg < MinPAvg || pAvg > MaxPAvg {
		return ErrInvalidPAvg
	}
	if era <= network.LastUpdateEra {
		return ErrInvalidEra
	}
	for _, update := range batch {
		pubkey := normalize(update.PublicKey)
		if pubkey == "" {
			return ErrInvalidBatch
		}
		record := Validator{
			PublicKey:     pubkey,
			Fee:           update.Fee,
			DecayFactor:   update.DecayFactor,
			Active:        update.Active,
			PScore:        computeScore(update.Fee, update.DecayFactor, update.Active),
			LastUpdateEra: era,
		}
		if err := e.state.KVPut(validatorKey(pubkey), record); err != nil {
			return err
		}
	}
	network.PAvg = pAvg
	network.LastUpdateEra = era
	if err := e.state.KVPut(keyNetwork, network); err != nil {
		return err
	}
	e.emit(NewValidatorsUpdatedEvent(len(batch), pAvg, era))
	return nil
}

// computeScore derives the performance score from the fee percentage and the
// decay factor, both on a 0..100 scale. Inactive validators score zero and a
// fee at or above 100 percent saturates to zero instead of wrapping.
func computeScore(fee, decayFactor uint64, active bool) uint64 {
	if !active || fee >= 100 {
		return 0
	}
	return (100 - fee) * 100 * decayFactor / 10000
}

// Validator returns the stored record for a public key.
func (e *Engine) Validator(pubkey string) (*Validator, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pubkey = normalize(pubkey)
	if pubkey == "" {
		return nil, ErrValidatorNotFound
	}
	var record Validator
	ok, err := e.state.KVGet(validatorKey(pubkey), &record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrValidatorNotFound
	}
	return &record, nil
}

// NetworkPAvg returns the current network performance average.
func (e *Engine) NetworkPAvg() (uint64, error) {
	network, err := e.loadNetwork()
	if err != nil {
		return 0, err
	}
	return network.PAvg, nil
}

// LastUpdateEra returns the era of the most recent keeper push.
func (e *Engine) LastUpdateEra() (uint64, error) {
	network, err := e.loadNetwork()
	if err != nil {
		return 0, err
	}
	return network.LastUpdateEra, nil
}

// IsValid reports whether a validator may receive new delegations at the given
// era. The staleness window compares against the registry-wide last update
// era, so one fresh batch keeps every validator's window open.
func (e *Engine) IsValid(pubkey string, era uint64) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	network, err := e.loadNetwork()
	if err != nil {
		return false, err
	}
	record, err := e.Validator(pubkey)
	if errors.Is(err, ErrValidatorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if record.PScore == 0 || !record.Active {
		return false, nil
	}
	if era > network.LastUpdateEra && era-network.LastUpdateEra > StaleDataEras {
		return false, nil
	}
	return true, nil
}

// Score returns the performance score for a validator. The boolean reports
// whether the validator is known.
func (e *Engine) Score(pubkey string) (uint64, bool, error) {
	record, err := e.Validator(pubkey)
	if errors.Is(err, ErrValidatorNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return record.PScore, true, nil
}

// SetKeeper rotates the keeper address. Owner only.
func (e *Engine) SetKeeper(caller, keeper string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	network, err := e.loadNetwork()
	if err != nil {
		return err
	}
	if normalize(caller) != network.Owner {
		return ErrUnauthorized
	}
	keeper = normalize(keeper)
	if keeper == "" {
		return ErrUnauthorized
	}
	network.Keeper = keeper
	if err := e.state.KVPut(keyNetwork, network); err != nil {
		return err
	}
	e.emit(NewKeeperRotatedEvent(keeper))
	return nil
}

// Keeper returns the current keeper address.
func (e *Engine) Keeper() (string, error) {
	network, err := e.loadNetwork()
	if err != nil {
		return "", err
	}
	return network.Keeper, nil
}

func (e *Engine) loadNetwork() (*networkState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var network networkState
	ok, err := e.state.KVGet(keyNetwork, &network)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return &network, nil
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
