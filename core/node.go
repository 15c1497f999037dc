package core

import (
	"errors"
	"math/big"

	"stayer/core/events"
	"stayer/native/common"
	"stayer/native/oracle"
	"stayer/native/registry"
	"stayer/native/staking"
	"stayer/native/token"
	"stayer/native/vault"
	"stayer/state"
	"stayer/storage"
)

// Genesis seeds every engine on first boot.
type Genesis struct {
	Owner        string
	Keeper       string
	InitialPrice *big.Int
	FeedAddress  string
}

var (
	// ErrGenesisRequired is returned when a fresh database is opened without
	// genesis parameters.
	ErrGenesisRequired = errors.New("core: fresh state requires genesis parameters")

	keyGenesis = []byte("node/genesis")
)

// Node wires the protocol engines, the token ledgers and the event recorder
// over a single database. All RPC traffic flows through it.
type Node struct {
	db     storage.Database
	state  *state.Manager
	events *events.Recorder
	pauses *common.PauseSet

	base       *token.Ledger
	derivative *token.Ledger
	stable     *token.Ledger

	oracle   *oracle.Engine
	registry *registry.Engine
	staking  *staking.Engine
	vault    *vault.Engine
}

// NewNode assembles the engine graph over the given database. The staking pool
// reads validator scores from the registry and the vault values collateral
// through the oracle price and the pool exchange rate.
func NewNode(db storage.Database) *Node {
	mgr := state.NewManager(db)
	recorder := events.NewRecorder(0)
	pauses := common.NewPauseSet()

	base := token.NewLedger("STAY")
	base.SetState(mgr)
	derivative := token.NewLedger("ySTAY")
	derivative.SetState(mgr)
	stable := token.NewLedger("sUSD")
	stable.SetState(mgr)

	oracleEngine := oracle.NewEngine()
	oracleEngine.SetState(mgr)
	oracleEngine.SetEmitter(recorder)

	registryEngine := registry.NewEngine()
	registryEngine.SetState(mgr)
	registryEngine.SetEmitter(recorder)

	stakingEngine := staking.NewEngine()
	stakingEngine.SetState(mgr)
	stakingEngine.SetEmitter(recorder)
	stakingEngine.SetPauses(pauses)
	stakingEngine.SetRegistry(registryEngine)
	stakingEngine.SetBaseLedger(base)
	stakingEngine.SetDerivativeToken(derivative)

	vaultEngine := vault.NewEngine()
	vaultEngine.SetState(mgr)
	vaultEngine.SetEmitter(recorder)
	vaultEngine.SetOracleSource(oracleEngine)
	vaultEngine.SetRateSource(stakingEngine)
	vaultEngine.SetCollateralToken(derivative)
	vaultEngine.SetDebtToken(stable)

	return &Node{
		db:         db,
		state:      mgr,
		events:     recorder,
		pauses:     pauses,
		base:       base,
		derivative: derivative,
		stable:     stable,
		oracle:     oracleEngine,
		registry:   registryEngine,
		staking:    stakingEngine,
		vault:      vaultEngine,
	}
}

// Bootstrap initializes every engine exactly once. Reopening an existing
// database is a no-op; a fresh database without genesis parameters is an error.
func (n *Node) Bootstrap(genesis *Genesis) error {
	var done bool
	ok, err := n.state.KVGet(keyGenesis, &done)
	if err != nil {
		return err
	}
	if ok && done {
		return nil
	}
	if genesis == nil || genesis.Owner == "" || genesis.Keeper == "" || genesis.InitialPrice == nil {
		return ErrGenesisRequired
	}
	if err := n.oracle.Initialize(genesis.Owner, genesis.InitialPrice, genesis.FeedAddress); err != nil {
		return err
	}
	if err := n.registry.Initialize(genesis.Owner, genesis.Keeper); err != nil {
		return err
	}
	if err := n.staking.Initialize(genesis.Owner, genesis.Keeper); err != nil {
		return err
	}
	if err := n.vault.Initialize(genesis.Owner); err != nil {
		return err
	}
	return n.state.KVPut(keyGenesis, true)
}

// Close releases the underlying database.
func (n *Node) Close() error {
	if n == nil || n.db == nil {
		return nil
	}
	return n.db.Close()
}

// Oracle returns the price oracle engine.
func (n *Node) Oracle() *oracle.Engine { return n.oracle }

// Registry returns the validator registry engine.
func (n *Node) Registry() *registry.Engine { return n.registry }

// Staking returns the liquid staking pool engine.
func (n *Node) Staking() *staking.Engine { return n.staking }

// Vault returns the CDP vault engine.
func (n *Node) Vault() *vault.Engine { return n.vault }

// Events returns the bounded event recorder.
func (n *Node) Events() *events.Recorder { return n.events }

// Pauses returns the node-level module pause set.
func (n *Node) Pauses() *common.PauseSet { return n.pauses }

// BaseToken returns the staked base asset ledger.
func (n *Node) BaseToken() *token.Ledger { return n.base }

// DerivativeToken returns the yield derivative ledger.
func (n *Node) DerivativeToken() *token.Ledger { return n.derivative }

// StableToken returns the stablecoin ledger.
func (n *Node) StableToken() *token.Ledger { return n.stable }
