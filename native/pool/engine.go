package pool

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"coverpool/core/events"
	nativecommon "coverpool/native/common"
)

const moduleName = "pool"

// ModuleAccount custodies every underlying token held by the ledger: staked
// balances, first-money-out, protocol prepayments and yield backing.
var ModuleAccount = moduleAccount(moduleName)

func moduleAccount(name string) [20]byte {
	var out [20]byte
	copy(out[:], crypto.Keccak256([]byte("coverpool/module/" + name))[12:])
	return out
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	TokenExists(symbol string) bool
	Balance(addr []byte, symbol string) (*uint256.Int, error)
	Transfer(from, to []byte, symbol string, amount *uint256.Int) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// Engine is the single writer over the pool ledger. Every exported mutation
// runs under one lock against a state snapshot: the lazily accrued quantities
// it depends on are settled first, and any failure reverts the snapshot and
// drops the operation's events.
type Engine struct {
	mu      sync.Mutex
	state   engineState
	pauses  nativecommon.PauseView
	emitter events.Emitter
	seed    Params
	height  uint64
	pending []events.Event
}

// NewEngine constructs an engine whose stored parameters are seeded from cfg.
func NewEngine(cfg Config) (*Engine, error) {
	seed, err := cfg.Params()
	if err != nil {
		return nil, err
	}
	return &Engine{seed: seed, emitter: events.NoopEmitter{}}, nil
}

// SetState wires the engine to the external persistence layer and restores
// the persisted block clock.
func (e *Engine) SetState(state engineState) error {
	if e == nil {
		return errNilEngine
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = state
	e.height = 0
	if state == nil {
		return nil
	}
	var height uint64
	if _, err := state.KVGet(clockKey, &height); err != nil {
		return err
	}
	e.height = height
	return nil
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the sink that receives committed events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetBlockHeight advances the logical clock. The clock never moves backwards
// and never moves while an operation is executing.
func (e *Engine) SetBlockHeight(height uint64) error {
	if e == nil {
		return errNilEngine
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return errNilState
	}
	if height < e.height {
		return ErrClockRegression
	}
	if height == e.height {
		return nil
	}
	if err := e.state.KVPut(clockKey, height); err != nil {
		return err
	}
	e.height = height
	return nil
}

// BlockHeight returns the current logical block.
func (e *Engine) BlockHeight() uint64 {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.height
}

func (e *Engine) emit(evt events.Event) {
	e.pending = append(e.pending, evt)
}

// exec runs fn as one all-or-nothing operation. Read-only calls always revert
// so they may settle freely to project current values.
func (e *Engine) exec(mutating bool, fn func() error) error {
	if e == nil {
		return errNilEngine
	}
	committed, emitter, err := e.run(mutating, fn)
	if emitter == nil {
		return err
	}

	// Subscribers run outside the lock so they may call back into the engine.
	for _, evt := range committed {
		emitter.Emit(evt)
	}
	return err
}

// run holds the lock for fn. A panic in fn reverts the snapshot and releases
// the lock before it propagates.
func (e *Engine) run(mutating bool, fn func() error) (committed []events.Event, emitter events.Emitter, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, nil, errNilState
	}
	if mutating {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return nil, nil, err
		}
	}
	snap := e.state.Snapshot()
	e.pending = nil
	defer func() {
		if r := recover(); r != nil {
			e.state.RevertToSnapshot(snap)
			e.pending = nil
			panic(r)
		}
	}()
	err = fn()
	if err != nil || !mutating {
		e.state.RevertToSnapshot(snap)
	} else {
		committed = e.pending
	}
	e.pending = nil
	return committed, e.emitter, err
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func isZeroAddr(addr [20]byte) bool {
	return addr == [20]byte{}
}

func isPositive(v *uint256.Int) bool {
	return v != nil && !v.IsZero()
}

func addSat(a, b uint64) uint64 {
	if a+b < a {
		return ^uint64(0)
	}
	return a + b
}
