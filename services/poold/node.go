package poold

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/holiman/uint256"

	"coverpool/config"
	"coverpool/core/events"
	"coverpool/core/state"
	"coverpool/native/pool"
	"coverpool/storage"
)

// Node owns the ledger: the state overlay, the database underneath it and
// the pool engine on top. Every engine call goes through Node so the
// overlay is committed between operations and never while one is running.
type Node struct {
	mu      sync.Mutex
	db      storage.Database
	state   *state.Manager
	engine  *pool.Engine
	logger  *slog.Logger
	sink    events.Emitter
	pending []events.Event
}

// buffer holds engine events until the surrounding Do commits.
type buffer struct{ n *Node }

func (b buffer) Emit(evt events.Event) { b.n.pending = append(b.n.pending, evt) }

// NewNode opens the configured storage backend and wires a pool engine to it.
func NewNode(cfg *config.Config, emitter events.Emitter, logger *slog.Logger) (*Node, error) {
	if cfg == nil {
		return nil, errors.New("poold: configuration is required")
	}
	db, err := storage.Open(cfg.Storage, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	node, err := newNode(db, cfg.Pool, cfg.Pauses, emitter, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return node, nil
}

func newNode(db storage.Database, poolCfg pool.Config, pauses config.Pauses, emitter events.Emitter, logger *slog.Logger) (*Node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	engine, err := pool.NewEngine(poolCfg)
	if err != nil {
		return nil, err
	}
	st := state.NewManager(db)
	if err := engine.SetState(st); err != nil {
		return nil, fmt.Errorf("poold: restore clock: %w", err)
	}
	engine.SetPauses(pauses)
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	n := &Node{db: db, state: st, engine: engine, sink: emitter, logger: logger.With("component", "node")}
	engine.SetEmitter(buffer{n})
	return n, nil
}

// Close releases the database.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.db.Close()
}

// Do runs fn, which may make several engine calls, and commits their writes
// as one batch. A failure anywhere discards every write fn made and the
// events it produced; events reach the sink only after a successful commit.
func (n *Node) Do(op string, fn func(*pool.Engine) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = nil
	defer func() {
		if r := recover(); r != nil {
			n.discard(op)
			panic(r)
		}
	}()
	if err := fn(n.engine); err != nil {
		n.discard(op)
		return err
	}
	if _, err := n.state.Commit(); err != nil {
		n.logger.Error("commit failed", "op", op, "error", err)
		n.discard(op)
		return err
	}
	committed := n.pending
	n.pending = nil
	for _, evt := range committed {
		n.sink.Emit(evt)
	}
	return nil
}

// discard drops the uncommitted batch and rewinds the engine clock to the
// last committed height.
func (n *Node) discard(op string) {
	n.state.Discard()
	n.pending = nil
	if err := n.engine.SetState(n.state); err != nil {
		n.logger.Error("restore clock failed", "op", op, "error", err)
	}
}

// View runs a read. Engine reads revert their own snapshots, so nothing
// needs committing.
func (n *Node) View(fn func(*pool.Engine) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(n.engine)
}

// Height returns the ledger's block clock.
func (n *Node) Height() uint64 {
	return n.engine.BlockHeight()
}

// AdvanceBlock moves the clock forward by one block.
func (n *Node) AdvanceBlock() (uint64, error) {
	var next uint64
	err := n.Do("advance", func(e *pool.Engine) error {
		next = e.BlockHeight() + 1
		return e.SetBlockHeight(next)
	})
	return next, err
}

// SetHeight moves the clock to height, which must not be in the past.
func (n *Node) SetHeight(height uint64) error {
	return n.Do("set-height", func(e *pool.Engine) error {
		return e.SetBlockHeight(height)
	})
}

// Balance returns an account's token balance.
func (n *Node) Balance(addr [20]byte, symbol string) (*uint256.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Balance(addr[:], symbol)
}
