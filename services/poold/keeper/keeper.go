package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"
	"github.com/robfig/cron/v3"

	"coverpool/config"
	"coverpool/native/fixedpoint"
	"coverpool/native/pool"
	"coverpool/observability/metrics"
	"coverpool/services/poold"
)

const (
	JobBlock  = "block"
	JobPayoff = "payoff"
	JobGauges = "gauges"
)

// Keeper runs the ledger's housekeeping on cron schedules: it advances the
// block clock, settles premium debt and yield, and publishes gauges.
type Keeper struct {
	cron    *cron.Cron
	node    *poold.Node
	metrics *metrics.PoolMetrics
	logger  *slog.Logger
}

func New(node *poold.Node, m *metrics.PoolMetrics, logger *slog.Logger) *Keeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Keeper{
		cron:    cron.New(),
		node:    node,
		metrics: m,
		logger:  logger.With("component", "keeper"),
	}
}

// Register adds the configured jobs. An empty block schedule leaves the
// clock to the API.
func (k *Keeper) Register(cfg config.KeeperConfig) error {
	jobs := []struct {
		name     string
		schedule string
		fn       func() error
	}{
		{JobBlock, cfg.BlockSchedule, k.RunBlock},
		{JobPayoff, cfg.PayoffSchedule, k.RunPayoff},
		{JobGauges, cfg.GaugeSchedule, k.RunGauges},
	}
	for _, job := range jobs {
		if job.schedule == "" {
			continue
		}
		job := job
		if _, err := k.cron.AddFunc(job.schedule, func() { k.run(job.name, job.fn) }); err != nil {
			return fmt.Errorf("register %s job: %w", job.name, err)
		}
	}
	return nil
}

func (k *Keeper) run(name string, fn func() error) {
	err := fn()
	k.metrics.RecordKeeperRun(name, err)
	if err != nil {
		k.logger.Error("keeper job failed", "job", name, "error", err, "reason", pool.ReasonOf(err))
		return
	}
	k.logger.Debug("keeper job finished", "job", name, "height", k.node.Height())
}

// Start begins running jobs in the background.
func (k *Keeper) Start() {
	k.cron.Start()
	k.logger.Info("keeper started", "jobs", len(k.cron.Entries()))
}

// Stop halts scheduling and waits for running jobs, or for ctx.
func (k *Keeper) Stop(ctx context.Context) {
	done := k.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	k.logger.Info("keeper stopped")
}

// RunBlock advances the clock by one block.
func (k *Keeper) RunBlock() error {
	height, err := k.node.AdvanceBlock()
	if err != nil {
		return err
	}
	k.metrics.SetBlockHeight(height)
	return nil
}

// RunPayoff settles every asset's premium debt and then global yield. An
// asset that fails does not stop the others.
func (k *Keeper) RunPayoff() error {
	var symbols []string
	if err := k.node.View(func(e *pool.Engine) error {
		var err error
		symbols, err = e.Assets()
		return err
	}); err != nil {
		return err
	}
	var errs []error
	for _, symbol := range symbols {
		symbol := symbol
		err := k.node.Do("payoff", func(e *pool.Engine) error { return e.PayOffDebtAll(symbol) })
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
		}
	}
	if err := k.node.Do("accrue", func(e *pool.Engine) error { return e.AccrueYield() }); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Violation is a failed ledger consistency check.
type Violation struct {
	Asset string
	Check string
	Want  *uint256.Int
	Got   *uint256.Int
}

// RunGauges publishes the current ledger figures and checks invariants.
func (k *Keeper) RunGauges() error {
	violations, err := k.Check()
	if err != nil {
		return err
	}
	for _, v := range violations {
		k.metrics.RecordInvariantViolation(v.Check)
		k.logger.Error("ledger invariant violated", "asset", v.Asset, "check", v.Check,
			"want", v.Want.Dec(), "got", v.Got.Dec())
	}
	return nil
}

// Check reads every asset, publishes its gauges and returns the
// consistency checks that failed: the custody account must hold exactly
// what the ledger attributes, and rate times supply must match the stakers
// balance up to rounding.
func (k *Keeper) Check() ([]Violation, error) {
	var (
		views      []*pool.AssetView
		streamSums []*uint256.Int
		yieldState *pool.YieldState
	)
	err := k.node.View(func(e *pool.Engine) error {
		symbols, err := e.Assets()
		if err != nil {
			return err
		}
		for _, symbol := range symbols {
			view, err := e.Asset(symbol)
			if err != nil {
				return err
			}
			sum := new(uint256.Int)
			for _, id := range view.Protocols {
				stream, err := e.ProtocolStream(id, symbol)
				if err != nil {
					return err
				}
				sum.Add(sum, stream.Balance)
			}
			views = append(views, view)
			streamSums = append(streamSums, sum)
		}
		yieldState, err = e.YieldState()
		return err
	})
	if err != nil {
		return nil, err
	}

	k.metrics.SetBlockHeight(k.node.Height())
	k.metrics.SetYieldPerBlock(yieldState.YieldPerBlock)

	var out []Violation
	for i, view := range views {
		k.metrics.ObserveAsset(metrics.AssetSnapshot{
			Asset:            view.Symbol,
			ExchangeRate:     view.ExchangeRate,
			FirstMoneyOut:    view.FirstMoneyOut,
			StakersBalance:   view.StakersBalance,
			PremiumPerBlock:  view.TotalPremiumPerBlock,
			UnallocatedYield: view.UnallocatedYield,
		})

		attributed := new(uint256.Int).Add(view.StakersBalance, view.FirstMoneyOut)
		attributed.Add(attributed, view.PendingWithdrawals)
		attributed.Add(attributed, view.YieldUnderlying)
		attributed.Add(attributed, streamSums[i])
		held, err := k.node.Balance(pool.ModuleAccount, view.Symbol)
		if err != nil {
			return nil, err
		}
		if !held.Eq(attributed) {
			out = append(out, Violation{Asset: view.Symbol, Check: "custody", Want: attributed, Got: held})
		}

		if view.ClaimSupply.IsZero() {
			continue
		}
		implied, err := fixedpoint.MulFrac(view.ExchangeRate, view.ClaimSupply)
		if err != nil {
			return nil, err
		}
		gap := new(uint256.Int)
		if implied.Gt(view.StakersBalance) {
			gap.Sub(implied, view.StakersBalance)
		} else {
			gap.Sub(view.StakersBalance, implied)
		}
		tolerance := new(uint256.Int).Div(view.ClaimSupply, fixedpoint.One)
		tolerance.AddUint64(tolerance, 1)
		if gap.Gt(tolerance) {
			out = append(out, Violation{Asset: view.Symbol, Check: "exchange_rate", Want: view.StakersBalance, Got: implied})
		}
	}
	return out, nil
}
