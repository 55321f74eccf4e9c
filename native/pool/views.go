package pool

import (
	"github.com/holiman/uint256"

	"coverpool/native/fixedpoint"
)

// Read-only accessors settle inside a reverted snapshot, so they report the
// values an operation submitted in the current block would observe.

// Asset returns a copy of the asset record with its exchange rate.
func (e *Engine) Asset(symbol string) (*AssetView, error) {
	symbol = normalizeSymbol(symbol)
	var out *AssetView
	err := e.exec(false, func() error {
		if err := e.settleAsset(symbol); err != nil {
			return err
		}
		asset, err := e.requireAsset(symbol)
		if err != nil {
			return err
		}
		out = &AssetView{Asset: *asset}
		if !asset.ClaimSupply.IsZero() {
			out.ExchangeRate, err = fixedpoint.DivFrac(asset.StakersBalance, asset.ClaimSupply)
		}
		return err
	})
	return out, err
}

// Assets lists every initialized asset symbol in insertion order.
func (e *Engine) Assets() ([]string, error) {
	var out []string
	err := e.exec(false, func() error {
		list, err := e.assetList()
		out = list
		return err
	})
	return out, err
}

// ExchangeRate returns underlying per claim unit scaled by fixedpoint.One.
func (e *Engine) ExchangeRate(symbol string) (*uint256.Int, error) {
	view, err := e.Asset(symbol)
	if err != nil {
		return nil, err
	}
	if view.ExchangeRate == nil {
		return nil, ErrNoStake
	}
	return view.ExchangeRate, nil
}

// FirstMoneyOut returns the asset's first-money-out balance.
func (e *Engine) FirstMoneyOut(symbol string) (*uint256.Int, error) {
	view, err := e.Asset(symbol)
	if err != nil {
		return nil, err
	}
	return view.FirstMoneyOut, nil
}

// StakersBalance returns the underlying owned by current claim holders.
func (e *Engine) StakersBalance(symbol string) (*uint256.Int, error) {
	view, err := e.Asset(symbol)
	if err != nil {
		return nil, err
	}
	return view.StakersBalance, nil
}

// TotalPremiumPerBlock returns the summed premium rate of the asset.
func (e *Engine) TotalPremiumPerBlock(symbol string) (*uint256.Int, error) {
	view, err := e.Asset(symbol)
	if err != nil {
		return nil, err
	}
	return view.TotalPremiumPerBlock, nil
}

// TotalPremiumLastPaid returns the last block at which the asset's debt was
// settled.
func (e *Engine) TotalPremiumLastPaid(symbol string) (uint64, error) {
	symbol = normalizeSymbol(symbol)
	var out uint64
	err := e.exec(false, func() error {
		asset, err := e.requireAsset(symbol)
		if err != nil {
			return err
		}
		out = asset.TotalPremiumLastPaid
		return nil
	})
	return out, err
}

// ClaimBalance returns the staker's claim units on the asset.
func (e *Engine) ClaimBalance(symbol string, staker [20]byte) (*uint256.Int, error) {
	symbol = normalizeSymbol(symbol)
	var out *uint256.Int
	err := e.exec(false, func() error {
		if _, err := e.requireAsset(symbol); err != nil {
			return err
		}
		pos, err := e.loadPosition(symbol, staker)
		if err != nil {
			return err
		}
		out = pos.ClaimBalance
		return nil
	})
	return out, err
}

// StakeValue returns the underlying the staker's claims are worth now.
func (e *Engine) StakeValue(symbol string, staker [20]byte) (*uint256.Int, error) {
	symbol = normalizeSymbol(symbol)
	var out *uint256.Int
	err := e.exec(false, func() error {
		if err := e.settleAsset(symbol); err != nil {
			return err
		}
		asset, err := e.requireAsset(symbol)
		if err != nil {
			return err
		}
		pos, err := e.loadPosition(symbol, staker)
		if err != nil {
			return err
		}
		if pos.ClaimBalance.IsZero() {
			out = new(uint256.Int)
			return nil
		}
		out, err = underlyingOf(asset, pos.ClaimBalance)
		return err
	})
	return out, err
}

// WithdrawalView is an entry plus its clock-derived phase.
type WithdrawalView struct {
	WithdrawalEntry
	Index       uint64
	Phase       WithdrawalPhase
	ClaimableAt uint64
	ExpiresAt   uint64
}

// Withdrawals returns the staker's queue on the asset and its active cursor.
func (e *Engine) Withdrawals(symbol string, staker [20]byte) ([]WithdrawalView, uint64, error) {
	symbol = normalizeSymbol(symbol)
	var (
		out    []WithdrawalView
		cursor uint64
	)
	err := e.exec(false, func() error {
		queue, err := e.loadQueue(symbol, staker)
		if err != nil {
			return err
		}
		params, err := e.loadParams()
		if err != nil {
			return err
		}
		cursor = queue.InitialActiveIndex
		out = make([]WithdrawalView, len(queue.Entries))
		for i := range queue.Entries {
			entry := queue.Entries[i]
			unlock := addSat(entry.RequestedAt, params.TimelockBlocks)
			out[i] = WithdrawalView{
				WithdrawalEntry: entry,
				Index:           uint64(i),
				Phase:           e.phase(&entry, params),
				ClaimableAt:     unlock,
				ExpiresAt:       addSat(unlock, params.ClaimWindowBlocks),
			}
		}
		return nil
	})
	return out, cursor, err
}

// Withdrawal returns one entry of the staker's queue.
func (e *Engine) Withdrawal(symbol string, staker [20]byte, index uint64) (*WithdrawalView, error) {
	list, _, err := e.Withdrawals(symbol, staker)
	if err != nil {
		return nil, err
	}
	if index >= uint64(len(list)) {
		return nil, ErrIndex
	}
	return &list[index], nil
}

// WithdrawalSize returns how many entries the staker has ever queued.
func (e *Engine) WithdrawalSize(symbol string, staker [20]byte) (uint64, error) {
	list, _, err := e.Withdrawals(symbol, staker)
	return uint64(len(list)), err
}

// InitialWithdrawalIndex returns the first possibly active entry.
func (e *Engine) InitialWithdrawalIndex(symbol string, staker [20]byte) (uint64, error) {
	_, cursor, err := e.Withdrawals(symbol, staker)
	return cursor, err
}

// YieldBalance returns spendable yield tokens. Unharvested pool shares and
// not yet accrued beneficiary yield are included.
func (e *Engine) YieldBalance(addr [20]byte) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.exec(false, func() error {
		if err := e.settleAll(); err != nil {
			return err
		}
		bal, err := e.yieldBalance(addr)
		if err != nil {
			return err
		}
		list, err := e.assetList()
		if err != nil {
			return err
		}
		for _, symbol := range list {
			asset, err := e.requireAsset(symbol)
			if err != nil {
				return err
			}
			pos, err := e.loadPosition(symbol, addr)
			if err != nil {
				return err
			}
			owed, err := pendingYield(asset, pos)
			if err != nil {
				return err
			}
			if bal, err = fixedpoint.Add(bal, owed); err != nil {
				return err
			}
		}
		out = bal
		return nil
	})
	return out, err
}

// HarvestedYield returns only the already harvested yield balance.
func (e *Engine) HarvestedYield(addr [20]byte) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.exec(false, func() error {
		if err := e.accrueYieldAll(); err != nil {
			return err
		}
		bal, err := e.yieldBalance(addr)
		out = bal
		return err
	})
	return out, err
}

// UnallocatedYieldFor returns what the staker could harvest on one asset.
func (e *Engine) UnallocatedYieldFor(symbol string, staker [20]byte) (*uint256.Int, error) {
	symbol = normalizeSymbol(symbol)
	var out *uint256.Int
	err := e.exec(false, func() error {
		if err := e.settleAsset(symbol); err != nil {
			return err
		}
		asset, err := e.requireAsset(symbol)
		if err != nil {
			return err
		}
		pos, err := e.loadPosition(symbol, staker)
		if err != nil {
			return err
		}
		out, err = pendingYield(asset, pos)
		return err
	})
	return out, err
}

// YieldState returns the global yield accounting projected to now.
func (e *Engine) YieldState() (*YieldState, error) {
	var out *YieldState
	err := e.exec(false, func() error {
		if err := e.settleAll(); err != nil {
			return err
		}
		y, err := e.loadYield()
		out = y
		return err
	})
	return out, err
}

// YieldLastAccrued returns the block of the last stored global accrual.
func (e *Engine) YieldLastAccrued() (uint64, error) {
	var out uint64
	err := e.exec(false, func() error {
		y, err := e.loadYield()
		if err != nil {
			return err
		}
		out = y.LastAccrued
		return nil
	})
	return out, err
}

// Weights returns the current yield weight distribution.
func (e *Engine) Weights() (*Weights, error) {
	var out *Weights
	err := e.exec(false, func() error {
		y, err := e.loadYield()
		if err != nil {
			return err
		}
		list, err := e.assetList()
		if err != nil {
			return err
		}
		out = &Weights{Beneficiary: y.BeneficiaryWeight, Initialized: y.WeightsInitialized}
		for _, symbol := range list {
			asset, err := e.requireAsset(symbol)
			if err != nil {
				return err
			}
			out.Assets = append(out.Assets, AssetAmount{Asset: symbol, Amount: asset.YieldWeight})
		}
		return nil
	})
	return out, err
}

// Params returns the stored ledger parameters.
func (e *Engine) Params() (*Params, error) {
	var out *Params
	err := e.exec(false, func() error {
		p, err := e.loadParams()
		out = p
		return err
	})
	return out, err
}

// Protocol returns the protocol record.
func (e *Engine) Protocol(id [32]byte) (*Protocol, error) {
	var out *Protocol
	err := e.exec(false, func() error {
		p, err := e.requireProtocol(id)
		out = p
		return err
	})
	return out, err
}

// ProtocolStream returns the protocol's stream on the asset after settling
// debt to the current block.
func (e *Engine) ProtocolStream(id [32]byte, symbol string) (*PremiumStream, error) {
	symbol = normalizeSymbol(symbol)
	var out *PremiumStream
	err := e.exec(false, func() error {
		if _, err := e.requireProtocol(id); err != nil {
			return err
		}
		if err := e.payOffDebt(symbol); err != nil {
			return err
		}
		s, err := e.loadStream(id, symbol)
		out = s
		return err
	})
	return out, err
}

// AccruedDebt returns the premium the protocol owes on the asset since the
// last settlement, clipped to its balance.
func (e *Engine) AccruedDebt(id [32]byte, symbol string) (*uint256.Int, error) {
	symbol = normalizeSymbol(symbol)
	var out *uint256.Int
	err := e.exec(false, func() error {
		asset, err := e.requireAsset(symbol)
		if err != nil {
			return err
		}
		s, err := e.loadStream(id, symbol)
		if err != nil {
			return err
		}
		blocks := uint64(0)
		if e.height > asset.TotalPremiumLastPaid {
			blocks = e.height - asset.TotalPremiumLastPaid
		}
		debt, err := fixedpoint.Mul(s.PremiumPerBlock, uint256.NewInt(blocks))
		if err != nil {
			return err
		}
		out = fixedpoint.Min(debt, s.Balance)
		return nil
	})
	return out, err
}
