package pool

import (
	"github.com/holiman/uint256"

	"coverpool/core/events"
	"coverpool/native/fixedpoint"
)

// payOffDebt moves the debt accrued since the asset's last payment from each
// protocol's prepaid balance into the pool. A stream that cannot cover its
// debt is clipped to its balance and its premium drops to zero from here on.
// Calling it again in the same block is a no-op.
func (e *Engine) payOffDebt(symbol string) error {
	asset, err := e.requireAsset(symbol)
	if err != nil {
		return err
	}
	now := e.height
	if now <= asset.TotalPremiumLastPaid {
		return nil
	}
	blocks := now - asset.TotalPremiumLastPaid
	span := uint256.NewInt(blocks)

	total := new(uint256.Int)
	var defaulted []events.PoolProtocolDefaulted
	for _, id := range asset.Protocols {
		stream, err := e.loadStream(id, symbol)
		if err != nil {
			return err
		}
		if stream.PremiumPerBlock.IsZero() {
			continue
		}
		debt, err := fixedpoint.Mul(stream.PremiumPerBlock, span)
		if err != nil {
			return err
		}
		if debt.Gt(stream.Balance) {
			defaulted = append(defaulted, events.PoolProtocolDefaulted{
				Protocol:      id,
				Asset:         symbol,
				PriorPremium:  fixedpoint.Clone(stream.PremiumPerBlock),
				ClippedDebt:   fixedpoint.Clone(stream.Balance),
				UnsettledDebt: new(uint256.Int).Sub(debt, stream.Balance),
			})
			debt = fixedpoint.Clone(stream.Balance)
		}
		stream.Balance = new(uint256.Int).Sub(stream.Balance, debt)
		if err := e.putStream(id, symbol, stream); err != nil {
			return err
		}
		if total, err = fixedpoint.Add(total, debt); err != nil {
			return err
		}
	}

	params, err := e.loadParams()
	if err != nil {
		return err
	}
	toStakers, err := fixedpoint.MulFrac(total, params.StakersPremiumShare)
	if err != nil {
		return err
	}
	toYield := new(uint256.Int).Sub(total, toStakers)
	if asset.StakersBalance, err = fixedpoint.Add(asset.StakersBalance, toStakers); err != nil {
		return err
	}
	if asset.YieldUnderlying, err = fixedpoint.Add(asset.YieldUnderlying, toYield); err != nil {
		return err
	}
	asset.TotalPremiumLastPaid = now
	if err := e.putAsset(asset); err != nil {
		return err
	}
	if !total.IsZero() || len(defaulted) > 0 {
		e.emit(events.PoolPremiumSettled{
			Asset:      symbol,
			Blocks:     blocks,
			Debt:       total,
			ToStakers:  toStakers,
			ToYield:    toYield,
			LastPaid:   now,
			Defaulters: len(defaulted),
		})
	}
	if len(defaulted) == 0 {
		return nil
	}

	// Yield emitted so far used the old premium; lock it in before the
	// defaulted premiums leave the emission rate.
	if err := e.accrueYieldAll(); err != nil {
		return err
	}
	asset, err = e.requireAsset(symbol)
	if err != nil {
		return err
	}
	for _, d := range defaulted {
		stream, err := e.loadStream(d.Protocol, symbol)
		if err != nil {
			return err
		}
		if asset.TotalPremiumPerBlock, err = fixedpoint.Sub(asset.TotalPremiumPerBlock, stream.PremiumPerBlock); err != nil {
			return err
		}
		stream.PremiumPerBlock = new(uint256.Int)
		if err := e.putStream(d.Protocol, symbol, stream); err != nil {
			return err
		}
		e.emit(d)
	}
	if err := e.putAsset(asset); err != nil {
		return err
	}
	return e.recomputeYieldPerBlock()
}

// accruePool mints the asset's weighted share of yield emitted since its last
// accrual into its unallocated bucket. The caller stores asset and y.
func (e *Engine) accruePool(asset *Asset, y *YieldState) error {
	now := e.height
	if now <= asset.YieldLastAccrued {
		return nil
	}
	blocks := uint256.NewInt(now - asset.YieldLastAccrued)
	asset.YieldLastAccrued = now
	if asset.YieldWeight.IsZero() || y.YieldPerBlock.IsZero() {
		return nil
	}
	emitted, err := fixedpoint.Mul(y.YieldPerBlock, blocks)
	if err != nil {
		return err
	}
	fee, err := fixedpoint.MulFrac(emitted, asset.YieldWeight)
	if err != nil {
		return err
	}
	if fee.IsZero() {
		return nil
	}
	if asset.UnallocatedYield, err = fixedpoint.Add(asset.UnallocatedYield, fee); err != nil {
		return err
	}
	if asset.HarvestWeight, err = fixedpoint.Add(asset.HarvestWeight, fee); err != nil {
		return err
	}
	y.TotalSupply, err = fixedpoint.Add(y.TotalSupply, fee)
	return err
}

// accrueBeneficiary mints the beneficiary's share since the global accrual
// mark and advances the mark. The caller stores y.
func (e *Engine) accrueBeneficiary(y *YieldState) error {
	now := e.height
	if now <= y.LastAccrued {
		return nil
	}
	blocks := uint256.NewInt(now - y.LastAccrued)
	y.LastAccrued = now
	if y.BeneficiaryWeight.IsZero() || y.YieldPerBlock.IsZero() {
		return nil
	}
	params, err := e.loadParams()
	if err != nil {
		return err
	}
	if isZeroAddr(params.Beneficiary) {
		return ErrBeneficiaryUnset
	}
	emitted, err := fixedpoint.Mul(y.YieldPerBlock, blocks)
	if err != nil {
		return err
	}
	share, err := fixedpoint.MulFrac(emitted, y.BeneficiaryWeight)
	if err != nil || share.IsZero() {
		return err
	}
	bal, err := e.yieldBalance(params.Beneficiary)
	if err != nil {
		return err
	}
	if bal, err = fixedpoint.Add(bal, share); err != nil {
		return err
	}
	if err := e.putYieldBalance(params.Beneficiary, bal); err != nil {
		return err
	}
	y.TotalSupply, err = fixedpoint.Add(y.TotalSupply, share)
	return err
}

// accrueYieldAll brings every pool and the beneficiary up to the current
// block. It must run before the emission rate or any weight changes.
func (e *Engine) accrueYieldAll() error {
	y, err := e.loadYield()
	if err != nil {
		return err
	}
	if err := e.accrueBeneficiary(y); err != nil {
		return err
	}
	list, err := e.assetList()
	if err != nil {
		return err
	}
	for _, symbol := range list {
		asset, err := e.loadAsset(symbol)
		if err != nil {
			return err
		}
		if asset == nil {
			continue
		}
		if err := e.accruePool(asset, y); err != nil {
			return err
		}
		if err := e.putAsset(asset); err != nil {
			return err
		}
	}
	return e.putYield(y)
}

// settleAsset pays off the asset's debt and accrues its yield bucket.
func (e *Engine) settleAsset(symbol string) error {
	if err := e.payOffDebt(symbol); err != nil {
		return err
	}
	y, err := e.loadYield()
	if err != nil {
		return err
	}
	asset, err := e.requireAsset(symbol)
	if err != nil {
		return err
	}
	if err := e.accruePool(asset, y); err != nil {
		return err
	}
	if err := e.putAsset(asset); err != nil {
		return err
	}
	return e.putYield(y)
}

// settleAll pays off every asset's debt then accrues all yield.
func (e *Engine) settleAll() error {
	list, err := e.assetList()
	if err != nil {
		return err
	}
	for _, symbol := range list {
		if err := e.payOffDebt(symbol); err != nil {
			return err
		}
	}
	return e.accrueYieldAll()
}

// recomputeYieldPerBlock sets the emission rate to the USD value of all
// premium streams. Yield must already be accrued at the old rate.
func (e *Engine) recomputeYieldPerBlock() error {
	list, err := e.assetList()
	if err != nil {
		return err
	}
	rate := new(uint256.Int)
	for _, symbol := range list {
		asset, err := e.loadAsset(symbol)
		if err != nil {
			return err
		}
		if asset == nil {
			continue
		}
		value, err := fixedpoint.MulFrac(asset.TotalPremiumPerBlock, asset.StoredUSD)
		if err != nil {
			return err
		}
		if rate, err = fixedpoint.Add(rate, value); err != nil {
			return err
		}
	}
	y, err := e.loadYield()
	if err != nil {
		return err
	}
	y.YieldPerBlock = rate
	return e.putYield(y)
}
