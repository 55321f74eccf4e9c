package pool

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"coverpool/core/events"
	"coverpool/native/fixedpoint"
)

// WeightRemainder passed as the beneficiary weight assigns the beneficiary
// whatever completes the distribution to one.
var WeightRemainder = new(uint256.Int).SetAllOne()

func isRemainder(w *uint256.Int) bool {
	return w != nil && w.Eq(WeightRemainder)
}

// pendingYield is what a holder may harvest from the asset's bucket now.
func pendingYield(asset *Asset, pos *Position) (*uint256.Int, error) {
	if asset.ClaimSupply.IsZero() || pos.ClaimBalance.IsZero() {
		return new(uint256.Int), nil
	}
	share, err := fixedpoint.MulDiv(asset.HarvestWeight, pos.ClaimBalance, asset.ClaimSupply)
	if err != nil {
		return nil, err
	}
	owed := fixedpoint.SubFloor(share, pos.YieldWithdrawn)
	return fixedpoint.Min(owed, asset.UnallocatedYield), nil
}

// harvestPosition credits the holder's pending yield to their spendable
// balance. The caller stores asset and pos.
func (e *Engine) harvestPosition(asset *Asset, staker [20]byte, pos *Position) (*uint256.Int, error) {
	amount, err := pendingYield(asset, pos)
	if err != nil || amount.IsZero() {
		return amount, err
	}
	if pos.YieldWithdrawn, err = fixedpoint.Add(pos.YieldWithdrawn, amount); err != nil {
		return nil, err
	}
	asset.UnallocatedYield = new(uint256.Int).Sub(asset.UnallocatedYield, amount)
	bal, err := e.yieldBalance(staker)
	if err != nil {
		return nil, err
	}
	if bal, err = fixedpoint.Add(bal, amount); err != nil {
		return nil, err
	}
	if err := e.putYieldBalance(staker, bal); err != nil {
		return nil, err
	}
	e.emit(events.PoolHarvested{Staker: staker, Asset: asset.Symbol, Amount: amount, Balance: bal})
	return amount, nil
}

// rebaseWithdrawn zeroes a freshly harvested holder's entitlement against the
// current weight and supply.
func rebaseWithdrawn(asset *Asset, pos *Position) error {
	if asset.ClaimSupply.IsZero() || pos.ClaimBalance.IsZero() {
		pos.YieldWithdrawn = new(uint256.Int)
		return nil
	}
	share, err := fixedpoint.MulDiv(asset.HarvestWeight, pos.ClaimBalance, asset.ClaimSupply)
	if err != nil {
		return err
	}
	pos.YieldWithdrawn = share
	return nil
}

// mintClaims issues claim units to an already harvested holder. Harvest
// weight grows in proportion so other holders keep their entitlement. Yield
// that accrued while the pool had no holders goes to the first minter.
func mintClaims(asset *Asset, pos *Position, amount *uint256.Int) error {
	if asset.ClaimSupply.IsZero() {
		asset.ClaimSupply = fixedpoint.Clone(amount)
		pos.ClaimBalance = fixedpoint.Clone(amount)
		pos.YieldWithdrawn = new(uint256.Int)
		return nil
	}
	added, err := fixedpoint.MulDiv(asset.HarvestWeight, amount, asset.ClaimSupply)
	if err != nil {
		return err
	}
	if asset.HarvestWeight, err = fixedpoint.Add(asset.HarvestWeight, added); err != nil {
		return err
	}
	if asset.ClaimSupply, err = fixedpoint.Add(asset.ClaimSupply, amount); err != nil {
		return err
	}
	if pos.ClaimBalance, err = fixedpoint.Add(pos.ClaimBalance, amount); err != nil {
		return err
	}
	return rebaseWithdrawn(asset, pos)
}

// burnClaims removes claim units from an already harvested holder along with
// their proportional harvest weight.
func burnClaims(asset *Asset, pos *Position, amount *uint256.Int) error {
	if pos.ClaimBalance.Lt(amount) {
		return fmt.Errorf("%w: claim balance %s below %s", ErrInsufficientBalance, pos.ClaimBalance.Dec(), amount.Dec())
	}
	removed, err := fixedpoint.MulDiv(asset.HarvestWeight, amount, asset.ClaimSupply)
	if err != nil {
		return err
	}
	asset.HarvestWeight = fixedpoint.SubFloor(asset.HarvestWeight, removed)
	if asset.ClaimSupply, err = fixedpoint.Sub(asset.ClaimSupply, amount); err != nil {
		return err
	}
	pos.ClaimBalance = new(uint256.Int).Sub(pos.ClaimBalance, amount)
	if asset.ClaimSupply.IsZero() {
		asset.HarvestWeight = new(uint256.Int)
	}
	return rebaseWithdrawn(asset, pos)
}

func (e *Engine) harvestOne(symbol string, staker [20]byte) (*uint256.Int, error) {
	if err := e.settleAsset(symbol); err != nil {
		return nil, err
	}
	asset, err := e.requireAsset(symbol)
	if err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(symbol, staker)
	if err != nil {
		return nil, err
	}
	amount, err := e.harvestPosition(asset, staker, pos)
	if err != nil {
		return nil, err
	}
	if err := e.putPosition(symbol, staker, pos); err != nil {
		return nil, err
	}
	if err := e.putAsset(asset); err != nil {
		return nil, err
	}
	return amount, nil
}

// HarvestFor moves the staker's accrued yield on one asset into their
// spendable yield balance and returns the amount moved.
func (e *Engine) HarvestFor(staker [20]byte, symbol string) (*uint256.Int, error) {
	symbol = normalizeSymbol(symbol)
	if isZeroAddr(staker) {
		return nil, ErrAddress
	}
	var out *uint256.Int
	err := e.exec(true, func() error {
		amount, err := e.harvestOne(symbol, staker)
		out = amount
		return err
	})
	return out, err
}

// HarvestForMultiple harvests the staker on each listed asset.
func (e *Engine) HarvestForMultiple(staker [20]byte, symbols []string) (*uint256.Int, error) {
	if isZeroAddr(staker) {
		return nil, ErrAddress
	}
	if len(symbols) == 0 {
		return nil, ErrLength
	}
	normalized := make([]string, len(symbols))
	for i, s := range symbols {
		normalized[i] = normalizeSymbol(s)
	}
	total := new(uint256.Int)
	err := e.exec(true, func() error {
		for _, symbol := range normalized {
			amount, err := e.harvestOne(symbol, staker)
			if err != nil {
				return err
			}
			if total, err = fixedpoint.Add(total, amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

// Harvest harvests the staker on every listed asset.
func (e *Engine) Harvest(staker [20]byte) (*uint256.Int, error) {
	if isZeroAddr(staker) {
		return nil, ErrAddress
	}
	total := new(uint256.Int)
	err := e.exec(true, func() error {
		list, err := e.assetList()
		if err != nil {
			return err
		}
		for _, symbol := range list {
			amount, err := e.harvestOne(symbol, staker)
			if err != nil {
				return err
			}
			if total, err = fixedpoint.Add(total, amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

// HarvestForStakers harvests several stakers on one asset.
func (e *Engine) HarvestForStakers(stakers [][20]byte, symbol string) error {
	symbol = normalizeSymbol(symbol)
	if len(stakers) == 0 {
		return ErrLength
	}
	for _, s := range stakers {
		if isZeroAddr(s) {
			return ErrAddress
		}
	}
	return e.exec(true, func() error {
		for _, staker := range stakers {
			if _, err := e.harvestOne(symbol, staker); err != nil {
				return err
			}
		}
		return nil
	})
}

// AccrueYield settles every pool's debt and yield up to the current block.
func (e *Engine) AccrueYield() error {
	return e.exec(true, e.settleAll)
}

// SetInitialWeight assigns the whole emission to the beneficiary. It runs
// once, before any weight reaches an asset.
func (e *Engine) SetInitialWeight() error {
	return e.exec(true, func() error {
		params, err := e.loadParams()
		if err != nil {
			return err
		}
		if isZeroAddr(params.Beneficiary) {
			return ErrBeneficiaryUnset
		}
		y, err := e.loadYield()
		if err != nil {
			return err
		}
		if !y.BeneficiaryWeight.IsZero() {
			return ErrAlreadyInit
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
			if asset != nil && !asset.YieldWeight.IsZero() {
				return ErrAlreadyInit2
			}
		}
		if err := e.settleAll(); err != nil {
			return err
		}
		if y, err = e.loadYield(); err != nil {
			return err
		}
		y.BeneficiaryWeight = fixedpoint.Clone(fixedpoint.One)
		y.WeightsInitialized = true
		if err := e.putYield(y); err != nil {
			return err
		}
		e.emit(events.PoolWeightsSet{BeneficiaryWeight: y.BeneficiaryWeight, Initial: true})
		return nil
	})
}

// SetWeights redistributes emission across the listed assets and the
// beneficiary. Unlisted assets keep their weight. beneficiaryWeight may be
// WeightRemainder. The final distribution must sum to exactly one.
func (e *Engine) SetWeights(symbols []string, weights []*uint256.Int, beneficiaryWeight *uint256.Int) error {
	if len(symbols) == 0 || len(symbols) != len(weights) {
		return ErrLength
	}
	normalized, err := normalizeBatch(symbols)
	if err != nil {
		return err
	}
	for _, w := range weights {
		if w == nil {
			return ErrAmount
		}
	}
	if beneficiaryWeight == nil {
		beneficiaryWeight = WeightRemainder
	}
	return e.exec(true, func() error {
		for i, symbol := range normalized {
			asset, err := e.requireAsset(symbol)
			if err != nil {
				return err
			}
			if !weights[i].IsZero() && !asset.DepositEnabled {
				return fmt.Errorf("%w: %s", ErrDisabled, symbol)
			}
		}
		if err := e.settleAll(); err != nil {
			return err
		}

		list, err := e.assetList()
		if err != nil {
			return err
		}
		sum := new(uint256.Int)
		for _, symbol := range list {
			var w *uint256.Int
			if idx := indexOf(normalized, symbol); idx >= 0 {
				w = weights[idx]
			} else {
				asset, err := e.loadAsset(symbol)
				if err != nil {
					return err
				}
				if asset == nil {
					continue
				}
				w = asset.YieldWeight
			}
			if sum, err = fixedpoint.Add(sum, w); err != nil {
				return ErrSum
			}
		}
		bw := beneficiaryWeight
		if isRemainder(bw) {
			if sum.Gt(fixedpoint.One) {
				return ErrSum
			}
			bw = new(uint256.Int).Sub(fixedpoint.One, sum)
		} else {
			total, err := fixedpoint.Add(sum, bw)
			if err != nil || !total.Eq(fixedpoint.One) {
				return ErrSum
			}
		}
		if !bw.IsZero() {
			params, err := e.loadParams()
			if err != nil {
				return err
			}
			if isZeroAddr(params.Beneficiary) {
				return ErrBeneficiaryUnset
			}
		}

		for i, symbol := range normalized {
			asset, err := e.requireAsset(symbol)
			if err != nil {
				return err
			}
			asset.YieldWeight = fixedpoint.Clone(weights[i])
			if err := e.putAsset(asset); err != nil {
				return err
			}
		}
		y, err := e.loadYield()
		if err != nil {
			return err
		}
		y.BeneficiaryWeight = fixedpoint.Clone(bw)
		y.WeightsInitialized = true
		if err := e.putYield(y); err != nil {
			return err
		}
		e.emit(events.PoolWeightsSet{Assets: normalized, Weights: weights, BeneficiaryWeight: y.BeneficiaryWeight})
		return nil
	})
}

func indexOf(list []string, symbol string) int {
	for i, s := range list {
		if s == symbol {
			return i
		}
	}
	return -1
}

// underlyingFor values amount yield tokens against each asset's backing.
func (e *Engine) underlyingFor(amount *uint256.Int, supply *uint256.Int) ([]AssetAmount, error) {
	list, err := e.assetList()
	if err != nil {
		return nil, err
	}
	out := make([]AssetAmount, 0, len(list))
	for _, symbol := range list {
		asset, err := e.loadAsset(symbol)
		if err != nil {
			return nil, err
		}
		if asset == nil {
			continue
		}
		share := new(uint256.Int)
		if !supply.IsZero() {
			if share, err = fixedpoint.MulDiv(asset.YieldUnderlying, amount, supply); err != nil {
				return nil, err
			}
		}
		out = append(out, AssetAmount{Asset: symbol, Amount: share})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

// burnYield removes amount from supply and each asset's backing and returns
// the underlying released per asset.
func (e *Engine) burnYield(amount *uint256.Int) ([]AssetAmount, error) {
	y, err := e.loadYield()
	if err != nil {
		return nil, err
	}
	if y.TotalSupply.Lt(amount) {
		return nil, fmt.Errorf("%w: yield supply %s below %s", ErrInsufficientBalance, y.TotalSupply.Dec(), amount.Dec())
	}
	shares, err := e.underlyingFor(amount, y.TotalSupply)
	if err != nil {
		return nil, err
	}
	for _, share := range shares {
		if share.Amount.IsZero() {
			continue
		}
		asset, err := e.requireAsset(share.Asset)
		if err != nil {
			return nil, err
		}
		if asset.YieldUnderlying, err = fixedpoint.Sub(asset.YieldUnderlying, share.Amount); err != nil {
			return nil, err
		}
		if err := e.putAsset(asset); err != nil {
			return nil, err
		}
	}
	y.TotalSupply = new(uint256.Int).Sub(y.TotalSupply, amount)
	if err := e.putYield(y); err != nil {
		return nil, err
	}
	return shares, nil
}

// CalcUnderlying returns the underlying each asset would pay for amount yield
// tokens if redeemed in the current block. Backing only grows from the part
// of settled premium not credited to stakers (Params.StakersPremiumShare).
func (e *Engine) CalcUnderlying(amount *uint256.Int) ([]AssetAmount, error) {
	if !isPositive(amount) {
		return nil, ErrAmount
	}
	var out []AssetAmount
	err := e.exec(false, func() error {
		if err := e.settleAll(); err != nil {
			return err
		}
		y, err := e.loadYield()
		if err != nil {
			return err
		}
		if y.TotalSupply.Lt(amount) {
			return fmt.Errorf("%w: yield supply %s below %s", ErrInsufficientBalance, y.TotalSupply.Dec(), amount.Dec())
		}
		out, err = e.underlyingFor(amount, y.TotalSupply)
		return err
	})
	return out, err
}

// Redeem burns amount of the holder's yield tokens and pays the backing
// underlying of every asset to receiver. With StakersPremiumShare at 1 every
// asset's backing stays zero and the payout is zero while the burn still
// happens.
func (e *Engine) Redeem(holder [20]byte, amount *uint256.Int, receiver [20]byte) ([]AssetAmount, error) {
	if !isPositive(amount) {
		return nil, ErrAmount
	}
	if isZeroAddr(holder) {
		return nil, ErrAddress
	}
	if isZeroAddr(receiver) {
		return nil, ErrReceiver
	}
	var out []AssetAmount
	err := e.exec(true, func() error {
		if err := e.settleAll(); err != nil {
			return err
		}
		bal, err := e.yieldBalance(holder)
		if err != nil {
			return err
		}
		if bal.Lt(amount) {
			return fmt.Errorf("%w: yield balance %s below %s", ErrInsufficientBalance, bal.Dec(), amount.Dec())
		}
		if err := e.putYieldBalance(holder, new(uint256.Int).Sub(bal, amount)); err != nil {
			return err
		}
		shares, err := e.burnYield(amount)
		if err != nil {
			return err
		}
		evt := events.PoolYieldRedeemed{Holder: holder, Receiver: receiver, Amount: amount}
		for _, share := range shares {
			if err := e.state.Transfer(ModuleAccount[:], receiver[:], share.Asset, share.Amount); err != nil {
				return err
			}
			evt.Assets = append(evt.Assets, share.Asset)
			evt.Paid = append(evt.Paid, share.Amount)
		}
		e.emit(evt)
		out = shares
		return nil
	})
	return out, err
}

// TransferYield moves spendable yield tokens between accounts.
func (e *Engine) TransferYield(from, to [20]byte, amount *uint256.Int) error {
	if !isPositive(amount) {
		return ErrAmount
	}
	if isZeroAddr(from) {
		return ErrAddress
	}
	if isZeroAddr(to) {
		return ErrReceiver
	}
	return e.exec(true, func() error {
		fromBal, err := e.yieldBalance(from)
		if err != nil {
			return err
		}
		if fromBal.Lt(amount) {
			return fmt.Errorf("%w: yield balance %s below %s", ErrInsufficientBalance, fromBal.Dec(), amount.Dec())
		}
		if from == to {
			return nil
		}
		toBal, err := e.yieldBalance(to)
		if err != nil {
			return err
		}
		if toBal, err = fixedpoint.Add(toBal, amount); err != nil {
			return err
		}
		if err := e.putYieldBalance(from, new(uint256.Int).Sub(fromBal, amount)); err != nil {
			return err
		}
		if err := e.putYieldBalance(to, toBal); err != nil {
			return err
		}
		e.emit(events.PoolYieldTransferred{From: from, To: to, Amount: amount})
		return nil
	})
}
