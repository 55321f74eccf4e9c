package pool

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"coverpool/core/events"
	"coverpool/native/fixedpoint"
)

// Payout compensates receiver from each listed asset. Per asset it draws
// firstMoneyOut first, then the stakers pool (diluting every claim holder),
// then unallocated yield, which is redeemed into underlying across all
// backing assets. The batch is applied entirely or not at all.
func (e *Engine) Payout(receiver [20]byte, symbols []string, firstMoneyOut, stakersPool, unallocatedYield []*uint256.Int) error {
	if isZeroAddr(receiver) {
		return ErrReceiver
	}
	n := len(symbols)
	if n == 0 || len(firstMoneyOut) != n || len(stakersPool) != n || len(unallocatedYield) != n {
		return ErrLength
	}
	normalized, err := normalizeBatch(symbols)
	if err != nil {
		return err
	}
	amount := func(v *uint256.Int) *uint256.Int { return fixedpoint.Clone(v) }
	return e.exec(true, func() error {
		for _, symbol := range normalized {
			if _, err := e.requireAsset(symbol); err != nil {
				return err
			}
		}
		if err := e.settleAll(); err != nil {
			return err
		}

		owed := make(map[string]*uint256.Int)
		credit := func(symbol string, v *uint256.Int) error {
			if v.IsZero() {
				return nil
			}
			cur, ok := owed[symbol]
			if !ok {
				cur = new(uint256.Int)
			}
			next, err := fixedpoint.Add(cur, v)
			if err != nil {
				return err
			}
			owed[symbol] = next
			return nil
		}

		for i, symbol := range normalized {
			fmo, stake, yield := amount(firstMoneyOut[i]), amount(stakersPool[i]), amount(unallocatedYield[i])
			asset, err := e.requireAsset(symbol)
			if err != nil {
				return err
			}
			if asset.FirstMoneyOut.Lt(fmo) {
				return fmt.Errorf("%w: %s first-money-out %s below %s", ErrInsufficientBalance, symbol, asset.FirstMoneyOut.Dec(), fmo.Dec())
			}
			if asset.StakersBalance.Lt(stake) {
				return fmt.Errorf("%w: %s stakers balance %s below %s", ErrInsufficientBalance, symbol, asset.StakersBalance.Dec(), stake.Dec())
			}
			if asset.UnallocatedYield.Lt(yield) {
				return fmt.Errorf("%w: %s unallocated yield %s below %s", ErrInsufficientBalance, symbol, asset.UnallocatedYield.Dec(), yield.Dec())
			}
			asset.FirstMoneyOut = new(uint256.Int).Sub(asset.FirstMoneyOut, fmo)
			asset.StakersBalance = new(uint256.Int).Sub(asset.StakersBalance, stake)
			asset.UnallocatedYield = new(uint256.Int).Sub(asset.UnallocatedYield, yield)
			asset.HarvestWeight = fixedpoint.SubFloor(asset.HarvestWeight, yield)
			if err := e.putAsset(asset); err != nil {
				return err
			}
			if err := credit(symbol, fmo); err != nil {
				return err
			}
			if err := credit(symbol, stake); err != nil {
				return err
			}
			if !yield.IsZero() {
				shares, err := e.burnYield(yield)
				if err != nil {
					return err
				}
				for _, share := range shares {
					if err := credit(share.Asset, share.Amount); err != nil {
						return err
					}
				}
			}
			e.emit(events.PoolPayout{
				Receiver:         receiver,
				Asset:            symbol,
				FirstMoneyOut:    fmo,
				StakersPool:      stake,
				UnallocatedYield: yield,
				StakersBalance:   asset.StakersBalance,
			})
		}

		paid := make([]string, 0, len(owed))
		for symbol := range owed {
			paid = append(paid, symbol)
		}
		sort.Strings(paid)
		for _, symbol := range paid {
			if err := e.state.Transfer(ModuleAccount[:], receiver[:], symbol, owed[symbol]); err != nil {
				return err
			}
		}
		return nil
	})
}
