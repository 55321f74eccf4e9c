package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"coverpool/core/events"
	"coverpool/native/fixedpoint"
)

// claimsFor converts underlying into claim units at the pool's current rate.
// An empty pool mints 1:1.
func claimsFor(asset *Asset, underlying *uint256.Int) (*uint256.Int, error) {
	if asset.ClaimSupply.IsZero() {
		return fixedpoint.Clone(underlying), nil
	}
	if asset.StakersBalance.IsZero() {
		return nil, ErrPoolDrained
	}
	return fixedpoint.MulDiv(underlying, asset.ClaimSupply, asset.StakersBalance)
}

// underlyingOf converts claim units into underlying at the current rate.
func underlyingOf(asset *Asset, claims *uint256.Int) (*uint256.Int, error) {
	if asset.ClaimSupply.IsZero() {
		return nil, ErrNoStake
	}
	return fixedpoint.MulDiv(claims, asset.StakersBalance, asset.ClaimSupply)
}

// Stake moves amount of the asset from staker into the pool and mints claim
// units to receiver. It returns the claim units minted.
func (e *Engine) Stake(staker [20]byte, amount *uint256.Int, receiver [20]byte, symbol string) (*uint256.Int, error) {
	symbol = normalizeSymbol(symbol)
	if !isPositive(amount) {
		return nil, ErrAmount
	}
	if isZeroAddr(staker) {
		return nil, ErrAddress
	}
	if isZeroAddr(receiver) {
		return nil, ErrReceiver
	}
	var minted *uint256.Int
	err := e.exec(true, func() error {
		asset, err := e.requireAsset(symbol)
		if err != nil {
			return err
		}
		if !asset.DepositEnabled {
			return fmt.Errorf("%w: %s", ErrDisabled, symbol)
		}
		if err := e.settleAsset(symbol); err != nil {
			return err
		}
		if asset, err = e.requireAsset(symbol); err != nil {
			return err
		}
		pos, err := e.loadPosition(symbol, receiver)
		if err != nil {
			return err
		}
		if _, err := e.harvestPosition(asset, receiver, pos); err != nil {
			return err
		}
		if minted, err = claimsFor(asset, amount); err != nil {
			return err
		}
		if minted.IsZero() {
			return fmt.Errorf("%w: stake too small to mint a claim unit", ErrAmount)
		}
		if err := e.state.Transfer(staker[:], ModuleAccount[:], symbol, amount); err != nil {
			return err
		}
		if asset.StakersBalance, err = fixedpoint.Add(asset.StakersBalance, amount); err != nil {
			return err
		}
		if err := mintClaims(asset, pos, minted); err != nil {
			return err
		}
		if err := e.putPosition(symbol, receiver, pos); err != nil {
			return err
		}
		if err := e.putAsset(asset); err != nil {
			return err
		}
		e.emit(events.PoolStaked{
			Staker:         staker,
			Receiver:       receiver,
			Asset:          symbol,
			Amount:         amount,
			Minted:         minted,
			StakersBalance: asset.StakersBalance,
			ClaimSupply:    asset.ClaimSupply,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// TransferClaim moves claim units between holders, harvesting both first.
func (e *Engine) TransferClaim(from, to [20]byte, amount *uint256.Int, symbol string) error {
	symbol = normalizeSymbol(symbol)
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
		if err := e.settleAsset(symbol); err != nil {
			return err
		}
		asset, err := e.requireAsset(symbol)
		if err != nil {
			return err
		}
		fromPos, err := e.loadPosition(symbol, from)
		if err != nil {
			return err
		}
		if fromPos.ClaimBalance.Lt(amount) {
			return fmt.Errorf("%w: claim balance %s below %s", ErrInsufficientBalance, fromPos.ClaimBalance.Dec(), amount.Dec())
		}
		if from == to {
			return nil
		}
		toPos, err := e.loadPosition(symbol, to)
		if err != nil {
			return err
		}
		if _, err := e.harvestPosition(asset, from, fromPos); err != nil {
			return err
		}
		if _, err := e.harvestPosition(asset, to, toPos); err != nil {
			return err
		}
		fromPos.ClaimBalance = new(uint256.Int).Sub(fromPos.ClaimBalance, amount)
		if toPos.ClaimBalance, err = fixedpoint.Add(toPos.ClaimBalance, amount); err != nil {
			return err
		}
		if err := rebaseWithdrawn(asset, fromPos); err != nil {
			return err
		}
		if err := rebaseWithdrawn(asset, toPos); err != nil {
			return err
		}
		if err := e.putPosition(symbol, from, fromPos); err != nil {
			return err
		}
		if err := e.putPosition(symbol, to, toPos); err != nil {
			return err
		}
		if err := e.putAsset(asset); err != nil {
			return err
		}
		e.emit(events.PoolClaimTransferred{From: from, To: to, Asset: symbol, Amount: amount})
		return nil
	})
}
