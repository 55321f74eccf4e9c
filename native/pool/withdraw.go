package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"coverpool/core/events"
	"coverpool/native/fixedpoint"
)

// WithdrawStake burns claimAmount of the staker's claim units into a new
// withdrawal entry. The underlying is fixed at the current rate; the exit fee
// goes to first-money-out. It returns the entry index.
func (e *Engine) WithdrawStake(staker [20]byte, claimAmount *uint256.Int, symbol string) (uint64, error) {
	symbol = normalizeSymbol(symbol)
	if !isPositive(claimAmount) {
		return 0, ErrAmount
	}
	if isZeroAddr(staker) {
		return 0, ErrAddress
	}
	var index uint64
	err := e.exec(true, func() error {
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
		if pos.ClaimBalance.Lt(claimAmount) {
			return fmt.Errorf("%w: claim balance %s below %s", ErrInsufficientBalance, pos.ClaimBalance.Dec(), claimAmount.Dec())
		}
		if _, err := e.harvestPosition(asset, staker, pos); err != nil {
			return err
		}
		gross, err := underlyingOf(asset, claimAmount)
		if err != nil {
			return err
		}
		fee, err := fixedpoint.MulFrac(gross, asset.ExitFee)
		if err != nil {
			return err
		}
		net := new(uint256.Int).Sub(gross, fee)
		if asset.StakersBalance, err = fixedpoint.Sub(asset.StakersBalance, gross); err != nil {
			return err
		}
		if asset.FirstMoneyOut, err = fixedpoint.Add(asset.FirstMoneyOut, fee); err != nil {
			return err
		}
		if asset.PendingWithdrawals, err = fixedpoint.Add(asset.PendingWithdrawals, net); err != nil {
			return err
		}
		if err := burnClaims(asset, pos, claimAmount); err != nil {
			return err
		}

		queue, err := e.loadQueue(symbol, staker)
		if err != nil {
			return err
		}
		index = uint64(len(queue.Entries))
		queue.Entries = append(queue.Entries, WithdrawalEntry{
			RequestedAt: e.height,
			ClaimAmount: fixedpoint.Clone(claimAmount),
			Underlying:  net,
			Fee:         fee,
			Status:      WithdrawalActive,
		})
		if err := e.putQueue(symbol, staker, queue); err != nil {
			return err
		}
		if err := e.putPosition(symbol, staker, pos); err != nil {
			return err
		}
		if err := e.putAsset(asset); err != nil {
			return err
		}
		e.emit(events.PoolWithdrawal{
			Kind:           events.TypePoolWithdrawRequested,
			Staker:         staker,
			Actor:          staker,
			Asset:          symbol,
			Index:          index,
			Claim:          claimAmount,
			Underlying:     net,
			Fee:            fee,
			StakersBalance: asset.StakersBalance,
			FirstMoneyOut:  asset.FirstMoneyOut,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return index, nil
}

// activeEntry loads the queue and returns the addressed entry if it is still
// active.
func (e *Engine) activeEntry(symbol string, staker [20]byte, index uint64) (*WithdrawalQueue, *WithdrawalEntry, error) {
	queue, err := e.loadQueue(symbol, staker)
	if err != nil {
		return nil, nil, err
	}
	if index >= uint64(len(queue.Entries)) {
		return nil, nil, fmt.Errorf("%w: %d", ErrIndex, index)
	}
	entry := &queue.Entries[index]
	if entry.Status != WithdrawalActive {
		return nil, nil, fmt.Errorf("%w: entry %d is %s", ErrWithdrawNotActive, index, entry.Status)
	}
	return queue, entry, nil
}

func (e *Engine) phase(entry *WithdrawalEntry, params *Params) WithdrawalPhase {
	switch entry.Status {
	case WithdrawalClaimed:
		return PhaseClaimed
	case WithdrawalCancelled:
		return PhaseCancelled
	case WithdrawalPurged:
		return PhasePurged
	}
	unlock := addSat(entry.RequestedAt, params.TimelockBlocks)
	switch {
	case e.height < unlock:
		return PhaseLocked
	case e.height < addSat(unlock, params.ClaimWindowBlocks):
		return PhaseClaimable
	default:
		return PhaseExpired
	}
}

// WithdrawCancel returns a locked entry to the pool before its timelock ends.
// The exit fee is reversed out of first-money-out as far as it is still
// there, and claim units are re-minted at the current rate.
func (e *Engine) WithdrawCancel(staker [20]byte, index uint64, symbol string) (*uint256.Int, error) {
	symbol = normalizeSymbol(symbol)
	if isZeroAddr(staker) {
		return nil, ErrAddress
	}
	var minted *uint256.Int
	err := e.exec(true, func() error {
		if err := e.settleAsset(symbol); err != nil {
			return err
		}
		asset, err := e.requireAsset(symbol)
		if err != nil {
			return err
		}
		queue, entry, err := e.activeEntry(symbol, staker, index)
		if err != nil {
			return err
		}
		params, err := e.loadParams()
		if err != nil {
			return err
		}
		if e.phase(entry, params) != PhaseLocked {
			return ErrTimelockExpired
		}
		pos, err := e.loadPosition(symbol, staker)
		if err != nil {
			return err
		}
		if _, err := e.harvestPosition(asset, staker, pos); err != nil {
			return err
		}

		refund := fixedpoint.Min(entry.Fee, asset.FirstMoneyOut)
		asset.FirstMoneyOut = new(uint256.Int).Sub(asset.FirstMoneyOut, refund)
		value, err := fixedpoint.Add(entry.Underlying, refund)
		if err != nil {
			return err
		}
		if asset.ClaimSupply.IsZero() {
			minted = fixedpoint.Clone(entry.ClaimAmount)
		} else if minted, err = claimsFor(asset, value); err != nil {
			return err
		}
		if asset.PendingWithdrawals, err = fixedpoint.Sub(asset.PendingWithdrawals, entry.Underlying); err != nil {
			return err
		}
		if asset.StakersBalance, err = fixedpoint.Add(asset.StakersBalance, value); err != nil {
			return err
		}
		if !minted.IsZero() {
			if err := mintClaims(asset, pos, minted); err != nil {
				return err
			}
		}
		entry.Status = WithdrawalCancelled
		queue.advance()
		if err := e.putQueue(symbol, staker, queue); err != nil {
			return err
		}
		if err := e.putPosition(symbol, staker, pos); err != nil {
			return err
		}
		if err := e.putAsset(asset); err != nil {
			return err
		}
		e.emit(events.PoolWithdrawal{
			Kind:           events.TypePoolWithdrawCancelled,
			Staker:         staker,
			Actor:          staker,
			Asset:          symbol,
			Index:          index,
			Claim:          minted,
			Underlying:     value,
			Fee:            refund,
			StakersBalance: asset.StakersBalance,
			FirstMoneyOut:  asset.FirstMoneyOut,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// WithdrawClaim pays a matured entry to receiver. It is valid from the end of
// the timelock until the claim window closes.
func (e *Engine) WithdrawClaim(staker [20]byte, index uint64, receiver [20]byte, symbol string) (*uint256.Int, error) {
	symbol = normalizeSymbol(symbol)
	if isZeroAddr(staker) {
		return nil, ErrAddress
	}
	if isZeroAddr(receiver) {
		return nil, ErrReceiver
	}
	var paid *uint256.Int
	err := e.exec(true, func() error {
		if err := e.settleAsset(symbol); err != nil {
			return err
		}
		asset, err := e.requireAsset(symbol)
		if err != nil {
			return err
		}
		queue, entry, err := e.activeEntry(symbol, staker, index)
		if err != nil {
			return err
		}
		params, err := e.loadParams()
		if err != nil {
			return err
		}
		switch e.phase(entry, params) {
		case PhaseLocked:
			return ErrTimelockActive
		case PhaseExpired:
			return ErrClaimPeriodExpired
		}
		if asset.PendingWithdrawals, err = fixedpoint.Sub(asset.PendingWithdrawals, entry.Underlying); err != nil {
			return err
		}
		if err := e.state.Transfer(ModuleAccount[:], receiver[:], symbol, entry.Underlying); err != nil {
			return err
		}
		paid = fixedpoint.Clone(entry.Underlying)
		entry.Status = WithdrawalClaimed
		queue.advance()
		if err := e.putQueue(symbol, staker, queue); err != nil {
			return err
		}
		if err := e.putAsset(asset); err != nil {
			return err
		}
		e.emit(events.PoolWithdrawal{
			Kind:           events.TypePoolWithdrawClaimed,
			Staker:         staker,
			Actor:          receiver,
			Asset:          symbol,
			Index:          index,
			Underlying:     paid,
			StakersBalance: asset.StakersBalance,
			FirstMoneyOut:  asset.FirstMoneyOut,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// WithdrawPurge forfeits an entry whose claim window has closed. Anyone may
// call it; the entry's underlying returns to the remaining stakers.
func (e *Engine) WithdrawPurge(caller, staker [20]byte, index uint64, symbol string) (*uint256.Int, error) {
	symbol = normalizeSymbol(symbol)
	if isZeroAddr(staker) {
		return nil, ErrAddress
	}
	var returned *uint256.Int
	err := e.exec(true, func() error {
		if err := e.settleAsset(symbol); err != nil {
			return err
		}
		asset, err := e.requireAsset(symbol)
		if err != nil {
			return err
		}
		queue, entry, err := e.activeEntry(symbol, staker, index)
		if err != nil {
			return err
		}
		params, err := e.loadParams()
		if err != nil {
			return err
		}
		switch e.phase(entry, params) {
		case PhaseLocked:
			return ErrTimelockActive
		case PhaseClaimable:
			return ErrClaimPeriodActive
		}
		if asset.PendingWithdrawals, err = fixedpoint.Sub(asset.PendingWithdrawals, entry.Underlying); err != nil {
			return err
		}
		if asset.StakersBalance, err = fixedpoint.Add(asset.StakersBalance, entry.Underlying); err != nil {
			return err
		}
		returned = fixedpoint.Clone(entry.Underlying)
		entry.Status = WithdrawalPurged
		queue.advance()
		if err := e.putQueue(symbol, staker, queue); err != nil {
			return err
		}
		if err := e.putAsset(asset); err != nil {
			return err
		}
		e.emit(events.PoolWithdrawal{
			Kind:           events.TypePoolWithdrawPurged,
			Staker:         staker,
			Actor:          caller,
			Asset:          symbol,
			Index:          index,
			Underlying:     returned,
			StakersBalance: asset.StakersBalance,
			FirstMoneyOut:  asset.FirstMoneyOut,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return returned, nil
}
