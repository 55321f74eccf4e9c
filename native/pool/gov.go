package pool

import (
	"fmt"
	"strconv"

	"github.com/holiman/uint256"

	"coverpool/core/events"
	"coverpool/native/fixedpoint"
)

// AssetSpec describes a new pool.
type AssetSpec struct {
	Symbol          string
	Governor        [20]byte
	ClaimTokenID    string
	DepositEnabled  bool
	PremiumsEnabled bool
	ExitFee         *uint256.Int
	USDPrice        *uint256.Int
}

// AssetAdd initializes a pool for a registered token.
func (e *Engine) AssetAdd(spec AssetSpec) error {
	symbol := normalizeSymbol(spec.Symbol)
	if symbol == "" {
		return fmt.Errorf("%w: empty asset", ErrInit)
	}
	if isZeroAddr(spec.Governor) {
		return ErrAddress
	}
	if spec.ExitFee != nil && spec.ExitFee.Gt(fixedpoint.One) {
		return ErrFee
	}
	return e.exec(true, func() error {
		if !e.state.TokenExists(symbol) {
			return fmt.Errorf("%w: %s", ErrToken, symbol)
		}
		existing, err := e.loadAsset(symbol)
		if err != nil {
			return err
		}
		if existing != nil && existing.Initialized {
			return fmt.Errorf("%w: asset %s", ErrDuplicate, symbol)
		}
		claimID := spec.ClaimTokenID
		if claimID == "" {
			claimID = "lock" + symbol
		}
		asset := &Asset{
			Symbol:               symbol,
			Initialized:          true,
			DepositEnabled:       spec.DepositEnabled,
			PremiumsEnabled:      spec.PremiumsEnabled,
			ClaimTokenID:         claimID,
			Governor:             spec.Governor,
			ExitFee:              fixedpoint.Clone(spec.ExitFee),
			StoredUSD:            fixedpoint.Clone(spec.USDPrice),
			YieldLastAccrued:     e.height,
			TotalPremiumLastPaid: e.height,
		}
		if err := e.putAsset(asset); err != nil {
			return err
		}
		list, err := e.assetList()
		if err != nil {
			return err
		}
		if err := e.putAssetList(append(list, symbol)); err != nil {
			return err
		}
		e.emit(events.PoolAssetChanged{Asset: symbol, Action: "added", Value: claimID})
		return nil
	})
}

// AssetDisableDeposits stops new stakes. Withdrawals keep working. The asset
// must carry no yield weight.
func (e *Engine) AssetDisableDeposits(symbol string) error {
	symbol = normalizeSymbol(symbol)
	return e.exec(true, func() error {
		asset, err := e.requireAsset(symbol)
		if err != nil {
			return err
		}
		if !asset.YieldWeight.IsZero() {
			return ErrActiveWeight
		}
		asset.DepositEnabled = false
		if err := e.putAsset(asset); err != nil {
			return err
		}
		e.emit(events.PoolAssetChanged{Asset: symbol, Action: "depositsDisabled"})
		return nil
	})
}

// AssetDisablePremiums stops new premium streams on the asset. Every
// protocol must be removed from it first.
func (e *Engine) AssetDisablePremiums(symbol string) error {
	symbol = normalizeSymbol(symbol)
	return e.exec(true, func() error {
		if err := e.settleAsset(symbol); err != nil {
			return err
		}
		asset, err := e.requireAsset(symbol)
		if err != nil {
			return err
		}
		if len(asset.Protocols) > 0 || !asset.TotalPremiumPerBlock.IsZero() {
			return ErrActiveProtocols
		}
		asset.PremiumsEnabled = false
		if err := e.putAsset(asset); err != nil {
			return err
		}
		e.emit(events.PoolAssetChanged{Asset: symbol, Action: "premiumsDisabled"})
		return nil
	})
}

// AssetRemove destroys an emptied, disabled pool. Remaining first-money-out
// is paid to receiver in underlying; unallocated yield is credited to
// receiver's yield balance.
func (e *Engine) AssetRemove(symbol string, receiver [20]byte) error {
	symbol = normalizeSymbol(symbol)
	if isZeroAddr(receiver) {
		return ErrReceiver
	}
	return e.exec(true, func() error {
		if err := e.settleAll(); err != nil {
			return err
		}
		asset, err := e.requireAsset(symbol)
		if err != nil {
			return err
		}
		switch {
		case asset.DepositEnabled || asset.PremiumsEnabled:
			return ErrStillEnabled
		case !asset.YieldWeight.IsZero():
			return ErrActiveWeight
		case len(asset.Protocols) > 0:
			return ErrActiveProtocols
		case !asset.ClaimSupply.IsZero():
			return ErrSupply
		case !asset.StakersBalance.IsZero(), !asset.PendingWithdrawals.IsZero(), !asset.YieldUnderlying.IsZero():
			return ErrBalance
		}
		if err := e.state.Transfer(ModuleAccount[:], receiver[:], symbol, asset.FirstMoneyOut); err != nil {
			return err
		}
		if !asset.UnallocatedYield.IsZero() {
			bal, err := e.yieldBalance(receiver)
			if err != nil {
				return err
			}
			if bal, err = fixedpoint.Add(bal, asset.UnallocatedYield); err != nil {
				return err
			}
			if err := e.putYieldBalance(receiver, bal); err != nil {
				return err
			}
		}
		if err := e.state.KVDelete(assetKey(symbol)); err != nil {
			return err
		}
		list, err := e.assetList()
		if err != nil {
			return err
		}
		out := list[:0]
		for _, s := range list {
			if s != symbol {
				out = append(out, s)
			}
		}
		if err := e.putAssetList(out); err != nil {
			return err
		}
		e.emit(events.PoolAssetChanged{Asset: symbol, Action: "removed", Value: asset.FirstMoneyOut.Dec()})
		return nil
	})
}

// SetExitFee sets the fraction of withdrawn underlying kept as
// first-money-out.
func (e *Engine) SetExitFee(symbol string, fee *uint256.Int) error {
	symbol = normalizeSymbol(symbol)
	if fee == nil || fee.Gt(fixedpoint.One) {
		return ErrFee
	}
	return e.exec(true, func() error {
		asset, err := e.requireAsset(symbol)
		if err != nil {
			return err
		}
		asset.ExitFee = fixedpoint.Clone(fee)
		if err := e.putAsset(asset); err != nil {
			return err
		}
		e.emit(events.PoolAssetChanged{Asset: symbol, Action: "exitFee", Value: fee.Dec()})
		return nil
	})
}

// ProtocolAdd registers a covered protocol and whitelists it on each asset.
func (e *Engine) ProtocolAdd(id [32]byte, manager, agent [20]byte, symbols []string) error {
	if id == ([32]byte{}) {
		return ErrProtocol
	}
	if isZeroAddr(manager) || isZeroAddr(agent) {
		return ErrAddress
	}
	normalized, err := normalizeBatch(symbols)
	if err != nil {
		return err
	}
	return e.exec(true, func() error {
		existing, err := e.loadProtocol(id)
		if err != nil {
			return err
		}
		if existing != nil && existing.Covered {
			return fmt.Errorf("%w: protocol %x", ErrDuplicate, id[:])
		}
		p := &Protocol{ID: id, Covered: true, Manager: manager, Agent: agent}
		if err := e.whitelist(p, normalized); err != nil {
			return err
		}
		e.emit(events.PoolProtocolChanged{Protocol: id, Action: "added", Manager: manager, Agent: agent, Assets: normalized})
		return nil
	})
}

// ProtocolDepositAdd whitelists an existing protocol on more assets.
func (e *Engine) ProtocolDepositAdd(id [32]byte, symbols []string) error {
	if len(symbols) == 0 {
		return ErrLength
	}
	normalized, err := normalizeBatch(symbols)
	if err != nil {
		return err
	}
	return e.exec(true, func() error {
		p, err := e.requireProtocol(id)
		if err != nil {
			return err
		}
		if err := e.whitelist(p, normalized); err != nil {
			return err
		}
		e.emit(events.PoolProtocolChanged{Protocol: id, Action: "assetsAdded", Assets: normalized})
		return nil
	})
}

func (e *Engine) whitelist(p *Protocol, symbols []string) error {
	for _, symbol := range symbols {
		asset, err := e.requireAsset(symbol)
		if err != nil {
			return err
		}
		if !asset.PremiumsEnabled {
			return fmt.Errorf("%w: %s", ErrDisabled, symbol)
		}
		if p.hasAsset(symbol) {
			return fmt.Errorf("%w: %s", ErrDuplicate, symbol)
		}
		stream, err := e.loadStream(p.ID, symbol)
		if err != nil {
			return err
		}
		stream.Whitelisted = true
		if err := e.putStream(p.ID, symbol, stream); err != nil {
			return err
		}
		if !asset.hasProtocol(p.ID) {
			asset.Protocols = append(asset.Protocols, p.ID)
		}
		if err := e.putAsset(asset); err != nil {
			return err
		}
		p.Assets = append(p.Assets, symbol)
	}
	return e.putProtocol(p)
}

// ProtocolUpdate replaces the protocol's manager and agent.
func (e *Engine) ProtocolUpdate(id [32]byte, manager, agent [20]byte) error {
	if isZeroAddr(manager) || isZeroAddr(agent) {
		return ErrAddress
	}
	return e.exec(true, func() error {
		p, err := e.requireProtocol(id)
		if err != nil {
			return err
		}
		p.Manager = manager
		p.Agent = agent
		if err := e.putProtocol(p); err != nil {
			return err
		}
		e.emit(events.PoolProtocolChanged{Protocol: id, Action: "updated", Manager: manager, Agent: agent})
		return nil
	})
}

// ProtocolRemove uncovers a protocol. Its premiums must already be zero; any
// prepaid balance left after settlement is refunded to the agent.
func (e *Engine) ProtocolRemove(id [32]byte) error {
	return e.exec(true, func() error {
		p, err := e.requireProtocol(id)
		if err != nil {
			return err
		}
		for _, symbol := range p.Assets {
			if err := e.payOffDebt(symbol); err != nil {
				return err
			}
			stream, err := e.loadStream(id, symbol)
			if err != nil {
				return err
			}
			if !stream.PremiumPerBlock.IsZero() {
				return fmt.Errorf("%w: %s", ErrDebt, symbol)
			}
			if err := e.state.Transfer(ModuleAccount[:], p.Agent[:], symbol, stream.Balance); err != nil {
				return err
			}
			if err := e.state.KVDelete(streamKey(id, symbol)); err != nil {
				return err
			}
			asset, err := e.requireAsset(symbol)
			if err != nil {
				return err
			}
			asset.removeProtocol(id)
			if err := e.putAsset(asset); err != nil {
				return err
			}
		}
		if err := e.state.KVDelete(protocolKey(id)); err != nil {
			return err
		}
		e.emit(events.PoolProtocolChanged{Protocol: id, Action: "removed", Agent: p.Agent, Assets: p.Assets})
		return nil
	})
}

// SetTimelock sets the withdrawal cooldown in blocks.
func (e *Engine) SetTimelock(blocks uint64) error {
	return e.updateParams("timelockBlocks", strconv.FormatUint(blocks, 10), false, func(p *Params) error {
		p.TimelockBlocks = blocks
		return nil
	})
}

// SetClaimWindow sets how many blocks a matured entry stays claimable.
func (e *Engine) SetClaimWindow(blocks uint64) error {
	if blocks == 0 {
		return ErrAmount
	}
	return e.updateParams("claimWindowBlocks", strconv.FormatUint(blocks, 10), false, func(p *Params) error {
		p.ClaimWindowBlocks = blocks
		return nil
	})
}

// SetBeneficiary changes the account that receives the beneficiary weight.
// Yield accrued so far is credited to the previous beneficiary.
func (e *Engine) SetBeneficiary(addr [20]byte) error {
	if isZeroAddr(addr) {
		return ErrAddress
	}
	return e.updateParams("beneficiary", fmt.Sprintf("%x", addr[:]), true, func(p *Params) error {
		p.Beneficiary = addr
		return nil
	})
}

// SetStakersPremiumShare sets the fraction of settled premium credited to
// stakers; the rest backs yield tokens.
func (e *Engine) SetStakersPremiumShare(share *uint256.Int) error {
	if share == nil || share.Gt(fixedpoint.One) {
		return ErrFee
	}
	return e.updateParams("stakersPremiumShare", share.Dec(), true, func(p *Params) error {
		p.StakersPremiumShare = fixedpoint.Clone(share)
		return nil
	})
}

func (e *Engine) updateParams(field, value string, settle bool, apply func(*Params) error) error {
	return e.exec(true, func() error {
		if settle {
			if err := e.settleAll(); err != nil {
				return err
			}
		}
		params, err := e.loadParams()
		if err != nil {
			return err
		}
		if err := apply(params); err != nil {
			return err
		}
		if err := e.putParams(params); err != nil {
			return err
		}
		e.emit(events.PoolParamsUpdated{Field: field, Value: value})
		return nil
	})
}
