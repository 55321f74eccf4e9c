package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"coverpool/core/events"
	"coverpool/native/fixedpoint"
)

// SetProtocolPremiums sets the protocol's per-block premium on each listed
// asset. usdPrices may be nil; when given it also replaces the stored price
// of each asset. Debt and yield are settled at the old rates first.
func (e *Engine) SetProtocolPremiums(protocol [32]byte, symbols []string, premiums []*uint256.Int, usdPrices []*uint256.Int) error {
	if len(symbols) == 0 || len(symbols) != len(premiums) {
		return ErrLength
	}
	if usdPrices != nil && len(usdPrices) != len(symbols) {
		return ErrLength
	}
	normalized, err := normalizeBatch(symbols)
	if err != nil {
		return err
	}
	for i := range premiums {
		if premiums[i] == nil || (usdPrices != nil && usdPrices[i] == nil) {
			return ErrAmount
		}
	}
	return e.exec(true, func() error {
		if _, err := e.requireProtocol(protocol); err != nil {
			return err
		}
		for _, symbol := range normalized {
			asset, err := e.requireAsset(symbol)
			if err != nil {
				return err
			}
			if !asset.PremiumsEnabled {
				return fmt.Errorf("%w: %s", ErrDisabled, symbol)
			}
			stream, err := e.loadStream(protocol, symbol)
			if err != nil {
				return err
			}
			if !stream.Whitelisted {
				return fmt.Errorf("%w: %s", ErrWhitelist, symbol)
			}
		}
		if err := e.settleAll(); err != nil {
			return err
		}
		for i, symbol := range normalized {
			asset, err := e.requireAsset(symbol)
			if err != nil {
				return err
			}
			stream, err := e.loadStream(protocol, symbol)
			if err != nil {
				return err
			}
			total, err := fixedpoint.Sub(asset.TotalPremiumPerBlock, stream.PremiumPerBlock)
			if err != nil {
				return err
			}
			if asset.TotalPremiumPerBlock, err = fixedpoint.Add(total, premiums[i]); err != nil {
				return err
			}
			stream.PremiumPerBlock = fixedpoint.Clone(premiums[i])
			if usdPrices != nil {
				asset.StoredUSD = fixedpoint.Clone(usdPrices[i])
			}
			if err := e.putStream(protocol, symbol, stream); err != nil {
				return err
			}
			if err := e.putAsset(asset); err != nil {
				return err
			}
		}
		if err := e.recomputeYieldPerBlock(); err != nil {
			return err
		}
		y, err := e.loadYield()
		if err != nil {
			return err
		}
		for i, symbol := range normalized {
			asset, err := e.requireAsset(symbol)
			if err != nil {
				return err
			}
			evt := events.PoolPremiumSet{
				Protocol:      protocol,
				Asset:         symbol,
				Premium:       premiums[i],
				TotalPremium:  asset.TotalPremiumPerBlock,
				YieldPerBlock: y.YieldPerBlock,
			}
			if usdPrices != nil {
				evt.USDPrice = usdPrices[i]
			}
			e.emit(evt)
		}
		return nil
	})
}

// SetTokenPrice replaces the stored USD price of each listed asset.
func (e *Engine) SetTokenPrice(symbols []string, usdPrices []*uint256.Int) error {
	if len(symbols) == 0 || len(symbols) != len(usdPrices) {
		return ErrLength
	}
	normalized, err := normalizeBatch(symbols)
	if err != nil {
		return err
	}
	for _, p := range usdPrices {
		if p == nil {
			return ErrAmount
		}
	}
	return e.exec(true, func() error {
		for _, symbol := range normalized {
			if _, err := e.requireAsset(symbol); err != nil {
				return err
			}
		}
		if err := e.settleAll(); err != nil {
			return err
		}
		for i, symbol := range normalized {
			asset, err := e.requireAsset(symbol)
			if err != nil {
				return err
			}
			asset.StoredUSD = fixedpoint.Clone(usdPrices[i])
			if err := e.putAsset(asset); err != nil {
				return err
			}
		}
		if err := e.recomputeYieldPerBlock(); err != nil {
			return err
		}
		y, err := e.loadYield()
		if err != nil {
			return err
		}
		for i, symbol := range normalized {
			e.emit(events.PoolPriceSet{Asset: symbol, USDPrice: usdPrices[i], YieldPerBlock: y.YieldPerBlock})
		}
		return nil
	})
}

// DepositProtocolBalance tops up a protocol's prepaid balance on an asset.
func (e *Engine) DepositProtocolBalance(payer [20]byte, protocol [32]byte, symbol string, amount *uint256.Int) error {
	symbol = normalizeSymbol(symbol)
	if !isPositive(amount) {
		return ErrAmount
	}
	if isZeroAddr(payer) {
		return ErrAddress
	}
	return e.exec(true, func() error {
		if _, err := e.requireProtocol(protocol); err != nil {
			return err
		}
		if _, err := e.requireAsset(symbol); err != nil {
			return err
		}
		stream, err := e.loadStream(protocol, symbol)
		if err != nil {
			return err
		}
		if !stream.Whitelisted {
			return fmt.Errorf("%w: %s", ErrWhitelist, symbol)
		}
		if err := e.payOffDebt(symbol); err != nil {
			return err
		}
		if stream, err = e.loadStream(protocol, symbol); err != nil {
			return err
		}
		if err := e.state.Transfer(payer[:], ModuleAccount[:], symbol, amount); err != nil {
			return err
		}
		if stream.Balance, err = fixedpoint.Add(stream.Balance, amount); err != nil {
			return err
		}
		if err := e.putStream(protocol, symbol, stream); err != nil {
			return err
		}
		e.emit(events.PoolProtocolBalance{Protocol: protocol, Asset: symbol, Actor: payer, Deposit: true, Amount: amount, Balance: stream.Balance})
		return nil
	})
}

// WithdrawProtocolBalance returns prepaid balance to receiver. Only the
// protocol's agent may call it, and only from what remains after debt is
// settled to the current block.
func (e *Engine) WithdrawProtocolBalance(caller [20]byte, protocol [32]byte, symbol string, amount *uint256.Int, receiver [20]byte) error {
	symbol = normalizeSymbol(symbol)
	if !isPositive(amount) {
		return ErrAmount
	}
	if isZeroAddr(receiver) {
		return ErrReceiver
	}
	return e.exec(true, func() error {
		p, err := e.requireProtocol(protocol)
		if err != nil {
			return err
		}
		if isZeroAddr(caller) || caller != p.Agent {
			return ErrUnauthorized
		}
		if _, err := e.requireAsset(symbol); err != nil {
			return err
		}
		if err := e.payOffDebt(symbol); err != nil {
			return err
		}
		stream, err := e.loadStream(protocol, symbol)
		if err != nil {
			return err
		}
		if stream.Balance.Lt(amount) {
			return fmt.Errorf("%w: protocol balance %s below %s", ErrInsufficientBalance, stream.Balance.Dec(), amount.Dec())
		}
		stream.Balance = new(uint256.Int).Sub(stream.Balance, amount)
		if err := e.putStream(protocol, symbol, stream); err != nil {
			return err
		}
		if err := e.state.Transfer(ModuleAccount[:], receiver[:], symbol, amount); err != nil {
			return err
		}
		e.emit(events.PoolProtocolBalance{Protocol: protocol, Asset: symbol, Actor: caller, Amount: amount, Balance: stream.Balance})
		return nil
	})
}

// PayOffDebtAll settles every protocol's debt on the asset up to the current
// block.
func (e *Engine) PayOffDebtAll(symbol string) error {
	symbol = normalizeSymbol(symbol)
	return e.exec(true, func() error {
		return e.payOffDebt(symbol)
	})
}

func normalizeBatch(symbols []string) ([]string, error) {
	out := make([]string, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for i, s := range symbols {
		out[i] = normalizeSymbol(s)
		if out[i] == "" {
			return nil, fmt.Errorf("%w: empty asset", ErrInit)
		}
		if _, dup := seen[out[i]]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, out[i])
		}
		seen[out[i]] = struct{}{}
	}
	return out, nil
}
