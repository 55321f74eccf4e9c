package pool

import (
	"fmt"

	"github.com/holiman/uint256"
)

var (
	assetListKey = []byte("pool/assets")
	yieldKey     = []byte("pool/yield")
	paramsKey    = []byte("pool/params")
	clockKey     = []byte("pool/clock")
)

func assetKey(symbol string) []byte {
	return []byte(fmt.Sprintf("pool/asset/%s", symbol))
}

func positionKey(symbol string, staker [20]byte) []byte {
	return []byte(fmt.Sprintf("pool/staker/%s/%x", symbol, staker[:]))
}

func protocolKey(id [32]byte) []byte {
	return []byte(fmt.Sprintf("pool/protocol/%x", id[:]))
}

func streamKey(id [32]byte, symbol string) []byte {
	return []byte(fmt.Sprintf("pool/premium/%s/%x", symbol, id[:]))
}

func withdrawalKey(symbol string, staker [20]byte) []byte {
	return []byte(fmt.Sprintf("pool/withdraw/%s/%x", symbol, staker[:]))
}

func yieldBalanceKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("pool/yield/balance/%x", addr[:]))
}

func (e *Engine) assetList() ([]string, error) {
	var list []string
	if _, err := e.state.KVGet(assetListKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (e *Engine) putAssetList(list []string) error {
	return e.state.KVPut(assetListKey, list)
}

// loadAsset returns the stored record, or nil when the asset was never added.
func (e *Engine) loadAsset(symbol string) (*Asset, error) {
	asset := new(Asset)
	ok, err := e.state.KVGet(assetKey(symbol), asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	asset.normalize()
	return asset, nil
}

// requireAsset loads an initialized asset or fails with ErrInit.
func (e *Engine) requireAsset(symbol string) (*Asset, error) {
	asset, err := e.loadAsset(symbol)
	if err != nil {
		return nil, err
	}
	if asset == nil || !asset.Initialized {
		return nil, fmt.Errorf("%w: %s", ErrInit, symbol)
	}
	return asset, nil
}

func (e *Engine) putAsset(asset *Asset) error {
	asset.normalize()
	return e.state.KVPut(assetKey(asset.Symbol), asset)
}

func (e *Engine) loadPosition(symbol string, staker [20]byte) (*Position, error) {
	pos := new(Position)
	if _, err := e.state.KVGet(positionKey(symbol, staker), pos); err != nil {
		return nil, err
	}
	pos.normalize()
	return pos, nil
}

func (e *Engine) putPosition(symbol string, staker [20]byte, pos *Position) error {
	pos.normalize()
	if pos.ClaimBalance.IsZero() && pos.YieldWithdrawn.IsZero() {
		return e.state.KVDelete(positionKey(symbol, staker))
	}
	return e.state.KVPut(positionKey(symbol, staker), pos)
}

func (e *Engine) loadProtocol(id [32]byte) (*Protocol, error) {
	p := new(Protocol)
	ok, err := e.state.KVGet(protocolKey(id), p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return p, nil
}

// requireProtocol loads a covered protocol or fails with ErrProtocol.
func (e *Engine) requireProtocol(id [32]byte) (*Protocol, error) {
	p, err := e.loadProtocol(id)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.Covered {
		return nil, fmt.Errorf("%w: %x", ErrProtocol, id[:])
	}
	return p, nil
}

func (e *Engine) putProtocol(p *Protocol) error {
	return e.state.KVPut(protocolKey(p.ID), p)
}

func (e *Engine) loadStream(id [32]byte, symbol string) (*PremiumStream, error) {
	s := new(PremiumStream)
	if _, err := e.state.KVGet(streamKey(id, symbol), s); err != nil {
		return nil, err
	}
	s.normalize()
	return s, nil
}

func (e *Engine) putStream(id [32]byte, symbol string, s *PremiumStream) error {
	s.normalize()
	return e.state.KVPut(streamKey(id, symbol), s)
}

func (e *Engine) loadQueue(symbol string, staker [20]byte) (*WithdrawalQueue, error) {
	q := new(WithdrawalQueue)
	if _, err := e.state.KVGet(withdrawalKey(symbol, staker), q); err != nil {
		return nil, err
	}
	return q, nil
}

func (e *Engine) putQueue(symbol string, staker [20]byte, q *WithdrawalQueue) error {
	return e.state.KVPut(withdrawalKey(symbol, staker), q)
}

func (e *Engine) loadYield() (*YieldState, error) {
	y := new(YieldState)
	ok, err := e.state.KVGet(yieldKey, y)
	if err != nil {
		return nil, err
	}
	if !ok {
		y.LastAccrued = e.height
	}
	y.normalize()
	return y, nil
}

func (e *Engine) putYield(y *YieldState) error {
	y.normalize()
	return e.state.KVPut(yieldKey, y)
}

// loadParams returns stored parameters, falling back to the configured seed.
func (e *Engine) loadParams() (*Params, error) {
	p := new(Params)
	ok, err := e.state.KVGet(paramsKey, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		seed := e.seed
		if seed.StakersPremiumShare != nil {
			seed.StakersPremiumShare = new(uint256.Int).Set(seed.StakersPremiumShare)
		}
		p = &seed
	}
	p.normalize()
	return p, nil
}

func (e *Engine) putParams(p *Params) error {
	p.normalize()
	return e.state.KVPut(paramsKey, p)
}

func (e *Engine) yieldBalance(addr [20]byte) (*uint256.Int, error) {
	bal := new(uint256.Int)
	if _, err := e.state.KVGet(yieldBalanceKey(addr), bal); err != nil {
		return nil, err
	}
	return bal, nil
}

func (e *Engine) putYieldBalance(addr [20]byte, bal *uint256.Int) error {
	if bal == nil || bal.IsZero() {
		return e.state.KVDelete(yieldBalanceKey(addr))
	}
	return e.state.KVPut(yieldBalanceKey(addr), bal)
}
