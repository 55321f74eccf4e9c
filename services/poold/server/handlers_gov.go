package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"coverpool/native/pool"
)

type blockRequest struct {
	Height uint64 `json:"height,omitempty"`
}

// handleBlock advances the ledger clock by one block, or jumps it to the
// requested height.
func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	var (
		height uint64
		err    error
	)
	if req.Height > 0 {
		err = s.node.SetHeight(req.Height)
		height = req.Height
	} else {
		height, err = s.node.AdvanceBlock()
	}
	if err != nil {
		s.apiMetrics.RecordRejection("block", reasonFor(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result{Height: height})
}

type premiumsRequest struct {
	Protocol  string   `json:"protocol"`
	Assets    []string `json:"assets"`
	Premiums  []string `json:"premiums"`
	USDPrices []string `json:"usdPrices"`
}

func (s *Server) handleSetPremiums(w http.ResponseWriter, r *http.Request) {
	var req premiumsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := parseProtocol(req.Protocol)
	if err != nil {
		writeError(w, err)
		return
	}
	premiums, err := parseAmounts("premiums", req.Premiums)
	if err != nil {
		writeError(w, err)
		return
	}
	prices, err := parseAmounts("usdPrices", req.USDPrices)
	if err != nil {
		writeError(w, err)
		return
	}
	s.mutate(w, r, "set_protocol_premiums", strings.Join(req.Assets, ","), func(e *pool.Engine) (any, error) {
		return nil, e.SetProtocolPremiums(id, req.Assets, premiums, prices)
	})
}

type pricesRequest struct {
	Assets    []string `json:"assets"`
	USDPrices []string `json:"usdPrices"`
}

func (s *Server) handleSetPrices(w http.ResponseWriter, r *http.Request) {
	var req pricesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	prices, err := parseAmounts("usdPrices", req.USDPrices)
	if err != nil {
		writeError(w, err)
		return
	}
	s.mutate(w, r, "set_token_price", strings.Join(req.Assets, ","), func(e *pool.Engine) (any, error) {
		return nil, e.SetTokenPrice(req.Assets, prices)
	})
}

type weightsRequest struct {
	Assets      []string `json:"assets"`
	Weights     []string `json:"weights"`
	Beneficiary string   `json:"beneficiary,omitempty"`
}

// handleSetWeights redistributes yield weights. An empty beneficiary weight
// assigns the beneficiary whatever the asset weights leave over.
func (s *Server) handleSetWeights(w http.ResponseWriter, r *http.Request) {
	var req weightsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	weights, err := parseAmounts("weights", req.Weights)
	if err != nil {
		writeError(w, err)
		return
	}
	beneficiary := pool.WeightRemainder
	if strings.TrimSpace(req.Beneficiary) != "" {
		if beneficiary, err = parseAmount("beneficiary", req.Beneficiary); err != nil {
			writeError(w, err)
			return
		}
	}
	s.mutate(w, r, "set_weights", strings.Join(req.Assets, ","), func(e *pool.Engine) (any, error) {
		return nil, e.SetWeights(req.Assets, weights, beneficiary)
	})
}

func (s *Server) handleInitWeights(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, "set_initial_weight", "", func(e *pool.Engine) (any, error) {
		return nil, e.SetInitialWeight()
	})
}

type payoutRequest struct {
	Receiver         string   `json:"receiver"`
	Assets           []string `json:"assets"`
	FirstMoneyOut    []string `json:"firstMoneyOut"`
	StakersPool      []string `json:"stakersPool"`
	UnallocatedYield []string `json:"unallocatedYield"`
}

func (s *Server) handlePayout(w http.ResponseWriter, r *http.Request) {
	var req payoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	receiver, err := parseAccount("receiver", req.Receiver)
	if err != nil {
		writeError(w, err)
		return
	}
	var fmo, stakers, yield []*uint256.Int
	if fmo, err = parseAmounts("firstMoneyOut", req.FirstMoneyOut); err != nil {
		writeError(w, err)
		return
	}
	if stakers, err = parseAmounts("stakersPool", req.StakersPool); err != nil {
		writeError(w, err)
		return
	}
	if yield, err = parseAmounts("unallocatedYield", req.UnallocatedYield); err != nil {
		writeError(w, err)
		return
	}
	s.mutate(w, r, "payout", strings.Join(req.Assets, ","), func(e *pool.Engine) (any, error) {
		return nil, e.Payout(receiver, req.Assets, fmo, stakers, yield)
	})
}

type harvestStakersRequest struct {
	Asset   string   `json:"asset"`
	Stakers []string `json:"stakers"`
}

func (s *Server) handleHarvestStakers(w http.ResponseWriter, r *http.Request) {
	var req harvestStakersRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	stakers := make([][20]byte, len(req.Stakers))
	for i, raw := range req.Stakers {
		addr, err := parseAccount("stakers", raw)
		if err != nil {
			writeError(w, err)
			return
		}
		stakers[i] = addr
	}
	s.mutate(w, r, "harvest_for_stakers", req.Asset, func(e *pool.Engine) (any, error) {
		return nil, e.HarvestForStakers(stakers, req.Asset)
	})
}

type paramsRequest struct {
	TimelockBlocks      *uint64 `json:"timelockBlocks,omitempty"`
	ClaimWindowBlocks   *uint64 `json:"claimWindowBlocks,omitempty"`
	Beneficiary         *string `json:"beneficiary,omitempty"`
	StakersPremiumShare *string `json:"stakersPremiumShare,omitempty"`
}

// handleSetParams applies every supplied parameter in one commit.
func (s *Server) handleSetParams(w http.ResponseWriter, r *http.Request) {
	var req paramsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	var (
		beneficiary [20]byte
		share       *uint256.Int
		err         error
	)
	if req.Beneficiary != nil {
		if beneficiary, err = parseAccount("beneficiary", *req.Beneficiary); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.StakersPremiumShare != nil {
		if share, err = parseAmount("stakersPremiumShare", *req.StakersPremiumShare); err != nil {
			writeError(w, err)
			return
		}
	}
	s.mutate(w, r, "set_params", "", func(e *pool.Engine) (any, error) {
		if req.TimelockBlocks != nil {
			if err := e.SetTimelock(*req.TimelockBlocks); err != nil {
				return nil, err
			}
		}
		if req.ClaimWindowBlocks != nil {
			if err := e.SetClaimWindow(*req.ClaimWindowBlocks); err != nil {
				return nil, err
			}
		}
		if req.Beneficiary != nil {
			if err := e.SetBeneficiary(beneficiary); err != nil {
				return nil, err
			}
		}
		if share != nil {
			if err := e.SetStakersPremiumShare(share); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
}

type assetAddRequest struct {
	Asset           string `json:"asset"`
	Governor        string `json:"governor"`
	ClaimToken      string `json:"claimToken,omitempty"`
	DepositEnabled  *bool  `json:"depositEnabled,omitempty"`
	PremiumsEnabled *bool  `json:"premiumsEnabled,omitempty"`
	ExitFee         string `json:"exitFee,omitempty"`
	USDPrice        string `json:"usdPrice,omitempty"`
}

func (s *Server) handleAssetAdd(w http.ResponseWriter, r *http.Request) {
	var req assetAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	governor, err := parseAccount("governor", req.Governor)
	if err != nil {
		writeError(w, err)
		return
	}
	spec := pool.AssetSpec{
		Symbol:          req.Asset,
		Governor:        governor,
		ClaimTokenID:    req.ClaimToken,
		DepositEnabled:  req.DepositEnabled == nil || *req.DepositEnabled,
		PremiumsEnabled: req.PremiumsEnabled == nil || *req.PremiumsEnabled,
	}
	if spec.ExitFee, err = parseOptionalAmount("exitFee", req.ExitFee); err != nil {
		writeError(w, err)
		return
	}
	if spec.USDPrice, err = parseOptionalAmount("usdPrice", req.USDPrice); err != nil {
		writeError(w, err)
		return
	}
	s.mutate(w, r, "asset_add", req.Asset, func(e *pool.Engine) (any, error) {
		return nil, e.AssetAdd(spec)
	})
}

func (s *Server) handleAssetDisableDeposits(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "asset")
	s.mutate(w, r, "asset_disable_deposits", symbol, func(e *pool.Engine) (any, error) {
		return nil, e.AssetDisableDeposits(symbol)
	})
}

func (s *Server) handleAssetDisablePremiums(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "asset")
	s.mutate(w, r, "asset_disable_premiums", symbol, func(e *pool.Engine) (any, error) {
		return nil, e.AssetDisablePremiums(symbol)
	})
}

type exitFeeRequest struct {
	ExitFee string `json:"exitFee"`
}

func (s *Server) handleAssetExitFee(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "asset")
	var req exitFeeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	fee, err := parseAmount("exitFee", req.ExitFee)
	if err != nil {
		writeError(w, err)
		return
	}
	s.mutate(w, r, "set_exit_fee", symbol, func(e *pool.Engine) (any, error) {
		return nil, e.SetExitFee(symbol, fee)
	})
}

type assetRemoveRequest struct {
	Receiver string `json:"receiver"`
}

func (s *Server) handleAssetRemove(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "asset")
	var req assetRemoveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	receiver, err := parseAccount("receiver", req.Receiver)
	if err != nil {
		writeError(w, err)
		return
	}
	s.mutate(w, r, "asset_remove", symbol, func(e *pool.Engine) (any, error) {
		return nil, e.AssetRemove(symbol, receiver)
	})
}

type protocolAddRequest struct {
	Protocol string   `json:"protocol"`
	Manager  string   `json:"manager"`
	Agent    string   `json:"agent"`
	Assets   []string `json:"assets"`
}

func (s *Server) handleProtocolAdd(w http.ResponseWriter, r *http.Request) {
	var req protocolAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := parseProtocol(req.Protocol)
	if err != nil {
		writeError(w, err)
		return
	}
	manager, err := parseAccount("manager", req.Manager)
	if err != nil {
		writeError(w, err)
		return
	}
	agent, err := parseAccount("agent", req.Agent)
	if err != nil {
		writeError(w, err)
		return
	}
	s.mutate(w, r, "protocol_add", strings.Join(req.Assets, ","), func(e *pool.Engine) (any, error) {
		if err := e.ProtocolAdd(id, manager, agent, req.Assets); err != nil {
			return nil, err
		}
		return map[string]string{"protocol": fmtProtocol(id)}, nil
	})
}

type protocolAssetsRequest struct {
	Assets []string `json:"assets"`
}

func (s *Server) handleProtocolDepositAdd(w http.ResponseWriter, r *http.Request) {
	id, err := parseProtocol(chi.URLParam(r, "protocol"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req protocolAssetsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.mutate(w, r, "protocol_deposit_add", strings.Join(req.Assets, ","), func(e *pool.Engine) (any, error) {
		return nil, e.ProtocolDepositAdd(id, req.Assets)
	})
}

type protocolUpdateRequest struct {
	Manager string `json:"manager"`
	Agent   string `json:"agent"`
}

func (s *Server) handleProtocolUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := parseProtocol(chi.URLParam(r, "protocol"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req protocolUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	manager, err := parseAccount("manager", req.Manager)
	if err != nil {
		writeError(w, err)
		return
	}
	agent, err := parseAccount("agent", req.Agent)
	if err != nil {
		writeError(w, err)
		return
	}
	s.mutate(w, r, "protocol_update", "", func(e *pool.Engine) (any, error) {
		return nil, e.ProtocolUpdate(id, manager, agent)
	})
}

func (s *Server) handleProtocolRemove(w http.ResponseWriter, r *http.Request) {
	id, err := parseProtocol(chi.URLParam(r, "protocol"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.mutate(w, r, "protocol_remove", "", func(e *pool.Engine) (any, error) {
		return nil, e.ProtocolRemove(id)
	})
}
