package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"coverpool/native/pool"
	"coverpool/services/poold/indexer"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.view(w, func(e *pool.Engine) (any, error) {
		assets, err := e.Assets()
		if err != nil {
			return nil, err
		}
		if assets == nil {
			assets = []string{}
		}
		return map[string]any{"height": e.BlockHeight(), "assets": assets}, nil
	})
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	s.view(w, func(e *pool.Engine) (any, error) {
		symbols, err := e.Assets()
		if err != nil {
			return nil, err
		}
		out := make([]assetResponse, 0, len(symbols))
		for _, symbol := range symbols {
			view, err := e.Asset(symbol)
			if err != nil {
				return nil, err
			}
			out = append(out, newAssetResponse(view))
		}
		return out, nil
	})
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "asset")
	s.view(w, func(e *pool.Engine) (any, error) {
		view, err := e.Asset(symbol)
		if err != nil {
			return nil, err
		}
		return newAssetResponse(view), nil
	})
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "asset")
	s.view(w, func(e *pool.Engine) (any, error) {
		rate, err := e.ExchangeRate(symbol)
		if err != nil {
			return nil, err
		}
		return map[string]string{"asset": strings.ToUpper(symbol), "exchangeRate": fmtAmount(rate)}, nil
	})
}

func (s *Server) handleStaker(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "asset")
	account, err := parseAccount("account", chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.view(w, func(e *pool.Engine) (any, error) {
		claims, err := e.ClaimBalance(symbol, account)
		if err != nil {
			return nil, err
		}
		value, err := e.StakeValue(symbol, account)
		if err != nil {
			return nil, err
		}
		owed, err := e.UnallocatedYieldFor(symbol, account)
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"claimBalance":     fmtAmount(claims),
			"stakeValue":       fmtAmount(value),
			"unallocatedYield": fmtAmount(owed),
		}, nil
	})
}

func (s *Server) handleWithdrawals(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "asset")
	account, err := parseAccount("account", chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.view(w, func(e *pool.Engine) (any, error) {
		list, cursor, err := e.Withdrawals(symbol, account)
		if err != nil {
			return nil, err
		}
		entries := make([]withdrawalResponse, len(list))
		for i, v := range list {
			entries[i] = withdrawalResponse{
				Index:       v.Index,
				RequestedAt: v.RequestedAt,
				ClaimAmount: fmtAmount(v.ClaimAmount),
				Underlying:  fmtAmount(v.Underlying),
				Fee:         fmtAmount(v.Fee),
				Phase:       string(v.Phase),
				ClaimableAt: v.ClaimableAt,
				ExpiresAt:   v.ExpiresAt,
			}
		}
		return map[string]any{"initialIndex": cursor, "entries": entries}, nil
	})
}

func (s *Server) handleYieldState(w http.ResponseWriter, r *http.Request) {
	s.view(w, func(e *pool.Engine) (any, error) {
		y, err := e.YieldState()
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"yieldPerBlock":      fmtAmount(y.YieldPerBlock),
			"lastAccrued":        y.LastAccrued,
			"totalSupply":        fmtAmount(y.TotalSupply),
			"beneficiaryWeight":  fmtAmount(y.BeneficiaryWeight),
			"weightsInitialized": y.WeightsInitialized,
		}, nil
	})
}

func (s *Server) handleUnderlying(w http.ResponseWriter, r *http.Request) {
	amount, err := parseAmount("amount", r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.view(w, func(e *pool.Engine) (any, error) {
		out, err := e.CalcUnderlying(amount)
		if err != nil {
			return nil, err
		}
		return newAssetAmounts(out), nil
	})
}

func (s *Server) handleYieldAccount(w http.ResponseWriter, r *http.Request) {
	account, err := parseAccount("account", chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.view(w, func(e *pool.Engine) (any, error) {
		bal, err := e.YieldBalance(account)
		if err != nil {
			return nil, err
		}
		harvested, err := e.HarvestedYield(account)
		if err != nil {
			return nil, err
		}
		return map[string]string{"balance": fmtAmount(bal), "harvested": fmtAmount(harvested)}, nil
	})
}

func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	s.view(w, func(e *pool.Engine) (any, error) {
		weights, err := e.Weights()
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"assets":      newAssetAmounts(weights.Assets),
			"beneficiary": fmtAmount(weights.Beneficiary),
			"initialized": weights.Initialized,
		}, nil
	})
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	s.view(w, func(e *pool.Engine) (any, error) {
		p, err := e.Params()
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"timelockBlocks":      p.TimelockBlocks,
			"claimWindowBlocks":   p.ClaimWindowBlocks,
			"beneficiary":         fmtAccount(p.Beneficiary),
			"stakersPremiumShare": fmtAmount(p.StakersPremiumShare),
		}, nil
	})
}

func (s *Server) handleProtocol(w http.ResponseWriter, r *http.Request) {
	id, err := parseProtocol(chi.URLParam(r, "protocol"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.view(w, func(e *pool.Engine) (any, error) {
		p, err := e.Protocol(id)
		if err != nil {
			return nil, err
		}
		assets := p.Assets
		if assets == nil {
			assets = []string{}
		}
		return map[string]any{
			"id":      fmtProtocol(p.ID),
			"manager": fmtAccount(p.Manager),
			"agent":   fmtAccount(p.Agent),
			"assets":  assets,
		}, nil
	})
}

func (s *Server) handleProtocolStream(w http.ResponseWriter, r *http.Request) {
	id, err := parseProtocol(chi.URLParam(r, "protocol"))
	if err != nil {
		writeError(w, err)
		return
	}
	symbol := chi.URLParam(r, "asset")
	s.view(w, func(e *pool.Engine) (any, error) {
		// Debt is read before the stream view settles it.
		debt, err := e.AccruedDebt(id, symbol)
		if err != nil {
			return nil, err
		}
		stream, err := e.ProtocolStream(id, symbol)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"premiumPerBlock": fmtAmount(stream.PremiumPerBlock),
			"balance":         fmtAmount(stream.Balance),
			"whitelisted":     stream.Whitelisted,
			"accruedDebt":     fmtAmount(debt),
		}, nil
	})
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAccount("account", chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, err)
		return
	}
	symbol := strings.ToUpper(chi.URLParam(r, "asset"))
	bal, err := s.node.Balance(account, symbol)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"asset": symbol, "balance": fmtAmount(bal)})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Code: http.StatusNotFound, Reason: "INDEXER_DISABLED", Message: "event indexer is not enabled"})
		return
	}
	q := r.URL.Query()
	f := indexer.Filter{Type: q.Get("type"), Asset: q.Get("asset"), Account: q.Get("account")}
	if raw := q.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, badRequest("after: %v", err))
			return
		}
		f.AfterSeq = after
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, badRequest("limit: %v", err))
			return
		}
		f.Limit = limit
	}
	out, err := s.events.Query(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
