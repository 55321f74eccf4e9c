package server

import (
	"net/http"
	"strings"

	"github.com/holiman/uint256"

	"coverpool/native/pool"
)

type stakeRequest struct {
	Asset    string `json:"asset"`
	Amount   string `json:"amount"`
	Receiver string `json:"receiver,omitempty"`
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	staker := caller(r)
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	receiver, err := parseOptionalAccount("receiver", req.Receiver, staker)
	if err != nil {
		writeError(w, err)
		return
	}
	s.mutate(w, r, "stake", req.Asset, func(e *pool.Engine) (any, error) {
		claims, err := e.Stake(staker, amount, receiver, req.Asset)
		if err != nil {
			return nil, err
		}
		return map[string]string{"claims": fmtAmount(claims)}, nil
	})
}

type transferClaimRequest struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleTransferClaim(w http.ResponseWriter, r *http.Request) {
	var req transferClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	to, err := parseAccount("to", req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	from := caller(r)
	s.mutate(w, r, "transfer_claim", req.Asset, func(e *pool.Engine) (any, error) {
		return nil, e.TransferClaim(from, to, amount, req.Asset)
	})
}

type withdrawRequest struct {
	Asset       string `json:"asset"`
	ClaimAmount string `json:"claimAmount"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("claimAmount", req.ClaimAmount)
	if err != nil {
		writeError(w, err)
		return
	}
	staker := caller(r)
	s.mutate(w, r, "withdraw_stake", req.Asset, func(e *pool.Engine) (any, error) {
		index, err := e.WithdrawStake(staker, amount, req.Asset)
		if err != nil {
			return nil, err
		}
		return map[string]uint64{"index": index}, nil
	})
}

type withdrawalRequest struct {
	Asset    string `json:"asset"`
	Index    uint64 `json:"index"`
	Receiver string `json:"receiver,omitempty"`
	Staker   string `json:"staker,omitempty"`
}

func (s *Server) handleWithdrawCancel(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	staker := caller(r)
	s.mutate(w, r, "withdraw_cancel", req.Asset, func(e *pool.Engine) (any, error) {
		claims, err := e.WithdrawCancel(staker, req.Index, req.Asset)
		if err != nil {
			return nil, err
		}
		return map[string]string{"claims": fmtAmount(claims)}, nil
	})
}

func (s *Server) handleWithdrawClaim(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	staker := caller(r)
	receiver, err := parseOptionalAccount("receiver", req.Receiver, staker)
	if err != nil {
		writeError(w, err)
		return
	}
	s.mutate(w, r, "withdraw_claim", req.Asset, func(e *pool.Engine) (any, error) {
		paid, err := e.WithdrawClaim(staker, req.Index, receiver, req.Asset)
		if err != nil {
			return nil, err
		}
		return map[string]string{"amount": fmtAmount(paid)}, nil
	})
}

func (s *Server) handleWithdrawPurge(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	staker, err := parseAccount("staker", req.Staker)
	if err != nil {
		writeError(w, err)
		return
	}
	purger := caller(r)
	s.mutate(w, r, "withdraw_purge", req.Asset, func(e *pool.Engine) (any, error) {
		reward, err := e.WithdrawPurge(purger, staker, req.Index, req.Asset)
		if err != nil {
			return nil, err
		}
		return map[string]string{"reward": fmtAmount(reward)}, nil
	})
}

type harvestRequest struct {
	Assets []string `json:"assets,omitempty"`
}

// handleHarvest harvests the caller's yield on the listed assets, or on every
// asset when none are listed.
func (s *Server) handleHarvest(w http.ResponseWriter, r *http.Request) {
	var req harvestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	staker := caller(r)
	s.mutate(w, r, "harvest", strings.Join(req.Assets, ","), func(e *pool.Engine) (any, error) {
		var (
			paid *uint256.Int
			err  error
		)
		switch len(req.Assets) {
		case 0:
			paid, err = e.Harvest(staker)
		case 1:
			paid, err = e.HarvestFor(staker, req.Assets[0])
		default:
			paid, err = e.HarvestForMultiple(staker, req.Assets)
		}
		if err != nil {
			return nil, err
		}
		return map[string]string{"harvested": fmtAmount(paid)}, nil
	})
}

type redeemRequest struct {
	Amount   string `json:"amount"`
	Receiver string `json:"receiver,omitempty"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	holder := caller(r)
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	receiver, err := parseOptionalAccount("receiver", req.Receiver, holder)
	if err != nil {
		writeError(w, err)
		return
	}
	s.mutate(w, r, "redeem", "", func(e *pool.Engine) (any, error) {
		out, err := e.Redeem(holder, amount, receiver)
		if err != nil {
			return nil, err
		}
		return newAssetAmounts(out), nil
	})
}

type transferYieldRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleTransferYield(w http.ResponseWriter, r *http.Request) {
	var req transferYieldRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	to, err := parseAccount("to", req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	from := caller(r)
	s.mutate(w, r, "transfer_yield", "", func(e *pool.Engine) (any, error) {
		return nil, e.TransferYield(from, to, amount)
	})
}

type payoffRequest struct {
	Asset string `json:"asset"`
}

// handlePayoff settles accrued premium debt on one asset. Any authenticated
// caller may trigger it.
func (s *Server) handlePayoff(w http.ResponseWriter, r *http.Request) {
	var req payoffRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.mutate(w, r, "payoff_debt", req.Asset, func(e *pool.Engine) (any, error) {
		return nil, e.PayOffDebtAll(req.Asset)
	})
}

type protocolBalanceRequest struct {
	Protocol string `json:"protocol"`
	Asset    string `json:"asset"`
	Amount   string `json:"amount"`
	Receiver string `json:"receiver,omitempty"`
}

func (s *Server) handleProtocolDeposit(w http.ResponseWriter, r *http.Request) {
	var req protocolBalanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := parseProtocol(req.Protocol)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	payer := caller(r)
	s.mutate(w, r, "deposit_protocol_balance", req.Asset, func(e *pool.Engine) (any, error) {
		return nil, e.DepositProtocolBalance(payer, id, req.Asset, amount)
	})
}

func (s *Server) handleProtocolWithdraw(w http.ResponseWriter, r *http.Request) {
	var req protocolBalanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := parseProtocol(req.Protocol)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	agent := caller(r)
	receiver, err := parseOptionalAccount("receiver", req.Receiver, agent)
	if err != nil {
		writeError(w, err)
		return
	}
	s.mutate(w, r, "withdraw_protocol_balance", req.Asset, func(e *pool.Engine) (any, error) {
		return nil, e.WithdrawProtocolBalance(agent, id, req.Asset, amount, receiver)
	})
}
