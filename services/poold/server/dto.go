package server

import (
	"encoding/hex"
	"strings"

	"github.com/holiman/uint256"

	"coverpool/config"
	"coverpool/crypto"
	"coverpool/native/fixedpoint"
	"coverpool/native/pool"
)

// Amounts and ratios travel as 18-decimal strings, e.g. "10" or "0.25".

func fmtAmount(v *uint256.Int) string {
	return fixedpoint.Format(fixedpoint.Clone(v))
}

func fmtAccount(raw [20]byte) string {
	if raw == ([20]byte{}) {
		return ""
	}
	return crypto.FromRaw(crypto.AccountPrefix, raw).String()
}

func fmtProtocol(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

func parseAmount(field, raw string) (*uint256.Int, error) {
	v, err := fixedpoint.Parse(raw)
	if err != nil {
		return nil, badRequest("%s: %v", field, err)
	}
	return v, nil
}

func parseAmounts(field string, raw []string) ([]*uint256.Int, error) {
	if raw == nil {
		return nil, nil
	}
	out := make([]*uint256.Int, len(raw))
	for i, r := range raw {
		v, err := parseAmount(field, r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseAccount(field, raw string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, badRequest("%s: %v", field, err)
	}
	return addr.Raw(), nil
}

// parseOptionalAccount returns fallback for an empty field.
func parseOptionalAccount(field, raw string, fallback [20]byte) ([20]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return parseAccount(field, raw)
}

func parseProtocol(raw string) ([32]byte, error) {
	id, err := config.ProtocolID(raw)
	if err != nil {
		return [32]byte{}, badRequest("protocol: %v", err)
	}
	return id, nil
}

type assetResponse struct {
	Symbol               string   `json:"symbol"`
	ClaimToken           string   `json:"claimToken"`
	Governor             string   `json:"governor"`
	DepositEnabled       bool     `json:"depositEnabled"`
	PremiumsEnabled      bool     `json:"premiumsEnabled"`
	ExitFee              string   `json:"exitFee"`
	YieldWeight          string   `json:"yieldWeight"`
	StakersBalance       string   `json:"stakersBalance"`
	FirstMoneyOut        string   `json:"firstMoneyOut"`
	ClaimSupply          string   `json:"claimSupply"`
	PendingWithdrawals   string   `json:"pendingWithdrawals"`
	YieldUnderlying      string   `json:"yieldUnderlying"`
	UnallocatedYield     string   `json:"unallocatedYield"`
	YieldLastAccrued     uint64   `json:"yieldLastAccrued"`
	TotalPremiumPerBlock string   `json:"totalPremiumPerBlock"`
	TotalPremiumLastPaid uint64   `json:"totalPremiumLastPaid"`
	USDPrice             string   `json:"usdPrice"`
	ExchangeRate         string   `json:"exchangeRate"`
	Protocols            []string `json:"protocols"`
}

func newAssetResponse(v *pool.AssetView) assetResponse {
	out := assetResponse{
		Symbol:               v.Symbol,
		ClaimToken:           v.ClaimTokenID,
		Governor:             fmtAccount(v.Governor),
		DepositEnabled:       v.DepositEnabled,
		PremiumsEnabled:      v.PremiumsEnabled,
		ExitFee:              fmtAmount(v.ExitFee),
		YieldWeight:          fmtAmount(v.YieldWeight),
		StakersBalance:       fmtAmount(v.StakersBalance),
		FirstMoneyOut:        fmtAmount(v.FirstMoneyOut),
		ClaimSupply:          fmtAmount(v.ClaimSupply),
		PendingWithdrawals:   fmtAmount(v.PendingWithdrawals),
		YieldUnderlying:      fmtAmount(v.YieldUnderlying),
		UnallocatedYield:     fmtAmount(v.UnallocatedYield),
		YieldLastAccrued:     v.YieldLastAccrued,
		TotalPremiumPerBlock: fmtAmount(v.TotalPremiumPerBlock),
		TotalPremiumLastPaid: v.TotalPremiumLastPaid,
		USDPrice:             fmtAmount(v.StoredUSD),
		ExchangeRate:         fmtAmount(v.ExchangeRate),
		Protocols:            make([]string, 0, len(v.Protocols)),
	}
	for _, id := range v.Protocols {
		out.Protocols = append(out.Protocols, fmtProtocol(id))
	}
	return out
}

type withdrawalResponse struct {
	Index       uint64 `json:"index"`
	RequestedAt uint64 `json:"requestedAt"`
	ClaimAmount string `json:"claimAmount"`
	Underlying  string `json:"underlying"`
	Fee         string `json:"fee"`
	Phase       string `json:"phase"`
	ClaimableAt uint64 `json:"claimableAt"`
	ExpiresAt   uint64 `json:"expiresAt"`
}

type assetAmount struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

func newAssetAmounts(in []pool.AssetAmount) []assetAmount {
	out := make([]assetAmount, len(in))
	for i, a := range in {
		out[i] = assetAmount{Asset: a.Asset, Amount: fmtAmount(a.Amount)}
	}
	return out
}

// result is the envelope of every successful mutation.
type result struct {
	Height uint64 `json:"height"`
	Result any    `json:"result,omitempty"`
}

func parseOptionalAmount(field, raw string) (*uint256.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return parseAmount(field, raw)
}
