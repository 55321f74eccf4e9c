package client

import "encoding/json"

// Status mirrors GET /v1/status.
type Status struct {
	Height uint64   `json:"height"`
	Assets []string `json:"assets"`
}

// Asset mirrors GET /v1/assets/{asset}. Amounts are 18-decimal strings.
type Asset struct {
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

// Position mirrors GET /v1/assets/{asset}/stakers/{account}.
type Position struct {
	ClaimBalance     string `json:"claimBalance"`
	StakeValue       string `json:"stakeValue"`
	UnallocatedYield string `json:"unallocatedYield"`
}

// Withdrawal is one queued exit.
type Withdrawal struct {
	Index       uint64 `json:"index"`
	RequestedAt uint64 `json:"requestedAt"`
	ClaimAmount string `json:"claimAmount"`
	Underlying  string `json:"underlying"`
	Fee         string `json:"fee"`
	Phase       string `json:"phase"`
	ClaimableAt uint64 `json:"claimableAt"`
	ExpiresAt   uint64 `json:"expiresAt"`
}

// Withdrawals mirrors GET /v1/withdrawals/{asset}/{account}.
type Withdrawals struct {
	InitialIndex uint64       `json:"initialIndex"`
	Entries      []Withdrawal `json:"entries"`
}

// Params mirrors GET /v1/params.
type Params struct {
	TimelockBlocks      uint64 `json:"timelockBlocks"`
	ClaimWindowBlocks   uint64 `json:"claimWindowBlocks"`
	Beneficiary         string `json:"beneficiary"`
	StakersPremiumShare string `json:"stakersPremiumShare"`
}

type AssetAmount struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// Result is the envelope of a committed mutation.
type Result struct {
	Height uint64          `json:"height"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Event mirrors one entry of GET /v1/events.
type Event struct {
	Seq        uint64            `json:"seq"`
	Height     uint64            `json:"height"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
