package pool

import (
	"github.com/holiman/uint256"

	"coverpool/native/fixedpoint"
)

// Asset is the per-asset ledger record: pool balances, premium totals and
// the asset's share of yield emission.
type Asset struct {
	Symbol          string
	Initialized     bool
	DepositEnabled  bool
	PremiumsEnabled bool
	ClaimTokenID    string
	Governor        [20]byte

	// ExitFee is the fraction of withdrawn underlying routed to FirstMoneyOut.
	ExitFee     *uint256.Int
	YieldWeight *uint256.Int

	StakersBalance     *uint256.Int
	FirstMoneyOut      *uint256.Int
	ClaimSupply        *uint256.Int
	PendingWithdrawals *uint256.Int

	// YieldUnderlying backs yield tokens; it is paid out on redeem.
	YieldUnderlying *uint256.Int
	// UnallocatedYield holds yield tokens minted to the pool but not yet
	// harvested by its stakers.
	UnallocatedYield *uint256.Int
	// HarvestWeight is the cumulative yield attributed to the claim supply.
	// A holder's entitlement is HarvestWeight*balance/supply minus what
	// they already withdrew.
	HarvestWeight    *uint256.Int
	YieldLastAccrued uint64

	TotalPremiumPerBlock *uint256.Int
	TotalPremiumLastPaid uint64
	StoredUSD            *uint256.Int

	Protocols [][32]byte
}

func (a *Asset) normalize() {
	for _, field := range []**uint256.Int{
		&a.ExitFee, &a.YieldWeight, &a.StakersBalance, &a.FirstMoneyOut,
		&a.ClaimSupply, &a.PendingWithdrawals, &a.YieldUnderlying,
		&a.UnallocatedYield, &a.HarvestWeight, &a.TotalPremiumPerBlock, &a.StoredUSD,
	} {
		if *field == nil {
			*field = new(uint256.Int)
		}
	}
}

func (a *Asset) hasProtocol(id [32]byte) bool {
	for _, existing := range a.Protocols {
		if existing == id {
			return true
		}
	}
	return false
}

func (a *Asset) removeProtocol(id [32]byte) {
	out := a.Protocols[:0]
	for _, existing := range a.Protocols {
		if existing != id {
			out = append(out, existing)
		}
	}
	a.Protocols = out
}

// AssetView is a detached copy of an asset record returned by accessors.
type AssetView struct {
	Asset
	ExchangeRate *uint256.Int
}

// Position tracks one staker's claim units and the yield already withdrawn
// against them.
type Position struct {
	ClaimBalance   *uint256.Int
	YieldWithdrawn *uint256.Int
}

func (p *Position) normalize() {
	if p.ClaimBalance == nil {
		p.ClaimBalance = new(uint256.Int)
	}
	if p.YieldWithdrawn == nil {
		p.YieldWithdrawn = new(uint256.Int)
	}
}

// Protocol is a covered party that owes premium on one or more assets.
type Protocol struct {
	ID      [32]byte
	Covered bool
	Manager [20]byte
	Agent   [20]byte
	Assets  []string
}

func (p *Protocol) hasAsset(symbol string) bool {
	for _, existing := range p.Assets {
		if existing == symbol {
			return true
		}
	}
	return false
}

// PremiumStream is a protocol's prepaid balance and per-block obligation on
// one asset.
type PremiumStream struct {
	PremiumPerBlock *uint256.Int
	Balance         *uint256.Int
	Whitelisted     bool
}

func (s *PremiumStream) normalize() {
	if s.PremiumPerBlock == nil {
		s.PremiumPerBlock = new(uint256.Int)
	}
	if s.Balance == nil {
		s.Balance = new(uint256.Int)
	}
}

// WithdrawalStatus enumerates the stored states of a withdrawal entry.
// Claimable and Expired are derived from the clock, not stored.
type WithdrawalStatus uint8

const (
	WithdrawalActive WithdrawalStatus = iota
	WithdrawalClaimed
	WithdrawalCancelled
	WithdrawalPurged
)

func (s WithdrawalStatus) String() string {
	switch s {
	case WithdrawalActive:
		return "active"
	case WithdrawalClaimed:
		return "claimed"
	case WithdrawalCancelled:
		return "cancelled"
	case WithdrawalPurged:
		return "purged"
	default:
		return "unknown"
	}
}

// WithdrawalPhase is the clock-derived state of an entry.
type WithdrawalPhase string

const (
	PhaseLocked    WithdrawalPhase = "locked"
	PhaseClaimable WithdrawalPhase = "claimable"
	PhaseExpired   WithdrawalPhase = "expired"
	PhaseClaimed   WithdrawalPhase = "claimed"
	PhaseCancelled WithdrawalPhase = "cancelled"
	PhasePurged    WithdrawalPhase = "purged"
)

// WithdrawalEntry is one pending unstake request. Underlying is net of the
// exit fee; Fee is kept so a cancel can reverse it.
type WithdrawalEntry struct {
	RequestedAt uint64
	ClaimAmount *uint256.Int
	Underlying  *uint256.Int
	Fee         *uint256.Int
	Status      WithdrawalStatus
}

// WithdrawalQueue is the FIFO list of a staker's entries on one asset.
type WithdrawalQueue struct {
	InitialActiveIndex uint64
	Entries            []WithdrawalEntry
}

// advance moves the cursor past leading terminal entries.
func (q *WithdrawalQueue) advance() {
	for q.InitialActiveIndex < uint64(len(q.Entries)) && q.Entries[q.InitialActiveIndex].Status != WithdrawalActive {
		q.InitialActiveIndex++
	}
}

// YieldState holds the global yield token accounting.
type YieldState struct {
	YieldPerBlock      *uint256.Int
	LastAccrued        uint64
	TotalSupply        *uint256.Int
	BeneficiaryWeight  *uint256.Int
	WeightsInitialized bool
}

func (y *YieldState) normalize() {
	if y.YieldPerBlock == nil {
		y.YieldPerBlock = new(uint256.Int)
	}
	if y.TotalSupply == nil {
		y.TotalSupply = new(uint256.Int)
	}
	if y.BeneficiaryWeight == nil {
		y.BeneficiaryWeight = new(uint256.Int)
	}
}

// Params are the ledger-wide governance parameters.
type Params struct {
	TimelockBlocks      uint64
	ClaimWindowBlocks   uint64
	Beneficiary         [20]byte
	StakersPremiumShare *uint256.Int
}

func (p *Params) normalize() {
	if p.StakersPremiumShare == nil {
		p.StakersPremiumShare = fixedpoint.Clone(fixedpoint.One)
	}
}

// AssetAmount pairs an asset with an amount.
type AssetAmount struct {
	Asset  string
	Amount *uint256.Int
}

// Weights is a snapshot of the yield weight distribution.
type Weights struct {
	Assets      []AssetAmount
	Beneficiary *uint256.Int
	Initialized bool
}
