package events

import (
	"strconv"

	"github.com/holiman/uint256"

	"coverpool/core/types"
)

const (
	// TypePoolStaked is emitted when underlying enters a pool and claim units are minted.
	TypePoolStaked = "pool.staked"
	// TypePoolWithdrawRequested is emitted when claim units are burned into a withdrawal entry.
	TypePoolWithdrawRequested = "pool.withdraw.requested"
	// TypePoolWithdrawCancelled is emitted when a pending entry is returned to the pool.
	TypePoolWithdrawCancelled = "pool.withdraw.cancelled"
	// TypePoolWithdrawClaimed is emitted when an entry pays out to the staker.
	TypePoolWithdrawClaimed = "pool.withdraw.claimed"
	// TypePoolWithdrawPurged is emitted when an expired entry is forfeited to the pool.
	TypePoolWithdrawPurged = "pool.withdraw.purged"
	// TypePoolClaimTransferred is emitted when claim units move between accounts.
	TypePoolClaimTransferred = "pool.claim.transferred"
	// TypePoolHarvested is emitted for every non-zero yield harvest.
	TypePoolHarvested = "pool.harvested"
	// TypePoolPremiumSet is emitted per asset when a protocol premium changes.
	TypePoolPremiumSet = "pool.premium.set"
	// TypePoolPremiumSettled is emitted when elapsed debt is moved into a pool.
	TypePoolPremiumSettled = "pool.premium.settled"
	// TypePoolProtocolDefaulted is emitted when settlement clips a stream to its balance.
	TypePoolProtocolDefaulted = "pool.protocol.defaulted"
	// TypePoolProtocolBalance is emitted on protocol deposits and withdrawals.
	TypePoolProtocolBalance = "pool.protocol.balance"
	// TypePoolPriceSet is emitted when the stored USD price of an asset changes.
	TypePoolPriceSet = "pool.price.set"
	// TypePoolWeightsSet is emitted when yield weights are (re)distributed.
	TypePoolWeightsSet = "pool.weights.set"
	// TypePoolYieldRedeemed is emitted when yield tokens are burned for underlying.
	TypePoolYieldRedeemed = "pool.yield.redeemed"
	// TypePoolYieldTransferred is emitted when yield tokens change hands.
	TypePoolYieldTransferred = "pool.yield.transferred"
	// TypePoolPayout is emitted per asset drawn by a payout.
	TypePoolPayout = "pool.payout"
	// TypePoolAssetChanged is emitted on asset lifecycle and parameter changes.
	TypePoolAssetChanged = "pool.asset.changed"
	// TypePoolProtocolChanged is emitted on protocol registry changes.
	TypePoolProtocolChanged = "pool.protocol.changed"
	// TypePoolParamsUpdated is emitted when a global ledger parameter changes.
	TypePoolParamsUpdated = "pool.params.updated"
)

// PoolStaked records a stake.
type PoolStaked struct {
	Staker         [20]byte
	Receiver       [20]byte
	Asset          string
	Amount         *uint256.Int
	Minted         *uint256.Int
	StakersBalance *uint256.Int
	ClaimSupply    *uint256.Int
}

// EventType satisfies the Event interface.
func (PoolStaked) EventType() string { return TypePoolStaked }

// Event converts the structured payload into a broadcastable event.
func (e PoolStaked) Event() *types.Event {
	return &types.Event{Type: TypePoolStaked, Attributes: map[string]string{
		"staker":         formatAddress(e.Staker),
		"receiver":       formatAddress(e.Receiver),
		"asset":          normalizeAsset(e.Asset),
		"amount":         formatAmount(e.Amount),
		"minted":         formatAmount(e.Minted),
		"stakersBalance": formatAmount(e.StakersBalance),
		"claimSupply":    formatAmount(e.ClaimSupply),
	}}
}

// PoolWithdrawal covers every transition of a withdrawal entry. Kind selects
// the event type.
type PoolWithdrawal struct {
	Kind       string
	Staker     [20]byte
	Actor      [20]byte
	Asset      string
	Index      uint64
	Claim      *uint256.Int
	Underlying *uint256.Int
	Fee        *uint256.Int
	// StakersBalance is the pool balance after the transition.
	StakersBalance *uint256.Int
	FirstMoneyOut  *uint256.Int
}

// EventType satisfies the Event interface.
func (e PoolWithdrawal) EventType() string { return e.Kind }

// Event converts the structured payload into a broadcastable event.
func (e PoolWithdrawal) Event() *types.Event {
	attrs := map[string]string{
		"staker":         formatAddress(e.Staker),
		"asset":          normalizeAsset(e.Asset),
		"index":          strconv.FormatUint(e.Index, 10),
		"underlying":     formatAmount(e.Underlying),
		"stakersBalance": formatAmount(e.StakersBalance),
		"firstMoneyOut":  formatAmount(e.FirstMoneyOut),
	}
	if !zeroAddress(e.Actor) && e.Actor != e.Staker {
		attrs["actor"] = formatAddress(e.Actor)
	}
	if e.Claim != nil {
		attrs["claim"] = formatAmount(e.Claim)
	}
	if e.Fee != nil {
		attrs["fee"] = formatAmount(e.Fee)
	}
	return &types.Event{Type: e.Kind, Attributes: attrs}
}

// PoolClaimTransferred records a claim unit transfer.
type PoolClaimTransferred struct {
	From   [20]byte
	To     [20]byte
	Asset  string
	Amount *uint256.Int
}

// EventType satisfies the Event interface.
func (PoolClaimTransferred) EventType() string { return TypePoolClaimTransferred }

// Event converts the structured payload into a broadcastable event.
func (e PoolClaimTransferred) Event() *types.Event {
	return &types.Event{Type: TypePoolClaimTransferred, Attributes: map[string]string{
		"from":   formatAddress(e.From),
		"to":     formatAddress(e.To),
		"asset":  normalizeAsset(e.Asset),
		"amount": formatAmount(e.Amount),
	}}
}

// PoolHarvested records yield moved from a pool bucket to a spendable balance.
type PoolHarvested struct {
	Staker  [20]byte
	Asset   string
	Amount  *uint256.Int
	Balance *uint256.Int
}

// EventType satisfies the Event interface.
func (PoolHarvested) EventType() string { return TypePoolHarvested }

// Event converts the structured payload into a broadcastable event.
func (e PoolHarvested) Event() *types.Event {
	return &types.Event{Type: TypePoolHarvested, Attributes: map[string]string{
		"staker":  formatAddress(e.Staker),
		"asset":   normalizeAsset(e.Asset),
		"amount":  formatAmount(e.Amount),
		"balance": formatAmount(e.Balance),
	}}
}

// PoolPremiumSet records a premium rate change for one protocol and asset.
type PoolPremiumSet struct {
	Protocol      [32]byte
	Asset         string
	Premium       *uint256.Int
	TotalPremium  *uint256.Int
	USDPrice      *uint256.Int
	YieldPerBlock *uint256.Int
}

// EventType satisfies the Event interface.
func (PoolPremiumSet) EventType() string { return TypePoolPremiumSet }

// Event converts the structured payload into a broadcastable event.
func (e PoolPremiumSet) Event() *types.Event {
	attrs := map[string]string{
		"protocol":      formatProtocol(e.Protocol),
		"asset":         normalizeAsset(e.Asset),
		"premium":       formatAmount(e.Premium),
		"totalPremium":  formatAmount(e.TotalPremium),
		"yieldPerBlock": formatAmount(e.YieldPerBlock),
	}
	if e.USDPrice != nil {
		attrs["usdPrice"] = formatAmount(e.USDPrice)
	}
	return &types.Event{Type: TypePoolPremiumSet, Attributes: attrs}
}

// PoolPremiumSettled records debt moved from protocol balances into a pool.
type PoolPremiumSettled struct {
	Asset      string
	Blocks     uint64
	Debt       *uint256.Int
	ToStakers  *uint256.Int
	ToYield    *uint256.Int
	LastPaid   uint64
	Defaulters int
}

// EventType satisfies the Event interface.
func (PoolPremiumSettled) EventType() string { return TypePoolPremiumSettled }

// Event converts the structured payload into a broadcastable event.
func (e PoolPremiumSettled) Event() *types.Event {
	return &types.Event{Type: TypePoolPremiumSettled, Attributes: map[string]string{
		"asset":      normalizeAsset(e.Asset),
		"blocks":     strconv.FormatUint(e.Blocks, 10),
		"debt":       formatAmount(e.Debt),
		"toStakers":  formatAmount(e.ToStakers),
		"toYield":    formatAmount(e.ToYield),
		"lastPaid":   strconv.FormatUint(e.LastPaid, 10),
		"defaulters": strconv.Itoa(e.Defaulters),
	}}
}

// PoolProtocolDefaulted records a stream whose balance ran out.
type PoolProtocolDefaulted struct {
	Protocol      [32]byte
	Asset         string
	PriorPremium  *uint256.Int
	ClippedDebt   *uint256.Int
	UnsettledDebt *uint256.Int
}

// EventType satisfies the Event interface.
func (PoolProtocolDefaulted) EventType() string { return TypePoolProtocolDefaulted }

// Event converts the structured payload into a broadcastable event.
func (e PoolProtocolDefaulted) Event() *types.Event {
	return &types.Event{Type: TypePoolProtocolDefaulted, Attributes: map[string]string{
		"protocol":      formatProtocol(e.Protocol),
		"asset":         normalizeAsset(e.Asset),
		"priorPremium":  formatAmount(e.PriorPremium),
		"clippedDebt":   formatAmount(e.ClippedDebt),
		"unsettledDebt": formatAmount(e.UnsettledDebt),
	}}
}

// PoolProtocolBalance records a prepaid balance deposit or withdrawal.
type PoolProtocolBalance struct {
	Protocol [32]byte
	Asset    string
	Actor    [20]byte
	Deposit  bool
	Amount   *uint256.Int
	Balance  *uint256.Int
}

// EventType satisfies the Event interface.
func (PoolProtocolBalance) EventType() string { return TypePoolProtocolBalance }

// Event converts the structured payload into a broadcastable event.
func (e PoolProtocolBalance) Event() *types.Event {
	direction := "withdraw"
	if e.Deposit {
		direction = "deposit"
	}
	return &types.Event{Type: TypePoolProtocolBalance, Attributes: map[string]string{
		"protocol":  formatProtocol(e.Protocol),
		"asset":     normalizeAsset(e.Asset),
		"actor":     formatAddress(e.Actor),
		"direction": direction,
		"amount":    formatAmount(e.Amount),
		"balance":   formatAmount(e.Balance),
	}}
}

// PoolPriceSet records a stored USD price update.
type PoolPriceSet struct {
	Asset         string
	USDPrice      *uint256.Int
	YieldPerBlock *uint256.Int
}

// EventType satisfies the Event interface.
func (PoolPriceSet) EventType() string { return TypePoolPriceSet }

// Event converts the structured payload into a broadcastable event.
func (e PoolPriceSet) Event() *types.Event {
	return &types.Event{Type: TypePoolPriceSet, Attributes: map[string]string{
		"asset":         normalizeAsset(e.Asset),
		"usdPrice":      formatAmount(e.USDPrice),
		"yieldPerBlock": formatAmount(e.YieldPerBlock),
	}}
}

// PoolWeightsSet records a weight distribution.
type PoolWeightsSet struct {
	Assets            []string
	Weights           []*uint256.Int
	BeneficiaryWeight *uint256.Int
	Initial           bool
}

// EventType satisfies the Event interface.
func (PoolWeightsSet) EventType() string { return TypePoolWeightsSet }

// Event converts the structured payload into a broadcastable event.
func (e PoolWeightsSet) Event() *types.Event {
	attrs := map[string]string{
		"beneficiary": formatAmount(e.BeneficiaryWeight),
		"initial":     strconv.FormatBool(e.Initial),
	}
	for i, asset := range e.Assets {
		if i < len(e.Weights) {
			attrs["weight."+normalizeAsset(asset)] = formatAmount(e.Weights[i])
		}
	}
	return &types.Event{Type: TypePoolWeightsSet, Attributes: attrs}
}

// PoolYieldRedeemed records yield tokens burned for underlying.
type PoolYieldRedeemed struct {
	Holder   [20]byte
	Receiver [20]byte
	Amount   *uint256.Int
	Assets   []string
	Paid     []*uint256.Int
}

// EventType satisfies the Event interface.
func (PoolYieldRedeemed) EventType() string { return TypePoolYieldRedeemed }

// Event converts the structured payload into a broadcastable event.
func (e PoolYieldRedeemed) Event() *types.Event {
	attrs := map[string]string{
		"holder":   formatAddress(e.Holder),
		"receiver": formatAddress(e.Receiver),
		"amount":   formatAmount(e.Amount),
	}
	for i, asset := range e.Assets {
		if i < len(e.Paid) {
			attrs["paid."+normalizeAsset(asset)] = formatAmount(e.Paid[i])
		}
	}
	return &types.Event{Type: TypePoolYieldRedeemed, Attributes: attrs}
}

// PoolYieldTransferred records a yield token transfer.
type PoolYieldTransferred struct {
	From   [20]byte
	To     [20]byte
	Amount *uint256.Int
}

// EventType satisfies the Event interface.
func (PoolYieldTransferred) EventType() string { return TypePoolYieldTransferred }

// Event converts the structured payload into a broadcastable event.
func (e PoolYieldTransferred) Event() *types.Event {
	return &types.Event{Type: TypePoolYieldTransferred, Attributes: map[string]string{
		"from":   formatAddress(e.From),
		"to":     formatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}}
}

// PoolPayout records the amounts drawn from one asset by a payout.
type PoolPayout struct {
	Receiver         [20]byte
	Asset            string
	FirstMoneyOut    *uint256.Int
	StakersPool      *uint256.Int
	UnallocatedYield *uint256.Int
	StakersBalance   *uint256.Int
}

// EventType satisfies the Event interface.
func (PoolPayout) EventType() string { return TypePoolPayout }

// Event converts the structured payload into a broadcastable event.
func (e PoolPayout) Event() *types.Event {
	return &types.Event{Type: TypePoolPayout, Attributes: map[string]string{
		"receiver":         formatAddress(e.Receiver),
		"asset":            normalizeAsset(e.Asset),
		"firstMoneyOut":    formatAmount(e.FirstMoneyOut),
		"stakersPool":      formatAmount(e.StakersPool),
		"unallocatedYield": formatAmount(e.UnallocatedYield),
		"stakersBalance":   formatAmount(e.StakersBalance),
	}}
}

// PoolAssetChanged records an asset lifecycle or parameter change.
type PoolAssetChanged struct {
	Asset  string
	Action string
	Value  string
}

// EventType satisfies the Event interface.
func (PoolAssetChanged) EventType() string { return TypePoolAssetChanged }

// Event converts the structured payload into a broadcastable event.
func (e PoolAssetChanged) Event() *types.Event {
	attrs := map[string]string{
		"asset":  normalizeAsset(e.Asset),
		"action": e.Action,
	}
	if e.Value != "" {
		attrs["value"] = e.Value
	}
	return &types.Event{Type: TypePoolAssetChanged, Attributes: attrs}
}

// PoolProtocolChanged records a protocol registry change.
type PoolProtocolChanged struct {
	Protocol [32]byte
	Action   string
	Manager  [20]byte
	Agent    [20]byte
	Assets   []string
}

// EventType satisfies the Event interface.
func (PoolProtocolChanged) EventType() string { return TypePoolProtocolChanged }

// Event converts the structured payload into a broadcastable event.
func (e PoolProtocolChanged) Event() *types.Event {
	attrs := map[string]string{
		"protocol": formatProtocol(e.Protocol),
		"action":   e.Action,
	}
	if !zeroAddress(e.Manager) {
		attrs["manager"] = formatAddress(e.Manager)
	}
	if !zeroAddress(e.Agent) {
		attrs["agent"] = formatAddress(e.Agent)
	}
	for i, asset := range e.Assets {
		attrs["asset."+strconv.Itoa(i)] = normalizeAsset(asset)
	}
	return &types.Event{Type: TypePoolProtocolChanged, Attributes: attrs}
}

// PoolParamsUpdated records a global parameter change.
type PoolParamsUpdated struct {
	Field string
	Value string
}

// EventType satisfies the Event interface.
func (PoolParamsUpdated) EventType() string { return TypePoolParamsUpdated }

// Event converts the structured payload into a broadcastable event.
func (e PoolParamsUpdated) Event() *types.Event {
	return &types.Event{Type: TypePoolParamsUpdated, Attributes: map[string]string{
		"field": e.Field,
		"value": e.Value,
	}}
}
