package pool

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"coverpool/core/events"
	"coverpool/native/fixedpoint"
)

func twoAssetPool(t *testing.T, cfg Config) *harness {
	h := newHarness(t, cfg)
	h.addAsset("TKN")
	h.addAsset("USDC")
	require.NoError(t, h.eng.SetWeights([]string{"TKN", "USDC"}, []*uint256.Int{fixedpoint.One, fixedpoint.Zero()}, fixedpoint.Zero()))
	return h
}

func TestPremiumSettlementClipsInsolventProtocol(t *testing.T) {
	h := twoAssetPool(t, testConfig())
	h.addProtocol(protocolX, units(5), "USDC")
	require.NoError(t, h.eng.SetProtocolPremiums(protocolX, []string{"USDC"}, []*uint256.Int{units(2)}, []*uint256.Int{fixedpoint.One}))

	h.at(4)
	debt, err := h.eng.AccruedDebt(protocolX, "USDC")
	require.NoError(t, err)
	require.Equal(t, units(5), debt)

	require.NoError(t, h.eng.PayOffDebtAll("USDC"))
	usdc := h.asset("USDC")
	require.Equal(t, units(5), usdc.StakersBalance)
	require.True(t, usdc.TotalPremiumPerBlock.IsZero())
	stream, err := h.eng.ProtocolStream(protocolX, "USDC")
	require.NoError(t, err)
	require.True(t, stream.Balance.IsZero())
	require.True(t, stream.PremiumPerBlock.IsZero())
	require.Equal(t, 1, h.rec.Count(events.TypePoolProtocolDefaulted))

	// Yield emitted before the default is kept; nothing accrues after it.
	ys, err := h.eng.YieldState()
	require.NoError(t, err)
	require.True(t, ys.YieldPerBlock.IsZero())
	require.Equal(t, units(8), h.asset("TKN").UnallocatedYield)
	h.at(8)
	require.Equal(t, units(8), h.asset("TKN").UnallocatedYield)
	h.requireCustody()
}

func TestPayOffDebtAllIsIdempotentWithinBlock(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addAsset("TKN")
	h.stake(owner, units(10), "TKN")
	h.addProtocol(protocolX, units(100), "TKN")
	require.NoError(t, h.eng.SetProtocolPremiums(protocolX, []string{"TKN"}, []*uint256.Int{units(1)}, nil))

	h.at(5)
	require.NoError(t, h.eng.PayOffDebtAll("TKN"))
	first := h.asset("TKN")
	require.NoError(t, h.eng.PayOffDebtAll("TKN"))
	require.Equal(t, first, h.asset("TKN"))
	require.Equal(t, 1, h.rec.Count(events.TypePoolPremiumSettled))
	require.Equal(t, units(15), first.StakersBalance)
	require.EqualValues(t, 5, first.TotalPremiumLastPaid)

	h.at(9)
	require.NoError(t, h.eng.PayOffDebtAll("TKN"))
	paid, err := h.eng.TotalPremiumLastPaid("TKN")
	require.NoError(t, err)
	require.EqualValues(t, 9, paid)
	require.Equal(t, units(19), h.asset("TKN").StakersBalance)
	h.requireCustody()
}

func TestSetProtocolPremiumsValidation(t *testing.T) {
	h := twoAssetPool(t, testConfig())
	h.addProtocol(protocolX, units(10), "USDC")
	one := []*uint256.Int{units(1)}

	requireReason(t, h.eng.SetProtocolPremiums(protocolY, []string{"USDC"}, one, nil), ErrProtocol)
	requireReason(t, h.eng.SetProtocolPremiums(protocolX, []string{"TKN"}, one, nil), ErrWhitelist)
	requireReason(t, h.eng.SetProtocolPremiums(protocolX, []string{"USDC", "TKN"}, one, nil), ErrLength)
	requireReason(t, h.eng.SetProtocolPremiums(protocolX, []string{"USDC"}, one, []*uint256.Int{}), ErrLength)
	requireReason(t, h.eng.SetProtocolPremiums(protocolX, []string{"usdc", "USDC"}, []*uint256.Int{units(1), units(1)}, nil), ErrDuplicate)
	requireReason(t, h.eng.SetProtocolPremiums(protocolX, []string{"ETH"}, one, nil), ErrInit)

	require.NoError(t, h.eng.AssetDisablePremiums("TKN"))
	requireReason(t, h.eng.SetProtocolPremiums(protocolX, []string{"TKN"}, one, nil), ErrDisabled)
	require.Zero(t, h.rec.Count(events.TypePoolPremiumSet))
}

func TestSetTokenPriceRecomputesEmission(t *testing.T) {
	h := twoAssetPool(t, testConfig())
	h.addProtocol(protocolX, units(1_000), "USDC")
	require.NoError(t, h.eng.SetProtocolPremiums(protocolX, []string{"USDC"}, []*uint256.Int{units(2)}, []*uint256.Int{fixedpoint.One}))

	ys, err := h.eng.YieldState()
	require.NoError(t, err)
	require.Equal(t, units(2), ys.YieldPerBlock)

	h.at(4)
	require.NoError(t, h.eng.SetTokenPrice([]string{"USDC"}, []*uint256.Int{dec("0.5")}))
	require.Equal(t, units(8), h.asset("TKN").UnallocatedYield)
	ys, err = h.eng.YieldState()
	require.NoError(t, err)
	require.Equal(t, units(1), ys.YieldPerBlock)

	h.at(6)
	require.Equal(t, units(10), h.asset("TKN").UnallocatedYield)
	require.Equal(t, dec("0.5"), h.asset("USDC").StoredUSD)
	require.Equal(t, 1, h.rec.Count(events.TypePoolPriceSet))

	requireReason(t, h.eng.SetTokenPrice([]string{"USDC"}, nil), ErrLength)
	requireReason(t, h.eng.SetTokenPrice([]string{"ETH"}, []*uint256.Int{fixedpoint.One}), ErrInit)
}

func TestProtocolBalanceDepositAndWithdraw(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addAsset("TKN")
	h.addAsset("USDC")
	h.addProtocol(protocolX, units(100), "USDC")
	require.Equal(t, units(900), h.balance(agent, "USDC"))

	err := h.eng.DepositProtocolBalance(agent, protocolX, "TKN", units(1))
	requireReason(t, err, ErrWhitelist)
	err = h.eng.DepositProtocolBalance(agent, protocolY, "USDC", units(1))
	requireReason(t, err, ErrProtocol)

	require.NoError(t, h.eng.SetProtocolPremiums(protocolX, []string{"USDC"}, []*uint256.Int{units(10)}, nil))
	h.at(5)

	err = h.eng.WithdrawProtocolBalance(owner, protocolX, "USDC", units(1), owner)
	requireReason(t, err, ErrUnauthorized)
	err = h.eng.WithdrawProtocolBalance(agent, protocolX, "USDC", units(51), agent)
	requireReason(t, err, ErrInsufficientBalance)
	require.NoError(t, h.eng.WithdrawProtocolBalance(agent, protocolX, "USDC", units(50), agent))
	require.Equal(t, units(950), h.balance(agent, "USDC"))

	stream, err := h.eng.ProtocolStream(protocolX, "USDC")
	require.NoError(t, err)
	require.True(t, stream.Balance.IsZero())
	require.Equal(t, units(50), h.asset("USDC").StakersBalance)
	require.Equal(t, 2, h.rec.Count(events.TypePoolProtocolBalance))
	h.requireCustody()
}

func TestProtocolLifecycle(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addAsset("TKN")
	h.addAsset("USDC")
	h.addProtocol(protocolX, units(100), "TKN")

	requireReason(t, h.eng.ProtocolAdd(protocolX, manager, agent, []string{"USDC"}), ErrDuplicate)
	requireReason(t, h.eng.ProtocolDepositAdd(protocolX, []string{"TKN"}), ErrDuplicate)
	require.NoError(t, h.eng.ProtocolDepositAdd(protocolX, []string{"USDC"}))
	require.NoError(t, h.eng.DepositProtocolBalance(owner, protocolX, "USDC", units(7)))

	p, err := h.eng.Protocol(protocolX)
	require.NoError(t, err)
	require.Equal(t, []string{"TKN", "USDC"}, p.Assets)

	require.NoError(t, h.eng.ProtocolUpdate(protocolX, manager, bob))
	require.NoError(t, h.eng.SetProtocolPremiums(protocolX, []string{"TKN"}, []*uint256.Int{units(4)}, nil))
	h.at(5)
	requireReason(t, h.eng.ProtocolRemove(protocolX), ErrDebt)

	require.NoError(t, h.eng.SetProtocolPremiums(protocolX, []string{"TKN"}, []*uint256.Int{fixedpoint.Zero()}, nil))
	require.NoError(t, h.eng.ProtocolRemove(protocolX))
	require.Equal(t, units(1_080), h.balance(bob, "TKN"))
	require.Equal(t, units(1_007), h.balance(bob, "USDC"))

	_, err = h.eng.Protocol(protocolX)
	requireReason(t, err, ErrProtocol)
	require.Empty(t, h.asset("TKN").Protocols)
	require.Equal(t, units(20), h.asset("TKN").StakersBalance)
	h.requireCustody()
}
