package pool

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"coverpool/core/events"
	"coverpool/native/fixedpoint"
)

func TestSetInitialWeightRequiresBeneficiary(t *testing.T) {
	cfg := testConfig()
	cfg.Beneficiary = ""
	h := newHarness(t, cfg)
	h.addAsset("TKN")

	requireReason(t, h.eng.SetInitialWeight(), ErrBeneficiaryUnset)
	requireReason(t, h.eng.SetWeights([]string{"TKN"}, []*uint256.Int{dec("0.5")}, WeightRemainder), ErrBeneficiaryUnset)
	require.NoError(t, h.eng.SetWeights([]string{"TKN"}, []*uint256.Int{fixedpoint.One}, nil))
}

func TestSetInitialWeightRunsOnce(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addAsset("TKN")

	require.NoError(t, h.eng.SetInitialWeight())
	weights, err := h.eng.Weights()
	require.NoError(t, err)
	require.True(t, weights.Initialized)
	require.Equal(t, fixedpoint.One, weights.Beneficiary)
	requireReason(t, h.eng.SetInitialWeight(), ErrAlreadyInit)

	require.NoError(t, h.eng.SetWeights([]string{"TKN"}, []*uint256.Int{fixedpoint.One}, fixedpoint.Zero()))
	requireReason(t, h.eng.SetInitialWeight(), ErrAlreadyInit2)
	require.Equal(t, 2, h.rec.Count(events.TypePoolWeightsSet))
}

func TestSetWeightsMustSumToOne(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addAsset("TKN")
	h.addAsset("USDC")

	requireReason(t, h.eng.SetWeights([]string{"TKN"}, []*uint256.Int{dec("0.5")}, dec("0.3")), ErrSum)
	requireReason(t, h.eng.SetWeights([]string{"TKN", "USDC"}, []*uint256.Int{dec("0.7"), dec("0.5")}, WeightRemainder), ErrSum)
	requireReason(t, h.eng.SetWeights([]string{"TKN"}, nil, WeightRemainder), ErrLength)

	require.NoError(t, h.eng.SetWeights([]string{"TKN"}, []*uint256.Int{dec("0.6")}, WeightRemainder))
	weights, err := h.eng.Weights()
	require.NoError(t, err)
	require.Equal(t, dec("0.4"), weights.Beneficiary)

	// Unlisted assets keep their weight.
	require.NoError(t, h.eng.SetWeights([]string{"USDC"}, []*uint256.Int{dec("0.4")}, fixedpoint.Zero()))
	weights, err = h.eng.Weights()
	require.NoError(t, err)
	sum := new(uint256.Int).Set(weights.Beneficiary)
	for _, w := range weights.Assets {
		sum.Add(sum, w.Amount)
	}
	require.Equal(t, fixedpoint.One, sum)
	require.Equal(t, []AssetAmount{{Asset: "TKN", Amount: dec("0.6")}, {Asset: "USDC", Amount: dec("0.4")}}, weights.Assets)

	requireReason(t, h.eng.AssetDisableDeposits("USDC"), ErrActiveWeight)
	require.NoError(t, h.eng.SetWeights([]string{"USDC"}, []*uint256.Int{fixedpoint.Zero()}, dec("0.4")))
	require.NoError(t, h.eng.AssetDisableDeposits("USDC"))
	requireReason(t, h.eng.SetWeights([]string{"USDC"}, []*uint256.Int{dec("0.1")}, WeightRemainder), ErrDisabled)
}

func TestBeneficiaryAccruesItsWeight(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addAsset("TKN")
	h.addAsset("USDC")
	require.NoError(t, h.eng.SetWeights([]string{"TKN"}, []*uint256.Int{dec("0.5")}, WeightRemainder))
	h.addProtocol(protocolX, units(1_000), "USDC")
	require.NoError(t, h.eng.SetProtocolPremiums(protocolX, []string{"USDC"}, []*uint256.Int{units(1)}, []*uint256.Int{fixedpoint.One}))

	h.at(4)
	bal, err := h.eng.HarvestedYield(beneficiary)
	require.NoError(t, err)
	require.Equal(t, units(2), bal)
	bal, err = h.eng.YieldBalance(beneficiary)
	require.NoError(t, err)
	require.Equal(t, units(2), bal)
	require.Equal(t, units(2), h.asset("TKN").UnallocatedYield)

	require.NoError(t, h.eng.SetBeneficiary(bob))
	h.at(6)
	bal, err = h.eng.HarvestedYield(beneficiary)
	require.NoError(t, err)
	require.Equal(t, units(2), bal)
	bal, err = h.eng.HarvestedYield(bob)
	require.NoError(t, err)
	require.Equal(t, units(1), bal)

	ys, err := h.eng.YieldState()
	require.NoError(t, err)
	require.Equal(t, units(6), ys.TotalSupply)
	last, err := h.eng.YieldLastAccrued()
	require.NoError(t, err)
	require.EqualValues(t, 4, last)
}

func TestRedeemPaysYieldBacking(t *testing.T) {
	cfg := testConfig()
	cfg.StakersPremiumShare = "0.5"
	h := twoAssetPool(t, cfg)
	h.stake(owner, units(10), "TKN")
	h.addProtocol(protocolX, units(1_000), "USDC")
	require.NoError(t, h.eng.SetProtocolPremiums(protocolX, []string{"USDC"}, []*uint256.Int{units(2)}, []*uint256.Int{dec("0.5")}))

	h.at(4)
	harvested, err := h.eng.HarvestFor(owner, "TKN")
	require.NoError(t, err)
	require.Equal(t, units(4), harvested)

	quote, err := h.eng.CalcUnderlying(units(2))
	require.NoError(t, err)
	require.Equal(t, []AssetAmount{{Asset: "TKN", Amount: fixedpoint.Zero()}, {Asset: "USDC", Amount: units(2)}}, quote)

	paid, err := h.eng.Redeem(owner, units(2), bob)
	require.NoError(t, err)
	require.Equal(t, quote, paid)
	require.Equal(t, units(1_002), h.balance(bob, "USDC"))

	usdc := h.asset("USDC")
	require.Equal(t, units(4), usdc.StakersBalance)
	require.Equal(t, units(2), usdc.YieldUnderlying)
	ys, err := h.eng.YieldState()
	require.NoError(t, err)
	require.Equal(t, units(2), ys.TotalSupply)

	_, err = h.eng.Redeem(owner, units(3), bob)
	requireReason(t, err, ErrInsufficientBalance)
	_, err = h.eng.CalcUnderlying(units(3))
	requireReason(t, err, ErrInsufficientBalance)

	require.NoError(t, h.eng.TransferYield(owner, alice, units(1)))
	bal, err := h.eng.HarvestedYield(alice)
	require.NoError(t, err)
	require.Equal(t, units(1), bal)
	requireReason(t, h.eng.TransferYield(alice, owner, units(2)), ErrInsufficientBalance)

	require.Equal(t, 1, h.rec.Count(events.TypePoolYieldRedeemed))
	require.Equal(t, 1, h.rec.Count(events.TypePoolYieldTransferred))
	h.requireCustody()
}

func TestRedeemUnbackedAtFullStakersShare(t *testing.T) {
	h := twoAssetPool(t, testConfig())
	h.stake(owner, units(10), "TKN")
	h.addProtocol(protocolX, units(1_000), "USDC")
	require.NoError(t, h.eng.SetProtocolPremiums(protocolX, []string{"USDC"}, []*uint256.Int{units(2)}, []*uint256.Int{dec("0.5")}))

	h.at(4)
	harvested, err := h.eng.HarvestFor(owner, "TKN")
	require.NoError(t, err)
	require.Equal(t, units(4), harvested)

	quote, err := h.eng.CalcUnderlying(units(2))
	require.NoError(t, err)
	require.Equal(t, []AssetAmount{{Asset: "TKN", Amount: fixedpoint.Zero()}, {Asset: "USDC", Amount: fixedpoint.Zero()}}, quote)
	require.Equal(t, units(8), h.asset("USDC").StakersBalance)
	require.True(t, h.asset("USDC").YieldUnderlying.IsZero())

	require.NoError(t, h.eng.SetStakersPremiumShare(dec("0.5")))
	h.at(6)
	quote, err = h.eng.CalcUnderlying(units(2))
	require.NoError(t, err)
	require.False(t, quote[1].Amount.IsZero())
}

func TestHarvestValidation(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addAsset("TKN")

	_, err := h.eng.HarvestFor([20]byte{}, "TKN")
	requireReason(t, err, ErrAddress)
	_, err = h.eng.HarvestForMultiple(owner, nil)
	requireReason(t, err, ErrLength)
	requireReason(t, h.eng.HarvestForStakers(nil, "TKN"), ErrLength)
	_, err = h.eng.HarvestFor(owner, "USDC")
	requireReason(t, err, ErrInit)

	amount, err := h.eng.HarvestFor(owner, "TKN")
	require.NoError(t, err)
	require.True(t, amount.IsZero())
	require.Zero(t, h.rec.Count(events.TypePoolHarvested))
}
