package pool

import (
	"fmt"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"coverpool/core/events"
	"coverpool/native/fixedpoint"
)

func TestAssetAdd(t *testing.T) {
	h := newHarness(t, testConfig())

	requireReason(t, h.eng.AssetAdd(AssetSpec{Symbol: "ETH", Governor: governor}), ErrToken)
	requireReason(t, h.eng.AssetAdd(AssetSpec{Symbol: "TKN"}), ErrAddress)
	requireReason(t, h.eng.AssetAdd(AssetSpec{Symbol: "TKN", Governor: governor, ExitFee: dec("1.01")}), ErrFee)
	requireReason(t, h.eng.AssetAdd(AssetSpec{Symbol: " ", Governor: governor}), ErrInit)

	h.addAsset("tkn")
	require.NoError(t, h.eng.AssetAdd(AssetSpec{
		Symbol:          "USDC",
		Governor:        governor,
		ClaimTokenID:    "cvUSDC",
		DepositEnabled:  true,
		PremiumsEnabled: true,
		USDPrice:        fixedpoint.One,
	}))
	requireReason(t, h.eng.AssetAdd(AssetSpec{Symbol: "TKN", Governor: governor}), ErrDuplicate)

	tkn := h.asset("TKN")
	require.Equal(t, "lockTKN", tkn.ClaimTokenID)
	require.Equal(t, governor, tkn.Governor)
	require.Nil(t, tkn.ExchangeRate)
	usdc := h.asset("USDC")
	require.Equal(t, "cvUSDC", usdc.ClaimTokenID)
	require.Equal(t, fixedpoint.One, usdc.StoredUSD)

	list, err := h.eng.Assets()
	require.NoError(t, err)
	require.Equal(t, []string{"TKN", "USDC"}, list)
	_, err = h.eng.ExchangeRate("TKN")
	requireReason(t, err, ErrNoStake)
	require.Equal(t, 2, h.rec.Count(events.TypePoolAssetChanged))
}

func TestAssetRemoveLifecycle(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addAsset("TKN")
	h.stake(owner, units(10), "TKN")
	require.NoError(t, h.eng.SetExitFee("TKN", dec("0.4")))
	requireReason(t, h.eng.SetExitFee("TKN", dec("2")), ErrFee)

	requireReason(t, h.eng.AssetRemove("TKN", bob), ErrStillEnabled)
	require.NoError(t, h.eng.AssetDisableDeposits("TKN"))
	require.NoError(t, h.eng.AssetDisablePremiums("TKN"))
	requireReason(t, h.eng.AssetRemove("TKN", bob), ErrSupply)

	_, err := h.eng.WithdrawStake(owner, units(10), "TKN")
	require.NoError(t, err)
	requireReason(t, h.eng.AssetRemove("TKN", bob), ErrBalance)

	h.at(10)
	paid, err := h.eng.WithdrawClaim(owner, 0, owner, "TKN")
	require.NoError(t, err)
	require.Equal(t, units(6), paid)
	require.NoError(t, h.eng.AssetRemove("TKN", bob))
	require.Equal(t, units(1_004), h.balance(bob, "TKN"))
	require.True(t, h.balance(ModuleAccount, "TKN").IsZero())

	_, err = h.eng.Asset("TKN")
	requireReason(t, err, ErrInit)
	list, err := h.eng.Assets()
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestAssetDisablePremiumsRequiresNoProtocols(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addAsset("TKN")
	h.addProtocol(protocolX, units(1), "TKN")
	requireReason(t, h.eng.AssetDisablePremiums("TKN"), ErrActiveProtocols)
	require.NoError(t, h.eng.ProtocolRemove(protocolX))
	require.NoError(t, h.eng.AssetDisablePremiums("TKN"))
	requireReason(t, h.eng.ProtocolAdd(protocolY, manager, agent, []string{"TKN"}), ErrDisabled)
}

func TestAssetRemoveCreditsStrandedYield(t *testing.T) {
	h := twoAssetPool(t, testConfig())
	h.addProtocol(protocolX, units(1_000), "USDC")
	require.NoError(t, h.eng.SetProtocolPremiums(protocolX, []string{"USDC"}, []*uint256.Int{units(1)}, []*uint256.Int{fixedpoint.One}))

	h.at(3)
	require.NoError(t, h.eng.SetWeights([]string{"TKN", "USDC"}, []*uint256.Int{fixedpoint.Zero(), fixedpoint.One}, fixedpoint.Zero()))
	require.NoError(t, h.eng.AssetDisableDeposits("TKN"))
	require.NoError(t, h.eng.AssetDisablePremiums("TKN"))
	h.at(5)
	require.Equal(t, units(3), h.asset("TKN").UnallocatedYield)
	require.NoError(t, h.eng.AssetRemove("TKN", bob))

	bal, err := h.eng.HarvestedYield(bob)
	require.NoError(t, err)
	require.Equal(t, units(3), bal)
	require.Equal(t, units(2), h.asset("USDC").UnallocatedYield)
}

func TestParamsUpdates(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addAsset("TKN")
	h.stake(owner, units(4), "TKN")
	_, err := h.eng.WithdrawStake(owner, units(1), "TKN")
	require.NoError(t, err)

	require.NoError(t, h.eng.SetTimelock(5))
	requireReason(t, h.eng.SetClaimWindow(0), ErrAmount)
	require.NoError(t, h.eng.SetClaimWindow(2))
	requireReason(t, h.eng.SetStakersPremiumShare(dec("1.5")), ErrFee)
	require.NoError(t, h.eng.SetStakersPremiumShare(dec("0.25")))
	requireReason(t, h.eng.SetBeneficiary([20]byte{}), ErrAddress)
	require.NoError(t, h.eng.SetBeneficiary(alice))

	params, err := h.eng.Params()
	require.NoError(t, err)
	require.EqualValues(t, 5, params.TimelockBlocks)
	require.EqualValues(t, 2, params.ClaimWindowBlocks)
	require.Equal(t, dec("0.25"), params.StakersPremiumShare)
	require.Equal(t, alice, params.Beneficiary)
	require.Equal(t, 4, h.rec.Count(events.TypePoolParamsUpdated))

	// Existing entries follow the current parameters.
	h.at(5)
	entry, err := h.eng.Withdrawal("TKN", owner, 0)
	require.NoError(t, err)
	require.Equal(t, PhaseClaimable, entry.Phase)
	require.EqualValues(t, 7, entry.ExpiresAt)
}

func TestConfigParams(t *testing.T) {
	var cfg Config
	cfg.EnsureDefaults()
	require.EqualValues(t, DefaultTimelockBlocks, cfg.TimelockBlocks)
	require.EqualValues(t, DefaultClaimWindowBlocks, cfg.ClaimWindowBlocks)

	params, err := Config{}.Params()
	require.NoError(t, err)
	require.Equal(t, fixedpoint.One, params.StakersPremiumShare)
	require.Equal(t, [20]byte{}, params.Beneficiary)

	params, err = testConfig().Params()
	require.NoError(t, err)
	require.Equal(t, beneficiary, params.Beneficiary)

	_, err = Config{StakersPremiumShare: "1.5"}.Params()
	require.Error(t, err)
	_, err = Config{StakersPremiumShare: "half"}.Params()
	require.Error(t, err)
	_, err = Config{Beneficiary: "not-an-address"}.Params()
	require.Error(t, err)
	_, err = NewEngine(Config{Beneficiary: "cov1"})
	require.Error(t, err)
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		err    error
		kind   Kind
		reason string
	}{
		{ErrAmount, KindValidation, "AMOUNT"},
		{fmt.Errorf("wrapped: %w", ErrTimelockActive), KindState, "TIMELOCK_ACTIVE"},
		{ErrSum, KindInvariant, "SUM"},
		{fixedpoint.ErrOverflow, KindInvariant, "OVERFLOW"},
		{fixedpoint.ErrUnderflow, KindInvariant, "INSUFFICIENT_BALANCE"},
		{fixedpoint.ErrDivisionByZero, KindInvariant, "DIVISION_BY_ZERO"},
		{fmt.Errorf("opaque"), KindUnknown, ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.kind, KindOf(tc.err), "%v", tc.err)
		require.Equal(t, tc.reason, ReasonOf(tc.err), "%v", tc.err)
	}
	require.Equal(t, "state", KindState.String())
	require.Contains(t, ErrDebt.Error(), "pool: ")
}
