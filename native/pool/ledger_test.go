package pool

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"coverpool/core/events"
	"coverpool/core/state"
	nativecommon "coverpool/native/common"
	"coverpool/native/fixedpoint"
)

type pauseSet map[string]bool

func (p pauseSet) IsPaused(module string) bool { return p[module] }

func TestStakeFirstDepositMintsOneToOne(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addAsset("TKN")

	minted := h.stake(owner, units(10), "tkn")
	require.Equal(t, units(10), minted)

	rate, err := h.eng.ExchangeRate("TKN")
	require.NoError(t, err)
	require.Equal(t, fixedpoint.One, rate)

	claims, err := h.eng.ClaimBalance("TKN", owner)
	require.NoError(t, err)
	require.Equal(t, units(10), claims)
	require.Equal(t, units(990), h.balance(owner, "TKN"))
	require.Equal(t, 1, h.rec.Count(events.TypePoolStaked))
	h.requireCustody()
}

func TestStakeValidation(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addAsset("TKN")

	_, err := h.eng.Stake(owner, fixedpoint.Zero(), owner, "TKN")
	requireReason(t, err, ErrAmount)
	_, err = h.eng.Stake(owner, units(1), [20]byte{}, "TKN")
	requireReason(t, err, ErrReceiver)
	_, err = h.eng.Stake(owner, units(1), owner, "USDC")
	requireReason(t, err, ErrInit)

	require.NoError(t, h.eng.AssetDisableDeposits("TKN"))
	_, err = h.eng.Stake(owner, units(1), owner, "TKN")
	requireReason(t, err, ErrDisabled)
	require.Equal(t, KindValidation, KindOf(err))
}

func TestStakeFailureLeavesNoTrace(t *testing.T) {
	h := newHarness(t, testConfig())
	h.yieldAssetSetup(0)
	h.stake(owner, units(10), "TKN")
	h.at(5)
	h.rec.Reset()

	before := h.asset("TKN")
	_, err := h.eng.Stake(alice, units(5_000), alice, "TKN")
	require.ErrorIs(t, err, state.ErrInsufficientBalance)
	require.Equal(t, ErrInsufficientBalance.Reason, ReasonOf(err))
	require.Equal(t, KindInvariant, KindOf(err))

	require.Equal(t, before, h.asset("TKN"))
	require.Empty(t, h.rec.Events())
	require.Equal(t, units(1_000), h.balance(alice, "TKN"))
	h.requireCustody()
}

func TestStakeYieldAccruesToSoleStaker(t *testing.T) {
	h := newHarness(t, testConfig())
	h.yieldAssetSetup(10)

	h.at(11)
	h.stake(owner, units(10), "TKN")

	h.at(15)
	pool, err := h.eng.UnallocatedYieldFor("TKN", owner)
	require.NoError(t, err)
	// The block between the premium and the first stake was stranded in the
	// pool and goes to the first staker.
	require.Equal(t, units(5), pool)

	harvested, err := h.eng.HarvestFor(owner, "TKN")
	require.NoError(t, err)
	require.Equal(t, units(5), harvested)

	bal, err := h.eng.HarvestedYield(owner)
	require.NoError(t, err)
	require.Equal(t, units(5), bal)
	require.True(t, h.asset("TKN").UnallocatedYield.IsZero())
	require.Equal(t, 1, h.rec.Count(events.TypePoolHarvested))

	require.NoError(t, h.eng.PayOffDebtAll("USDC"))
	usdc := h.asset("USDC")
	require.Equal(t, units(5), usdc.StakersBalance)
	stream, err := h.eng.ProtocolStream(protocolX, "USDC")
	require.NoError(t, err)
	require.Equal(t, units(995), stream.Balance)
	h.requireCustody()
}

func TestStakeYieldSplitsByHoldingTime(t *testing.T) {
	h := newHarness(t, testConfig())
	h.yieldAssetSetup(10)

	h.at(11)
	h.stake(owner, units(10), "TKN")
	h.at(12)
	minted := h.stake(alice, units(10), "TKN")
	require.Equal(t, units(10), minted)

	h.at(15)
	require.Equal(t, units(5), h.asset("TKN").UnallocatedYield)
	require.NoError(t, h.eng.HarvestForStakers([][20]byte{owner, alice}, "TKN"))

	ownerYield, err := h.eng.HarvestedYield(owner)
	require.NoError(t, err)
	aliceYield, err := h.eng.HarvestedYield(alice)
	require.NoError(t, err)
	require.Equal(t, dec("3.5"), ownerYield)
	require.Equal(t, dec("1.5"), aliceYield)
	require.True(t, h.asset("TKN").UnallocatedYield.IsZero())

	ys, err := h.eng.YieldState()
	require.NoError(t, err)
	require.Equal(t, units(5), ys.TotalSupply)

	// Staking never moves the exchange rate.
	rate, err := h.eng.ExchangeRate("TKN")
	require.NoError(t, err)
	require.Equal(t, fixedpoint.One, rate)
}

func TestTransferClaimHarvestsBothSides(t *testing.T) {
	h := newHarness(t, testConfig())
	h.yieldAssetSetup(0)
	h.stake(owner, units(10), "TKN")

	h.at(4)
	require.NoError(t, h.eng.TransferClaim(owner, alice, units(5), "TKN"))
	ownerYield, err := h.eng.HarvestedYield(owner)
	require.NoError(t, err)
	require.Equal(t, units(4), ownerYield)

	h.at(6)
	total, err := h.eng.Harvest(alice)
	require.NoError(t, err)
	require.Equal(t, units(1), total)
	total, err = h.eng.HarvestForMultiple(owner, []string{"TKN", "USDC"})
	require.NoError(t, err)
	require.Equal(t, units(1), total)

	err = h.eng.TransferClaim(alice, owner, units(6), "TKN")
	requireReason(t, err, ErrInsufficientBalance)
	require.Equal(t, 1, h.rec.Count(events.TypePoolClaimTransferred))
}

func TestStakeValueFollowsPremium(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addAsset("TKN")
	h.stake(owner, units(10), "TKN")
	h.stake(alice, units(30), "TKN")
	h.addProtocol(protocolX, units(100), "TKN")
	require.NoError(t, h.eng.SetProtocolPremiums(protocolX, []string{"TKN"}, []*uint256.Int{units(2)}, nil))

	h.at(10)
	value, err := h.eng.StakeValue("TKN", owner)
	require.NoError(t, err)
	require.Equal(t, units(15), value)
	value, err = h.eng.StakeValue("TKN", alice)
	require.NoError(t, err)
	require.Equal(t, units(45), value)

	debt, err := h.eng.AccruedDebt(protocolX, "TKN")
	require.NoError(t, err)
	require.Equal(t, units(20), debt)
	// Views never persist settlement.
	paid, err := h.eng.TotalPremiumLastPaid("TKN")
	require.NoError(t, err)
	require.Zero(t, paid)
	h.requireCustody()
}

func TestPausedEngineRejectsMutations(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addAsset("TKN")
	h.stake(owner, units(1), "TKN")

	h.eng.SetPauses(pauseSet{moduleName: true})
	_, err := h.eng.Stake(owner, units(1), owner, "TKN")
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
	require.Equal(t, "PAUSED", ReasonOf(err))

	// Reads keep working while paused.
	claims, err := h.eng.ClaimBalance("TKN", owner)
	require.NoError(t, err)
	require.Equal(t, units(1), claims)

	h.eng.SetPauses(pauseSet{})
	h.stake(owner, units(1), "TKN")
}

func TestBlockHeightNeverRegresses(t *testing.T) {
	h := newHarness(t, testConfig())
	h.at(7)
	requireReason(t, h.eng.SetBlockHeight(6), ErrClockRegression)
	require.NoError(t, h.eng.SetBlockHeight(7))
	require.EqualValues(t, 7, h.eng.BlockHeight())

	restored, err := NewEngine(testConfig())
	require.NoError(t, err)
	require.NoError(t, restored.SetState(h.st))
	require.EqualValues(t, 7, restored.BlockHeight())
}

// faultyState panics on the next token transfer while armed.
type faultyState struct {
	*state.Manager
	armed bool
}

func (f *faultyState) Transfer(from, to []byte, symbol string, amount *uint256.Int) error {
	if f.armed {
		f.armed = false
		panic("transfer fault")
	}
	return f.Manager.Transfer(from, to, symbol, amount)
}

func TestPanicRevertsAndReleasesLock(t *testing.T) {
	h := newHarness(t, testConfig())
	h.yieldAssetSetup(10)
	faulty := &faultyState{Manager: h.st}
	require.NoError(t, h.eng.SetState(faulty))

	h.at(15)
	faulty.armed = true
	require.PanicsWithValue(t, "transfer fault", func() {
		_, _ = h.eng.Stake(owner, units(10), owner, "USDC")
	})

	// The lock is free again and the settlement written before the panic
	// was rolled back.
	require.EqualValues(t, 15, h.eng.BlockHeight())
	stored := func() (*uint256.Int, *uint256.Int) {
		var balance, stakers *uint256.Int
		require.NoError(t, h.eng.exec(false, func() error {
			stream, err := h.eng.loadStream(protocolX, "USDC")
			if err != nil {
				return err
			}
			asset, err := h.eng.requireAsset("USDC")
			if err != nil {
				return err
			}
			balance, stakers = stream.Balance, asset.StakersBalance
			return nil
		}))
		return balance, stakers
	}
	balance, stakers := stored()
	require.Equal(t, units(1_000), balance)
	require.True(t, stakers.IsZero())
	require.Zero(t, h.rec.Count(events.TypePoolStaked))

	h.stake(owner, units(10), "USDC")
	balance, stakers = stored()
	require.Equal(t, units(995), balance)
	require.Equal(t, units(15), stakers)
	require.Equal(t, 1, h.rec.Count(events.TypePoolStaked))
	h.requireCustody()
}

func TestNilEngine(t *testing.T) {
	var eng *Engine
	require.Error(t, eng.SetBlockHeight(1))
	_, err := eng.Stake(owner, units(1), owner, "TKN")
	require.Error(t, err)

	unwired, err := NewEngine(Config{})
	require.NoError(t, err)
	_, err = unwired.Assets()
	require.Error(t, err)
}
