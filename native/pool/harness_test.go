package pool

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"coverpool/core/events"
	"coverpool/core/state"
	"coverpool/crypto"
	"coverpool/native/fixedpoint"
	"coverpool/storage"
)

var (
	owner       = [20]byte{0x01}
	alice       = [20]byte{0x02}
	bob         = [20]byte{0x03}
	governor    = [20]byte{0x0a}
	agent       = [20]byte{0x0b}
	manager     = [20]byte{0x0c}
	beneficiary = [20]byte{0x0d}
	protocolX   = [32]byte{0x10}
	protocolY   = [32]byte{0x11}
)

func units(n uint64) *uint256.Int { return fixedpoint.Units(n) }

func dec(s string) *uint256.Int { return fixedpoint.MustParse(s) }

type harness struct {
	t   *testing.T
	eng *Engine
	st  *state.Manager
	rec *events.Recorder
}

func testConfig() Config {
	return Config{
		TimelockBlocks:    10,
		ClaimWindowBlocks: 5,
		Beneficiary:       crypto.FromRaw(crypto.AccountPrefix, beneficiary).String(),
	}
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	for _, symbol := range []string{"TKN", "USDC"} {
		require.NoError(t, st.RegisterToken(symbol, symbol+" token", 18))
	}
	eng, err := NewEngine(cfg)
	require.NoError(t, err)
	require.NoError(t, eng.SetState(st))
	rec := &events.Recorder{}
	eng.SetEmitter(rec)
	for _, addr := range [][20]byte{owner, alice, bob, agent} {
		require.NoError(t, st.Mint(addr[:], "TKN", units(1_000)))
		require.NoError(t, st.Mint(addr[:], "USDC", units(1_000)))
	}
	return &harness{t: t, eng: eng, st: st, rec: rec}
}

func (h *harness) at(height uint64) {
	h.t.Helper()
	require.NoError(h.t, h.eng.SetBlockHeight(height))
}

func (h *harness) addAsset(symbol string) {
	h.t.Helper()
	require.NoError(h.t, h.eng.AssetAdd(AssetSpec{
		Symbol:          symbol,
		Governor:        governor,
		DepositEnabled:  true,
		PremiumsEnabled: true,
	}))
}

// addProtocol registers id on the assets and prepays deposit on each.
func (h *harness) addProtocol(id [32]byte, deposit *uint256.Int, symbols ...string) {
	h.t.Helper()
	require.NoError(h.t, h.eng.ProtocolAdd(id, manager, agent, symbols))
	for _, symbol := range symbols {
		require.NoError(h.t, h.eng.DepositProtocolBalance(agent, id, symbol, deposit))
	}
}

func (h *harness) stake(who [20]byte, amount *uint256.Int, symbol string) *uint256.Int {
	h.t.Helper()
	minted, err := h.eng.Stake(who, amount, who, symbol)
	require.NoError(h.t, err)
	return minted
}

func (h *harness) asset(symbol string) *AssetView {
	h.t.Helper()
	view, err := h.eng.Asset(symbol)
	require.NoError(h.t, err)
	return view
}

func (h *harness) balance(who [20]byte, symbol string) *uint256.Int {
	h.t.Helper()
	bal, err := h.st.Balance(who[:], symbol)
	require.NoError(h.t, err)
	return bal
}

// yieldAssetSetup routes all emission to TKN stakers, funded by a USDC
// premium of one unit per block at a price of one.
func (h *harness) yieldAssetSetup(premiumAt uint64) {
	h.t.Helper()
	h.addAsset("TKN")
	h.addAsset("USDC")
	h.addProtocol(protocolX, units(1_000), "USDC")
	require.NoError(h.t, h.eng.SetWeights([]string{"TKN", "USDC"}, []*uint256.Int{fixedpoint.One, fixedpoint.Zero()}, fixedpoint.Zero()))
	h.at(premiumAt)
	require.NoError(h.t, h.eng.SetProtocolPremiums(protocolX, []string{"USDC"}, []*uint256.Int{units(1)}, []*uint256.Int{fixedpoint.One}))
}

// requireCustody checks that the module account holds exactly what the
// ledger attributes to it for each asset.
func (h *harness) requireCustody() {
	h.t.Helper()
	attributed := make(map[string]*uint256.Int)
	require.NoError(h.t, h.eng.exec(false, func() error {
		list, err := h.eng.assetList()
		if err != nil {
			return err
		}
		for _, symbol := range list {
			asset, err := h.eng.requireAsset(symbol)
			if err != nil {
				return err
			}
			want := new(uint256.Int)
			for _, v := range []*uint256.Int{asset.StakersBalance, asset.FirstMoneyOut, asset.PendingWithdrawals, asset.YieldUnderlying} {
				want.Add(want, v)
			}
			for _, id := range asset.Protocols {
				stream, err := h.eng.loadStream(id, symbol)
				if err != nil {
					return err
				}
				want.Add(want, stream.Balance)
			}
			attributed[symbol] = want
		}
		return nil
	}))
	for symbol, want := range attributed {
		require.Equal(h.t, want.Dec(), h.balance(ModuleAccount, symbol).Dec(), "custody of %s", symbol)
	}
}

func requireReason(t *testing.T, err error, want *Error) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, want)
	require.Equal(t, want.Reason, ReasonOf(err))
}
