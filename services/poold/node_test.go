package poold

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"coverpool/config"
	"coverpool/core/events"
	"coverpool/core/state"
	"coverpool/crypto"
	"coverpool/native/fixedpoint"
	"coverpool/native/pool"
)

var (
	govAddr   = [20]byte{0x0a}
	agentAddr = [20]byte{0x0b}
	aliceAddr = [20]byte{0x02}
)

func bech(raw [20]byte) string {
	return crypto.FromRaw(crypto.AccountPrefix, raw).String()
}

func testGenesis() *config.Genesis {
	return &config.Genesis{
		Tokens: []config.GenesisToken{
			{Symbol: "TKN", Name: "Token", Decimals: 18, Balances: map[string]string{
				bech(aliceAddr): "1000",
				bech(agentAddr): "1000",
			}},
		},
		Assets: []config.GenesisAsset{
			{Symbol: "TKN", Governor: bech(govAddr), ExitFee: "0.1", USDPrice: "1"},
		},
		Protocols: []config.GenesisProtocol{
			{ID: "lending", Manager: bech(govAddr), Agent: bech(agentAddr), Assets: []string{"TKN"},
				Premiums: map[string]string{"TKN": "1"}, Deposits: map[string]string{"TKN": "100"}},
		},
	}
}

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage = config.StorageMemory
	cfg.Pool.TimelockBlocks = 10
	cfg.Pool.ClaimWindowBlocks = 5
	return cfg
}

func TestApplyGenesisOnce(t *testing.T) {
	rec := &events.Recorder{}
	node, err := NewNode(memoryConfig(), rec, nil)
	require.NoError(t, err)
	t.Cleanup(func() { node.Close() })

	applied, err := node.ApplyGenesis(testGenesis())
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, 1, rec.Count(events.TypePoolPremiumSet))

	applied, err = node.ApplyGenesis(testGenesis())
	require.NoError(t, err)
	require.False(t, applied)

	bal, err := node.Balance(agentAddr, "TKN")
	require.NoError(t, err)
	require.Equal(t, fixedpoint.Units(900), bal)

	var view *pool.AssetView
	require.NoError(t, node.View(func(e *pool.Engine) error {
		view, err = e.Asset("TKN")
		return err
	}))
	require.Equal(t, fixedpoint.Units(1), view.TotalPremiumPerBlock)
	require.Len(t, view.Protocols, 1)
}

func TestApplyGenesisFailureLeavesNothing(t *testing.T) {
	node, err := NewNode(memoryConfig(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { node.Close() })

	g := testGenesis()
	// The agent cannot fund a deposit larger than its balance.
	g.Protocols[0].Deposits["TKN"] = "5000"
	_, err = node.ApplyGenesis(g)
	require.ErrorIs(t, err, state.ErrInsufficientBalance)

	applied, err := node.ApplyGenesis(testGenesis())
	require.NoError(t, err)
	require.True(t, applied)
}

func TestDoCommitsAndDiscards(t *testing.T) {
	node, err := NewNode(memoryConfig(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { node.Close() })
	_, err = node.ApplyGenesis(testGenesis())
	require.NoError(t, err)

	_, err = node.AdvanceBlock()
	require.NoError(t, err)
	require.Equal(t, uint64(1), node.Height())

	err = node.Do("stake", func(e *pool.Engine) error {
		_, err := e.Stake(aliceAddr, fixedpoint.Units(10), aliceAddr, "TKN")
		return err
	})
	require.NoError(t, err)
	require.Zero(t, node.state.Pending())

	err = node.Do("stake", func(e *pool.Engine) error {
		_, err := e.Stake(aliceAddr, fixedpoint.Units(5000), aliceAddr, "TKN")
		return err
	})
	require.Error(t, err)
	bal, err := node.Balance(aliceAddr, "TKN")
	require.NoError(t, err)
	require.Equal(t, fixedpoint.Units(990), bal)

	require.ErrorIs(t, node.SetHeight(0), pool.ErrClockRegression)
	require.NoError(t, node.SetHeight(9))
	require.Equal(t, uint64(9), node.Height())
}

func TestDiscardRewindsClock(t *testing.T) {
	node, err := NewNode(memoryConfig(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { node.Close() })
	require.NoError(t, node.SetHeight(3))

	errLater := errors.New("later step failed")
	err = node.Do("advance", func(e *pool.Engine) error {
		if err := e.SetBlockHeight(10); err != nil {
			return err
		}
		return errLater
	})
	require.ErrorIs(t, err, errLater)
	require.Equal(t, uint64(3), node.Height())

	require.Panics(t, func() {
		_ = node.Do("advance", func(e *pool.Engine) error {
			require.NoError(t, e.SetBlockHeight(12))
			panic("boom")
		})
	})
	require.Equal(t, uint64(3), node.Height())
	require.Zero(t, node.state.Pending())

	next, err := node.AdvanceBlock()
	require.NoError(t, err)
	require.Equal(t, uint64(4), next)
}

func TestStreamStampsAndHubFilters(t *testing.T) {
	hub := NewHub(2)
	stream := NewStream(41, hub)
	stream.SetClock(func() uint64 { return 7 })

	all, cancelAll := hub.Subscribe(nil)
	defer cancelAll()
	tkn, cancelTKN := hub.Subscribe(func(env Envelope) bool { return env.Attributes["asset"] == "TKN" })
	defer cancelTKN()

	stream.Emit(events.PoolPriceSet{Asset: "TKN", USDPrice: fixedpoint.Units(2)})
	stream.Emit(events.PoolPriceSet{Asset: "USDC", USDPrice: fixedpoint.Units(1)})

	first := <-all
	require.Equal(t, uint64(42), first.Seq)
	require.Equal(t, uint64(7), first.Height)
	require.Equal(t, events.TypePoolPriceSet, first.Type)
	require.Equal(t, uint64(43), (<-all).Seq)
	require.Equal(t, "TKN", (<-tkn).Attributes["asset"])
	require.Equal(t, uint64(43), stream.Seq())

	// A subscriber two events behind with a buffer of two is dropped on the
	// third.
	stream.Emit(events.PoolPriceSet{Asset: "DAI"})
	stream.Emit(events.PoolPriceSet{Asset: "DAI"})
	stream.Emit(events.PoolPriceSet{Asset: "DAI"})
	require.Equal(t, 1, hub.Subscribers())
	cancelAll()
	cancelAll()
	require.Equal(t, 1, hub.Subscribers())
}

func TestDoReleasesEventsOnlyOnCommit(t *testing.T) {
	rec := &events.Recorder{}
	node, err := NewNode(memoryConfig(), rec, nil)
	require.NoError(t, err)
	t.Cleanup(func() { node.Close() })
	_, err = node.ApplyGenesis(testGenesis())
	require.NoError(t, err)
	rec.Reset()

	err = node.Do("batch", func(e *pool.Engine) error {
		if _, err := e.Stake(aliceAddr, fixedpoint.Units(1), aliceAddr, "TKN"); err != nil {
			return err
		}
		_, err := e.Stake(aliceAddr, fixedpoint.Units(5000), aliceAddr, "TKN")
		return err
	})
	require.Error(t, err)
	require.Empty(t, rec.Events())
	bal, err := node.Balance(aliceAddr, "TKN")
	require.NoError(t, err)
	require.Equal(t, fixedpoint.Units(1000), bal)

	require.NoError(t, node.Do("stake", func(e *pool.Engine) error {
		_, err := e.Stake(aliceAddr, fixedpoint.Units(1), aliceAddr, "TKN")
		return err
	}))
	require.Equal(t, 1, rec.Count(events.TypePoolStaked))
}
