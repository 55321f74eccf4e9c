package keeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coverpool/config"
	"coverpool/crypto"
	"coverpool/native/fixedpoint"
	"coverpool/native/pool"
	"coverpool/observability/metrics"
	"coverpool/services/poold"
)

var (
	gov   = [20]byte{0x0a}
	agent = [20]byte{0x0b}
	alice = [20]byte{0x02}
)

func bech(raw [20]byte) string { return crypto.FromRaw(crypto.AccountPrefix, raw).String() }

func newKeeper(t *testing.T) (*Keeper, *poold.Node) {
	t.Helper()
	cfg := config.Default()
	cfg.Storage = config.StorageMemory
	cfg.Pool.Beneficiary = bech(gov)
	node, err := poold.NewNode(cfg, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { node.Close() })

	_, err = node.ApplyGenesis(&config.Genesis{
		Tokens: []config.GenesisToken{{Symbol: "TKN", Name: "Token", Balances: map[string]string{
			bech(alice): "100",
			bech(agent): "100",
		}}},
		Assets: []config.GenesisAsset{{Symbol: "TKN", Governor: bech(gov), USDPrice: "1"}},
		Protocols: []config.GenesisProtocol{{
			ID: "vault", Manager: bech(gov), Agent: bech(agent), Assets: []string{"TKN"},
			Premiums: map[string]string{"TKN": "2"}, Deposits: map[string]string{"TKN": "10"},
		}},
		Weights: &config.GenesisWeights{Initial: true, Assets: map[string]string{"TKN": "1"}, Beneficiary: "0"},
	})
	require.NoError(t, err)
	require.NoError(t, node.Do("stake", func(e *pool.Engine) error {
		_, err := e.Stake(alice, fixedpoint.Units(10), alice, "TKN")
		return err
	}))
	return New(node, metrics.Pool(), nil), node
}

func TestRunBlockAndPayoff(t *testing.T) {
	k, node := newKeeper(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, k.RunBlock())
	}
	require.Equal(t, uint64(3), node.Height())
	require.NoError(t, k.RunPayoff())

	var view *pool.AssetView
	require.NoError(t, node.View(func(e *pool.Engine) error {
		var err error
		view, err = e.Asset("TKN")
		return err
	}))
	// Three blocks at two per block on top of the ten staked.
	require.Equal(t, fixedpoint.Units(16), view.StakersBalance)
	require.Equal(t, uint64(3), view.TotalPremiumLastPaid)

	violations, err := k.Check()
	require.NoError(t, err)
	require.Empty(t, violations)
	require.NoError(t, k.RunGauges())
}

func TestPayoffSurvivesDefault(t *testing.T) {
	k, node := newKeeper(t)
	// Ten prepaid at two per block runs dry after block five.
	require.NoError(t, node.SetHeight(8))
	require.NoError(t, k.RunPayoff())

	var stream *pool.PremiumStream
	require.NoError(t, node.View(func(e *pool.Engine) error {
		id, err := config.ProtocolID("vault")
		if err != nil {
			return err
		}
		stream, err = e.ProtocolStream(id, "TKN")
		return err
	}))
	require.True(t, stream.Balance.IsZero())
	require.True(t, stream.PremiumPerBlock.IsZero())

	violations, err := k.Check()
	require.NoError(t, err)
	require.Empty(t, violations)
}

func TestRegisterSchedules(t *testing.T) {
	k, node := newKeeper(t)
	require.Error(t, k.Register(config.KeeperConfig{PayoffSchedule: "not a schedule"}))

	k, node = newKeeper(t)
	require.NoError(t, k.Register(config.KeeperConfig{BlockSchedule: "@every 1s", PayoffSchedule: "@every 1m"}))
	require.Len(t, k.cron.Entries(), 2)
	k.Start()
	require.Eventually(t, func() bool { return node.Height() >= 1 }, 5*time.Second, 50*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	k.Stop(ctx)
}
