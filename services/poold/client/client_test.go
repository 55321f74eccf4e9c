package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coverpool/config"
	"coverpool/crypto"
	"coverpool/services/poold"
	"coverpool/services/poold/client"
	"coverpool/services/poold/server"
)

const secret = "client-secret"

var (
	govAddr   = [20]byte{0x0a}
	agentAddr = [20]byte{0x0b}
	aliceAddr = [20]byte{0x02}
)

func bech(raw [20]byte) string {
	return crypto.FromRaw(crypto.AccountPrefix, raw).String()
}

func startServer(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	cfg.Storage = config.StorageMemory
	cfg.Pool.TimelockBlocks = 2
	cfg.Pool.ClaimWindowBlocks = 5
	cfg.Auth.Secret = secret

	node, err := poold.NewNode(cfg, poold.NewStream(0), nil)
	require.NoError(t, err)
	t.Cleanup(func() { node.Close() })
	_, err = node.ApplyGenesis(&config.Genesis{
		Tokens: []config.GenesisToken{{Symbol: "TKN", Decimals: 18, Balances: map[string]string{
			bech(aliceAddr): "500",
			bech(agentAddr): "500",
		}}},
		Assets: []config.GenesisAsset{{Symbol: "TKN", Governor: bech(govAddr)}},
		Protocols: []config.GenesisProtocol{{ID: "vault", Manager: bech(govAddr), Agent: bech(agentAddr),
			Assets: []string{"TKN"}, Deposits: map[string]string{"TKN": "50"}}},
	})
	require.NoError(t, err)

	srv := server.New(server.Config{Node: node, Auth: cfg.Auth, RateLimit: cfg.RateLimit})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func token(t *testing.T, account [20]byte, scopes ...string) string {
	t.Helper()
	tok, err := server.IssueToken(secret, bech(account), scopes, "", "", time.Hour)
	require.NoError(t, err)
	return tok
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := client.New("  ")
	require.Error(t, err)
}

func TestStakeAndExit(t *testing.T) {
	url := startServer(t)
	ctx := context.Background()

	alice, err := client.New(url, client.WithToken(token(t, aliceAddr, server.ScopeStaker)))
	require.NoError(t, err)
	gov, err := client.New(url, client.WithToken(token(t, govAddr, server.ScopeGov)))
	require.NoError(t, err)

	claims, err := alice.Stake(ctx, "TKN", "20", "")
	require.NoError(t, err)
	require.Equal(t, "20", claims)

	pos, err := alice.Position(ctx, "TKN", bech(aliceAddr))
	require.NoError(t, err)
	require.Equal(t, "20", pos.ClaimBalance)

	index, err := alice.Withdraw(ctx, "TKN", "5")
	require.NoError(t, err)
	require.Equal(t, uint64(0), index)

	_, err = alice.WithdrawClaim(ctx, "TKN", index, "")
	require.Equal(t, "TIMELOCK_ACTIVE", client.ReasonOf(err))

	for i := 0; i < 3; i++ {
		_, err := gov.AdvanceBlock(ctx)
		require.NoError(t, err)
	}
	paid, err := alice.WithdrawClaim(ctx, "TKN", index, "")
	require.NoError(t, err)
	require.Equal(t, "5", paid)

	status, err := alice.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), status.Height)
	require.Equal(t, []string{"TKN"}, status.Assets)
}

func TestAPIErrorCarriesStatus(t *testing.T) {
	url := startServer(t)
	anon, err := client.New(url)
	require.NoError(t, err)

	_, err = anon.Stake(context.Background(), "TKN", "1", "")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Equal(t, "UNAUTHORIZED", apiErr.Reason)
}

func TestGovAndProtocolCalls(t *testing.T) {
	url := startServer(t)
	ctx := context.Background()
	gov, err := client.New(url, client.WithToken(token(t, govAddr, server.ScopeGov)))
	require.NoError(t, err)
	agent, err := client.New(url, client.WithToken(token(t, agentAddr, server.ScopeProtocol)))
	require.NoError(t, err)

	_, err = gov.Gov(ctx, "params", map[string]any{"claimWindowBlocks": 9})
	require.NoError(t, err)
	params, err := gov.Params(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(9), params.ClaimWindowBlocks)

	require.NoError(t, agent.DepositProtocolBalance(ctx, "vault", "TKN", "10"))
	require.NoError(t, agent.WithdrawProtocolBalance(ctx, "vault", "TKN", "60", ""))
	err = agent.WithdrawProtocolBalance(ctx, "vault", "TKN", "1", "")
	require.Error(t, err)
}
