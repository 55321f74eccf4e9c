package indexer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"coverpool/services/poold"
)

func setupIndexer(t *testing.T) *Indexer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	ix, err := New(db, nil)
	require.NoError(t, err)
	return ix
}

func envelope(seq uint64, typ, asset, staker string) poold.Envelope {
	return poold.Envelope{Seq: seq, Height: seq * 10, Type: typ, Attributes: map[string]string{
		"asset":  asset,
		"staker": staker,
		"amount": "1",
	}}
}

func TestRecordAndQuery(t *testing.T) {
	ix := setupIndexer(t)
	ctx := context.Background()
	require.NoError(t, ix.Record(ctx, envelope(1, "pool.staked", "TKN", "cov1a")))
	require.NoError(t, ix.Record(ctx, envelope(2, "pool.harvested", "TKN", "cov1b")))
	require.NoError(t, ix.Record(ctx, envelope(3, "pool.staked", "USDC", "cov1a")))

	// A replay of the same envelope is ignored.
	require.NoError(t, ix.Record(ctx, envelope(1, "pool.staked", "TKN", "cov1a")))

	all, err := ix.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, uint64(20), all[1].Height)
	require.Equal(t, "cov1b", all[1].Attributes["staker"])

	staked, err := ix.Query(ctx, Filter{Type: "pool.staked", Asset: "tkn"})
	require.NoError(t, err)
	require.Len(t, staked, 1)
	require.Equal(t, uint64(1), staked[0].Seq)

	byAccount, err := ix.Query(ctx, Filter{Account: "cov1a", AfterSeq: 1})
	require.NoError(t, err)
	require.Len(t, byAccount, 1)
	require.Equal(t, "USDC", byAccount[0].Attributes["asset"])

	limited, err := ix.Query(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)

	last, err := ix.LastSeq(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), last)
}

func TestRunDrainsQueue(t *testing.T) {
	ix := setupIndexer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ix.Run(ctx)
		close(done)
	}()
	for i := uint64(1); i <= 5; i++ {
		ix.Publish(envelope(i, "pool.staked", "TKN", "cov1a"))
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("indexer did not stop")
	}
	last, err := ix.LastSeq(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(5), last)
	require.Zero(t, ix.Dropped())
}

func TestFingerprintIgnoresAttributeOrder(t *testing.T) {
	a := poold.Envelope{Seq: 7, Type: "pool.payout", Attributes: map[string]string{"asset": "TKN", "amount": "3"}}
	b := poold.Envelope{Seq: 7, Type: "pool.payout", Attributes: map[string]string{"amount": "3", "asset": "TKN"}}
	require.Equal(t, Fingerprint(a), Fingerprint(b))
	require.Len(t, Fingerprint(a), 64)

	b.Seq = 8
	require.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "", nil)
	require.Error(t, err)
}
