package events

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestBroadcastUsesPayloadRenderer(t *testing.T) {
	evt := PoolStaked{
		Staker:   [20]byte{1},
		Receiver: [20]byte{1},
		Asset:    "tkn",
		Amount:   uint256.NewInt(10),
		Minted:   uint256.NewInt(10),
	}
	out := Broadcast(evt)
	if out.Type != TypePoolStaked {
		t.Fatalf("unexpected type %s", out.Type)
	}
	if out.Attributes["asset"] != "TKN" || out.Attributes["minted"] != "10" {
		t.Fatalf("unexpected attributes %v", out.Attributes)
	}
	if out.Attributes["claimSupply"] != "0" {
		t.Fatalf("nil amounts should render as zero, got %q", out.Attributes["claimSupply"])
	}
}

func TestWithdrawalKindDrivesType(t *testing.T) {
	evt := PoolWithdrawal{Kind: TypePoolWithdrawPurged, Staker: [20]byte{2}, Actor: [20]byte{3}, Asset: "tkn", Index: 4}
	out := Broadcast(evt)
	if out.Type != TypePoolWithdrawPurged {
		t.Fatalf("unexpected type %s", out.Type)
	}
	if out.Attributes["index"] != "4" || out.Attributes["actor"] == "" {
		t.Fatalf("unexpected attributes %v", out.Attributes)
	}
}

func TestRecorderCounts(t *testing.T) {
	rec := &Recorder{}
	Multi{rec, nil, NoopEmitter{}}.Emit(PoolHarvested{Asset: "a"})
	rec.Emit(PoolHarvested{Asset: "b"})
	rec.Emit(PoolPayout{Asset: "a"})
	if rec.Count(TypePoolHarvested) != 2 || len(rec.Events()) != 3 {
		t.Fatalf("unexpected recorder state %v", rec.Events())
	}
	rec.Reset()
	if len(rec.Events()) != 0 {
		t.Fatalf("reset did not clear events")
	}
}
