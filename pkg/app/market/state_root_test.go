package market

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hypermarket/pkg/app/core/ledger"
)

func rootSnapshot() *ledger.Snapshot {
	a := common.HexToAddress("0x1111111111111111111111111111111111111111")
	b := common.HexToAddress("0x2222222222222222222222222222222222222222")
	return &ledger.Snapshot{
		Config:    ledger.GlobalConfig{Owner: a, UnitPrice: 1, ReserveCap: 10, CurrentReserve: 3},
		Currency:  map[common.Address]uint64{a: 5, b: 7},
		Inventory: map[common.Address]uint64{a: 3, b: 1},
		Listings:  map[common.Address]ledger.Listing{a: {Quantity: 3, Price: 2}},
	}
}

func TestStateRootDeterministic(t *testing.T) {
	r1 := StateRoot(rootSnapshot())
	for i := 0; i < 20; i++ {
		if r := StateRoot(rootSnapshot()); r != r1 {
			t.Fatalf("root changed across runs: %s vs %s", r.Hex(), r1.Hex())
		}
	}
	if r1 == (common.Hash{}) {
		t.Error("root should not be zero")
	}
}

func TestStateRootSensitive(t *testing.T) {
	base := StateRoot(rootSnapshot())

	snap := rootSnapshot()
	snap.Currency[common.HexToAddress("0x2222222222222222222222222222222222222222")] = 8
	if StateRoot(snap) == base {
		t.Error("currency change did not change root")
	}

	snap = rootSnapshot()
	snap.Config.CommissionRate = 1
	if StateRoot(snap) == base {
		t.Error("config change did not change root")
	}
}
