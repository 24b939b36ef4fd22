package overrides

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenslotfinder/pkg/store"
)

var owner = common.HexToAddress("0xa41F142b6eb2b164f8164CAE0716892Ce02f311f")
var spender = common.HexToAddress("0x7C8E77390e999DA2f826305844078B88DC39aB82")

func resolvedRecord(balanceSlot, allowanceSlot uint64, target string) store.TokenRecord {
	lang := "solidity"
	return store.TokenRecord{
		Balance:   store.SlotRecord{Slot: &balanceSlot, Target: &target},
		Allowance: store.SlotRecord{Slot: &allowanceSlot, Target: &target},
		Compiler:  &lang,
	}
}

func TestSynthesizeEmptyWhenUnresolved(t *testing.T) {
	doc := Synthesize(store.TokenRecord{}, owner, spender)
	assert.Empty(t, doc)
}

func TestSynthesizeMergesSharedHolder(t *testing.T) {
	target := "0x1111111111111111111111111111111111111111"
	rec := resolvedRecord(2, 5, target)

	doc := Synthesize(rec, owner, spender)
	require.Contains(t, doc, target)
	assert.Len(t, doc[target].StateDiff, 2)
}

func TestSynthesizeOverrideValueDominates(t *testing.T) {
	target := "0x2222222222222222222222222222222222222222"
	rec := resolvedRecord(0, 1, target)

	doc := Synthesize(rec, owner, spender)
	for _, v := range doc[target].StateDiff {
		assert.Equal(t, overrideHash, v)
	}
}

func TestSynthesizeDistinctHolders(t *testing.T) {
	balanceTarget := "0x3333333333333333333333333333333333333333"
	allowanceTarget := "0x4444444444444444444444444444444444444444"
	slot0 := uint64(0)
	slot1 := uint64(1)
	lang := "solidity"
	rec := store.TokenRecord{
		Balance:   store.SlotRecord{Slot: &slot0, Target: &balanceTarget},
		Allowance: store.SlotRecord{Slot: &slot1, Target: &allowanceTarget},
		Compiler:  &lang,
	}

	doc := Synthesize(rec, owner, spender)
	require.Contains(t, doc, balanceTarget)
	require.Contains(t, doc, allowanceTarget)
	assert.Len(t, doc[balanceTarget].StateDiff, 1)
	assert.Len(t, doc[allowanceTarget].StateDiff, 1)
}
