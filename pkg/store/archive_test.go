package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	a, err := Load(filepath.Join(t.TempDir(), "nonexistent.json"))
	require.NoError(t, err)
	assert.Empty(t, a.Keys())
}

func TestLoadMalformedFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	a, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, a.Keys())
}

func TestUpsertThenGet(t *testing.T) {
	a, err := Load(filepath.Join(t.TempDir(), "archive.json"))
	require.NoError(t, err)

	slot := uint64(3)
	target := "0x1111111111111111111111111111111111111111"
	a.Upsert("0xToken", func(rec *TokenRecord) {
		rec.Balance = SlotRecord{Slot: &slot, Target: &target}
	})

	rec, ok := a.Get("0xToken")
	require.True(t, ok)
	assert.True(t, rec.Balance.Resolved())
	assert.Equal(t, slot, *rec.Balance.Slot)
	assert.False(t, rec.Allowance.Resolved())
}

func TestPersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.json")
	a, err := Load(path)
	require.NoError(t, err)

	slot := uint64(9)
	target := "0x2222222222222222222222222222222222222222"
	symbol := "TKN"
	a.Upsert("0xToken", func(rec *TokenRecord) {
		rec.Balance = SlotRecord{Slot: &slot, Target: &target}
		rec.Symbol = &symbol
	})
	require.NoError(t, a.Persist())

	reloaded, err := Load(path)
	require.NoError(t, err)
	rec, ok := reloaded.Get("0xToken")
	require.True(t, ok)
	require.True(t, rec.Balance.Resolved())
	assert.Equal(t, slot, *rec.Balance.Slot)
	assert.Equal(t, target, *rec.Balance.Target)
	assert.Equal(t, symbol, *rec.Symbol)
}

func TestPersistIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.json")
	a, err := Load(path)
	require.NoError(t, err)

	slot := uint64(1)
	target := "0x3333333333333333333333333333333333333333"
	a.Upsert("0xToken", func(rec *TokenRecord) {
		rec.Balance = SlotRecord{Slot: &slot, Target: &target}
	})
	require.NoError(t, a.Persist())
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, a.Persist())
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCandidateScheduleOrdersByFrequencyThenNumeric(t *testing.T) {
	a, err := Load(filepath.Join(t.TempDir(), "archive.json"))
	require.NoError(t, err)

	slotOne := uint64(1)
	slotTwo := uint64(2)
	target := "0x4444444444444444444444444444444444444444"

	a.Upsert("tokenA", func(rec *TokenRecord) {
		rec.Balance = SlotRecord{Slot: &slotOne, Target: &target}
	})
	a.Upsert("tokenB", func(rec *TokenRecord) {
		rec.Balance = SlotRecord{Slot: &slotOne, Target: &target}
	})
	a.Upsert("tokenC", func(rec *TokenRecord) {
		rec.Balance = SlotRecord{Slot: &slotTwo, Target: &target}
	})

	schedule := a.CandidateSchedule(Balance)
	require.Len(t, schedule, MaxSlot)
	assert.Equal(t, uint64(1), schedule[0])
	assert.Equal(t, uint64(2), schedule[1])
	assert.Equal(t, uint64(0), schedule[2])
	assert.Equal(t, uint64(3), schedule[3])
}

func TestCandidateScheduleUnaffectedByOtherVariable(t *testing.T) {
	a, err := Load(filepath.Join(t.TempDir(), "archive.json"))
	require.NoError(t, err)

	slot := uint64(7)
	target := "0x5555555555555555555555555555555555555555"
	a.Upsert("tokenA", func(rec *TokenRecord) {
		rec.Allowance = SlotRecord{Slot: &slot, Target: &target}
	})

	schedule := a.CandidateSchedule(Balance)
	assert.Equal(t, uint64(0), schedule[0])
}
