package finder

import (
	"github.com/ethereum/go-ethereum/common"

	"tokenslotfinder/pkg/compiler"
	"tokenslotfinder/pkg/primitives"
)

// mappingKey computes the storage key a single Solidity or Vyper mapping
// uses for a given base slot and 32-byte-padded key component. Solidity
// hashes key-then-slot; Vyper hashes slot-then-key. This asymmetry is the
// entire reason the compiler convention matters.
func mappingKey(slotWord, keyWord [32]byte, lang compiler.Lang) common.Hash {
	if lang == compiler.Vyper {
		return primitives.Keccak256(slotWord[:], keyWord[:])
	}
	return primitives.Keccak256(keyWord[:], slotWord[:])
}

// balanceStorageKey computes keccak(pad(owner) . pad(slot)) for Solidity or
// keccak(pad(slot) . pad(owner)) for Vyper — the single-level mapping key
// for `balances[owner]`.
func balanceStorageKey(slot uint64, owner common.Address, lang compiler.Lang) common.Hash {
	slotWord := primitives.PadUint(primitives.NewU256FromUint64(slot))
	ownerWord := primitives.PadAddr(owner)
	return mappingKey(slotWord, ownerWord, lang)
}

// allowanceStorageKey computes the nested mapping key for
// `allowances[owner][spender]`: the owner-keyed outer slot becomes the
// base "slot" for a second mapping keyed by spender, under the same
// hashing convention both times.
func allowanceStorageKey(slot uint64, owner, spender common.Address, lang compiler.Lang) common.Hash {
	outer := balanceStorageKey(slot, owner, lang)
	spenderWord := primitives.PadAddr(spender)
	return mappingKey([32]byte(outer), spenderWord, lang)
}
