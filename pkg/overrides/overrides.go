// Package overrides synthesizes eth_call state-override documents (spec
// component C6) from resolved TokenRecords: the same storage-key
// derivation the finder used to locate a slot is reused here to write a
// dominating balance or allowance into it for downstream simulation.
package overrides

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"tokenslotfinder/pkg/chain"
	"tokenslotfinder/pkg/compiler"
	"tokenslotfinder/pkg/primitives"
	"tokenslotfinder/pkg/store"
)

// OverrideValue is the fixed 32-byte value written into both balance and
// allowance slots: 2^95 - 1. Large enough to dominate any plausible
// balance or allowance while leaving the top 161 bits zero, so contracts
// that pack other fields into the same storage word alongside the amount
// are not corrupted by the override.
var OverrideValue = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 95), big.NewInt(1))

var overrideHash = common.BigToHash(OverrideValue)

// Synthesize builds the state-override document for token, given the
// owner whose balance is being forced and the spender whose allowance is
// being forced. It returns an empty document if either variable is
// unresolved in rec — the caller must treat that as "cannot simulate".
// When balance and allowance resolve to the same holder contract, their
// stateDiff entries are merged into a single account override.
func Synthesize(rec store.TokenRecord, owner, spender common.Address) chain.Overrides {
	if !rec.Balance.Resolved() || !rec.Allowance.Resolved() {
		return chain.Overrides{}
	}

	lang := rec.CompilerLang()
	doc := chain.Overrides{}

	balanceKey := balanceMappingKey(*rec.Balance.Slot, owner, lang)
	addKey(doc, *rec.Balance.Target, balanceKey)

	allowanceKey := allowanceMappingKey(*rec.Allowance.Slot, owner, spender, lang)
	addKey(doc, *rec.Allowance.Target, allowanceKey)

	return doc
}

func addKey(doc chain.Overrides, targetHex string, key common.Hash) {
	acct, ok := doc[targetHex]
	if !ok {
		acct = &chain.AccountOverride{StateDiff: make(map[common.Hash]common.Hash)}
		doc[targetHex] = acct
	}
	acct.StateDiff[key] = overrideHash
}

// balanceMappingKey and allowanceMappingKey mirror pkg/finder's
// balanceStorageKey/allowanceStorageKey exactly — overrides must target
// the same storage word the finder probed, or the simulation would write
// to a slot the search never confirmed.
func balanceMappingKey(slot uint64, owner common.Address, lang compiler.Lang) common.Hash {
	slotWord := primitives.PadUint(primitives.NewU256FromUint64(slot))
	ownerWord := primitives.PadAddr(owner)
	return mappingKey(slotWord, ownerWord, lang)
}

func allowanceMappingKey(slot uint64, owner, spender common.Address, lang compiler.Lang) common.Hash {
	outer := balanceMappingKey(slot, owner, lang)
	spenderWord := primitives.PadAddr(spender)
	return mappingKey([32]byte(outer), spenderWord, lang)
}

func mappingKey(slotWord, keyWord [32]byte, lang compiler.Lang) common.Hash {
	if lang == compiler.Vyper {
		return primitives.Keccak256(slotWord[:], keyWord[:])
	}
	return primitives.Keccak256(keyWord[:], slotWord[:])
}
