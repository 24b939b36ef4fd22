// Package prober implements the transfer-from prober (spec component C7):
// given a resolved token, it simulates transferFrom under synthesized
// overrides and classifies the token as "simple" or "complex" for
// downstream simulators.
package prober

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"tokenslotfinder/pkg/chain"
	"tokenslotfinder/pkg/overrides"
	"tokenslotfinder/pkg/store"
)

// forcedSimple is the hand-verified allowlist of tokens whose transferFrom
// succeeds but does not return a decodable boolean — USDT's non-standard
// ABI being the best known example. Carried over from the original
// implementation's hardcoded table rather than re-derived, since there is
// no general way to tell "no return value, but fine" from "no return
// value, because broken" without having actually run the token.
var forcedSimple = map[common.Address]bool{
	common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"): true, // USDT
	common.HexToAddress("0xF433089366899D83a9f26A773D59ec7eCF30355e"): true, // MTL
	common.HexToAddress("0xd26114cd6EE289AccF82350c8d8487fedB8A0C07"): true, // OMG
	common.HexToAddress("0xe3818504c1B32bF1557b16C238B2E01Fd3149C17"): true, // PLR
	common.HexToAddress("0x372d5d02c6b4075bd58892f80300cA590e92d29E"): true, // tOUSG permissioned
}

// Prober runs transferFrom simulations against a chain client.
type Prober struct {
	erc20 *chain.ERC20
}

// New constructs a Prober over the given ERC20 ABI wrapper.
func New(erc20 *chain.ERC20) *Prober {
	return &Prober{erc20: erc20}
}

// Probe simulates transferFrom(from, to, amount) with msg.sender = to,
// under overrides synthesized from rec, and reports whether the token is
// "complex" (needs specialized handling downstream) or simple.
//
// TODO: the undecodable-but-successful branch below can only be resolved
// automatically by decoding the ABI to see whether transferFrom declares a
// return value at all; until that's wired in, the forced-simple allowlist
// stays a hardcoded table.
func (p *Prober) Probe(ctx context.Context, token common.Address, rec store.TokenRecord, from, to common.Address, amount *big.Int) bool {
	doc := overrides.Synthesize(rec, from, to)
	if len(doc) == 0 {
		return true
	}

	result := p.erc20.TransferFrom(ctx, token, from, to, amount, doc)

	switch {
	case result.Reverted:
		return true
	case result.Decoded:
		return !result.Success
	default:
		return !forcedSimple[token]
	}
}
