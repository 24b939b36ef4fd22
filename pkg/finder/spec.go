package finder

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"tokenslotfinder/pkg/chain"
	"tokenslotfinder/pkg/compiler"
	"tokenslotfinder/pkg/store"
)

// probeDelta is the amount probed values are bumped by over their starting
// value: 1000 * 10^18. It must not collide with the value already in
// place, and needs to be implausibly large so it dominates any real
// balance or allowance without overflowing a uint256.
var probeDelta = new(big.Int).Mul(big.NewInt(1000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// proxyAccessor names a zero-argument view function tried on a contract to
// discover the contract that actually holds the storage for a variable.
// SecondLevel names the further accessors tried on the contract this one
// discovers, for patterns (like Gemini's erc20Impl -> erc20Store) that are
// two hops deep.
type proxyAccessor struct {
	Name        string
	SecondLevel []string
}

// VariableSpec is the capability object that parameterizes the finder for
// balance vs. allowance: which view functions to try, how to derive the
// storage key, what counts as a witnessing match, and which proxy
// accessors to fall back to. Balance and allowance share every other piece
// of finder machinery; this is the only thing that differs between them.
type VariableSpec struct {
	Name           store.Variable
	ViewMethods    []string
	PrimaryView    string
	ProxyAccessors []proxyAccessor

	// ReadValue reads the variable's current value at target via method.
	ReadValue func(ctx context.Context, erc20 *chain.ERC20, target common.Address, method string, owner, spender common.Address, overrides chain.Overrides) (*big.Int, error)

	// ComputeKey derives the storage key for slot under the given
	// compiler convention.
	ComputeKey func(slot uint64, owner, spender common.Address, lang compiler.Lang) common.Hash

	// Match decides whether updated is a witness that slot holds this
	// variable, given the value observed before (starting) and the value
	// written (probing).
	Match func(starting, probing, updated *big.Int) bool
}

var balanceSpec = VariableSpec{
	Name:        store.Balance,
	ViewMethods: []string{"balanceOf", "principalBalanceOf"},
	PrimaryView: "balanceOf",
	ProxyAccessors: []proxyAccessor{
		{Name: "target", SecondLevel: []string{"tokenState"}}, // Synthetix
		{Name: "balances"},
		{Name: "erc20Impl", SecondLevel: []string{"erc20Store"}}, // Gemini
	},
	ReadValue: func(ctx context.Context, erc20 *chain.ERC20, target common.Address, method string, owner, _ common.Address, overrides chain.Overrides) (*big.Int, error) {
		return erc20.CallUintView(ctx, target, method, overrides, owner)
	},
	ComputeKey: func(slot uint64, owner, _ common.Address, lang compiler.Lang) common.Hash {
		return balanceStorageKey(slot, owner, lang)
	},
	Match: func(starting, _, updated *big.Int) bool {
		return updated.Cmp(starting) > 0
	},
}

var allowanceSpec = VariableSpec{
	Name:        store.Allowance,
	ViewMethods: []string{"allowance"},
	PrimaryView: "allowance",
	ProxyAccessors: []proxyAccessor{
		{Name: "target", SecondLevel: []string{"tokenState"}},
		{Name: "allowances"},
		{Name: "erc20Impl", SecondLevel: []string{"erc20Store"}},
	},
	ReadValue: func(ctx context.Context, erc20 *chain.ERC20, target common.Address, method string, owner, spender common.Address, overrides chain.Overrides) (*big.Int, error) {
		return erc20.CallUintView(ctx, target, method, overrides, owner, spender)
	},
	ComputeKey: func(slot uint64, owner, spender common.Address, lang compiler.Lang) common.Hash {
		return allowanceStorageKey(slot, owner, spender, lang)
	},
	// Allowance implementations uniformly return the raw stored value, so
	// exact equality is the witness. Unlike balance, there is no rebasing
	// concern to hedge against with a looser predicate — and loosening it
	// would risk accepting a near-match on a packed/scaled layout that
	// isn't actually the allowance slot.
	Match: func(_, probing, updated *big.Int) bool {
		return probing.Cmp(updated) == 0
	},
}
