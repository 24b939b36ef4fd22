package chain

import (
	"context"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ERC20 bundles the fixed ERC20-and-friends ABI used to encode/decode the
// view and mutating calls the slot finder and prober issue.
type ERC20 struct {
	client *Client
	abi    abi.ABI
}

// LoadERC20 parses the bundled ABI document at abiPath (abis/erc20.json by
// default) and binds it to client.
func LoadERC20(client *Client, abiPath string) (*ERC20, error) {
	file, err := os.Open(abiPath)
	if err != nil {
		return nil, fmt.Errorf("chain: opening ERC20 ABI at %s: %w", abiPath, err)
	}
	defer file.Close()

	parsed, err := abi.JSON(file)
	if err != nil {
		return nil, fmt.Errorf("chain: parsing ERC20 ABI: %w", err)
	}
	return &ERC20{client: client, abi: parsed}, nil
}

// CallUintView packs and issues an arbitrary uint256-returning view call —
// the generic lookup the balance and allowance finders use to dispatch
// across balanceOf/principalBalanceOf/allowance by name.
func (e *ERC20) CallUintView(ctx context.Context, token common.Address, method string, overrides Overrides, args ...interface{}) (*big.Int, error) {
	return e.callUint(ctx, token, method, overrides, args...)
}

// CallAddressView packs and issues an arbitrary zero-argument,
// address-returning view call — the generic lookup used to probe proxy /
// external-storage accessors (tokenState, erc20Impl, erc20Store, and
// whatever else a proxy-accessor table names).
func (e *ERC20) CallAddressView(ctx context.Context, token common.Address, method string) (common.Address, error) {
	return e.callAddress(ctx, token, method)
}

func (e *ERC20) callUint(ctx context.Context, token common.Address, method string, overrides Overrides, args ...interface{}) (*big.Int, error) {
	data, err := e.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	out, err := e.client.Call(ctx, token, data, overrides)
	if err != nil {
		return nil, err
	}
	results, err := e.abi.Unpack(method, out)
	if err != nil || len(results) == 0 {
		return nil, fmt.Errorf("chain: undecodable %s return for %s", method, token.Hex())
	}
	v, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: %s did not return a uint256 for %s", method, token.Hex())
	}
	return v, nil
}

func (e *ERC20) callAddress(ctx context.Context, token common.Address, method string) (common.Address, error) {
	data, err := e.abi.Pack(method)
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	out, err := e.client.Call(ctx, token, data, nil)
	if err != nil {
		return common.Address{}, err
	}
	results, err := e.abi.Unpack(method, out)
	if err != nil || len(results) == 0 {
		return common.Address{}, fmt.Errorf("chain: undecodable %s return for %s", method, token.Hex())
	}
	addr, ok := results[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("chain: %s did not return an address for %s", method, token.Hex())
	}
	return addr, nil
}

// BalanceOf reads balanceOf(owner), applying overrides if present.
func (e *ERC20) BalanceOf(ctx context.Context, token, owner common.Address, overrides Overrides) (*big.Int, error) {
	return e.callUint(ctx, token, "balanceOf", overrides, owner)
}

// PrincipalBalanceOf reads principalBalanceOf(user) (Aave aTokens' unscaled
// balance view).
func (e *ERC20) PrincipalBalanceOf(ctx context.Context, token, owner common.Address, overrides Overrides) (*big.Int, error) {
	return e.callUint(ctx, token, "principalBalanceOf", overrides, owner)
}

// Allowance reads allowance(owner, spender), applying overrides if present.
func (e *ERC20) Allowance(ctx context.Context, token, owner, spender common.Address, overrides Overrides) (*big.Int, error) {
	return e.callUint(ctx, token, "allowance", overrides, owner, spender)
}

// TokenState reads tokenState() — the Synthetix proxy pattern's external
// storage accessor.
func (e *ERC20) TokenState(ctx context.Context, token common.Address) (common.Address, error) {
	return e.callAddress(ctx, token, "tokenState")
}

// Erc20Impl reads erc20Impl() — the first hop of Gemini's two-level proxy.
func (e *ERC20) Erc20Impl(ctx context.Context, token common.Address) (common.Address, error) {
	return e.callAddress(ctx, token, "erc20Impl")
}

// Erc20Store reads erc20Store() — the second hop of Gemini's two-level
// proxy, called on the contract erc20Impl() returned.
func (e *ERC20) Erc20Store(ctx context.Context, token common.Address) (common.Address, error) {
	return e.callAddress(ctx, token, "erc20Store")
}

// TransferFromResult is the decoded outcome of a transferFrom call made
// under state overrides.
type TransferFromResult struct {
	// Reverted is true when the call itself failed (revert, simulator call
	// error, or any transport-level error).
	Reverted bool
	// Decoded is true when the return data decoded to a bool.
	Decoded bool
	// Success is the decoded boolean return value; meaningful only when
	// Decoded is true.
	Success bool
}

// TransferFrom invokes transferFrom(from, to, amount) with msg.sender set
// to `to` and the given state overrides applied.
func (e *ERC20) TransferFrom(ctx context.Context, token, from, to common.Address, amount *big.Int, overrides Overrides) TransferFromResult {
	data, err := e.abi.Pack("transferFrom", from, to, amount)
	if err != nil {
		return TransferFromResult{Reverted: true}
	}

	out, err := e.client.CallAs(ctx, to, token, data, overrides)
	if err != nil {
		return TransferFromResult{Reverted: true}
	}

	results, err := e.abi.Unpack("transferFrom", out)
	if err != nil || len(results) == 0 {
		return TransferFromResult{Decoded: false}
	}
	success, ok := results[0].(bool)
	if !ok {
		return TransferFromResult{Decoded: false}
	}
	return TransferFromResult{Decoded: true, Success: success}
}
