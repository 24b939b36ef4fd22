// Package chain wraps a forked EVM node's JSON-RPC surface: bytecode and
// storage reads/writes, ABI-encoded view calls, and eth_call with per-call
// state overrides. It is the only package in this module that talks to the
// node (pkg/feeds does the token-list and holder-list HTTP fetches); every
// exported method takes a context.Context and every
// address argument is EIP-55 checksummed before it goes over the wire.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// RequestTimeout bounds a single RPC round trip. It is deliberately
// generous: the slot search can issue tens of thousands of requests
// against one fork over the life of a run.
const RequestTimeout = 6 * time.Hour

// ErrSimulatorRejected is returned when the forked node's
// evm_setAccountStorageAt-equivalent call reports failure.
var ErrSimulatorRejected = errors.New("chain: simulator rejected storage write")

// ErrCallError signals that the target contract could not service the
// requested view function at all (the simulator's own call-level error,
// not a recoverable decode failure). It is terminal for whichever slot
// search triggered it.
var ErrCallError = errors.New("chain: simulator call error")

// Client is a typed wrapper over a forked node's JSON-RPC endpoint.
type Client struct {
	rpcClient *rpc.Client
	eth       *ethclient.Client
}

// Dial connects to the forked node at rpcURL.
func Dial(rpcURL string) (*Client, error) {
	rpcClient, err := rpc.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: failed to connect to fork at %s: %w", rpcURL, err)
	}
	return &Client{
		rpcClient: rpcClient,
		eth:       ethclient.NewClient(rpcClient),
	}, nil
}

// NewWithClients wraps an already-dialed rpc.Client, avoiding a second
// connection when one is already open for the process.
func NewWithClients(rpcClient *rpc.Client, eth *ethclient.Client) *Client {
	return &Client{rpcClient: rpcClient, eth: eth}
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, RequestTimeout)
}

// Code returns the deployed bytecode at addr.
func (c *Client) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	code, err := c.eth.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: get_code(%s): %w", addr.Hex(), err)
	}
	return code, nil
}

// StorageGet reads a single 32-byte storage slot.
func (c *Client) StorageGet(ctx context.Context, addr common.Address, key common.Hash) (common.Hash, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	val, err := c.eth.StorageAt(ctx, addr, key, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: storage_get(%s, %s): %w", addr.Hex(), key.Hex(), err)
	}
	return common.BytesToHash(val), nil
}

// StorageSet writes a single 32-byte storage slot via the forked node's
// non-standard evm_setAccountStorageAt method. It returns
// ErrSimulatorRejected if the node reports the write did not succeed.
func (c *Client) StorageSet(ctx context.Context, addr common.Address, key, val common.Hash) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var ok bool
	if err := c.rpcClient.CallContext(ctx, &ok, "evm_setAccountStorageAt", addr.Hex(), key.Hex(), val.Hex()); err != nil {
		return fmt.Errorf("chain: storage_set(%s, %s): %w", addr.Hex(), key.Hex(), err)
	}
	if !ok {
		return fmt.Errorf("%w: %s slot %s", ErrSimulatorRejected, addr.Hex(), key.Hex())
	}
	return nil
}

// Overrides is a per-call state override document: contract address ->
// {stateDiff: {key32: val32}}. The map key is the checksummed contract
// address string so it serializes directly as the eth_call override
// parameter.
type Overrides map[string]*AccountOverride

// AccountOverride is the per-account override payload. Only StateDiff is
// populated by this module; balance/nonce/code overrides are not part of
// this system's scope.
type AccountOverride struct {
	StateDiff map[common.Hash]common.Hash `json:"stateDiff,omitempty"`
}

// Call performs a read-only eth_call, optionally with state overrides
// applied for the duration of the call only.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte, overrides Overrides) ([]byte, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	msg := map[string]interface{}{
		"to":   to.Hex(),
		"data": hexutil.Encode(data),
	}

	var result hexutil.Bytes
	var err error
	if len(overrides) > 0 {
		err = c.rpcClient.CallContext(ctx, &result, "eth_call", msg, "latest", overrides)
	} else {
		err = c.rpcClient.CallContext(ctx, &result, "eth_call", msg, "latest")
	}
	if err != nil {
		if isCallError(err) {
			return nil, fmt.Errorf("%w: %s: %s", ErrCallError, to.Hex(), err.Error())
		}
		return nil, fmt.Errorf("chain: eth_call(%s): %w", to.Hex(), err)
	}
	return result, nil
}

// CallAs performs an eth_call with an explicit msg.sender, used for
// transferFrom simulation where the caller must be the spender rather than
// the zero address.
func (c *Client) CallAs(ctx context.Context, from, to common.Address, data []byte, overrides Overrides) ([]byte, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	msg := map[string]interface{}{
		"from": from.Hex(),
		"to":   to.Hex(),
		"data": hexutil.Encode(data),
	}

	var result hexutil.Bytes
	var err error
	if len(overrides) > 0 {
		err = c.rpcClient.CallContext(ctx, &result, "eth_call", msg, "latest", overrides)
	} else {
		err = c.rpcClient.CallContext(ctx, &result, "eth_call", msg, "latest")
	}
	if err != nil {
		if isCallError(err) {
			return nil, fmt.Errorf("%w: %s: %s", ErrCallError, to.Hex(), err.Error())
		}
		return nil, fmt.Errorf("chain: eth_call(%s): %w", to.Hex(), err)
	}
	return result, nil
}

// isCallError distinguishes a simulator-level "this function does not
// exist / reverted at the VM level" failure from a transport error. Forks
// surface this in different ways; we key off the substrings every node we
// target actually emits rather than a single exact string.
func isCallError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") ||
		strings.Contains(msg, "callerror") ||
		strings.Contains(msg, "vm exception")
}

// RPCClient exposes the underlying rpc.Client for callers that need to
// issue additional raw calls.
func (c *Client) RPCClient() *rpc.Client { return c.rpcClient }

// PackView is a small helper bundling an ABI and the method name so call
// sites don't repeat abi.JSON parsing per call.
func PackView(contractABI *abi.ABI, method string, args ...interface{}) ([]byte, error) {
	return contractABI.Pack(method, args...)
}
