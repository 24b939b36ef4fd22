package finder

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"tokenslotfinder/pkg/chain"
	"tokenslotfinder/pkg/compiler"
	"tokenslotfinder/pkg/store"
)

var balanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]

// fakeToken is a minimal in-memory EVM account: bytecode plus a 32-byte
// storage map, enough to answer eth_getCode, eth_call (balanceOf only),
// and evm_setAccountStorageAt the way a forking simulator would.
type fakeToken struct {
	mu       sync.Mutex
	code     []byte
	storage  map[common.Hash]common.Hash
	realSlot uint64
}

func newFakeToken(realSlot uint64, code []byte) *fakeToken {
	return &fakeToken{storage: make(map[common.Hash]common.Hash), realSlot: realSlot, code: code}
}

// balanceOf reads storage at the Solidity-convention key for realSlot —
// this fixture always compiles as "Solidity" via its bytecode preamble.
func (f *fakeToken) balanceOf(owner common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := balanceStorageKey(f.realSlot, owner, compiler.Solidity)
	v := f.storage[key]
	return new(big.Int).SetBytes(v.Bytes())
}

func (f *fakeToken) setStorage(key, val common.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storage[key] = val
}

type jsonrpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     json.RawMessage   `json:"id"`
}

// newFinderTestServer serves a single token's eth_getCode / eth_call
// (balanceOf) / evm_setAccountStorageAt surface over JSON-RPC.
func newFinderTestServer(t *testing.T, token common.Address, acct *fakeToken) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonrpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var result interface{}
		switch req.Method {
		case "eth_getCode":
			result = hexutil.Encode(acct.code)
		case "eth_call":
			var msg map[string]string
			require.NoError(t, json.Unmarshal(req.Params[0], &msg))
			data := common.FromHex(msg["data"])
			require.GreaterOrEqual(t, len(data), 4+32)
			require.Equal(t, balanceOfSelector, data[:4])
			owner := common.BytesToAddress(data[4+12 : 4+32])
			bal := acct.balanceOf(owner)
			packed := common.LeftPadBytes(bal.Bytes(), 32)
			result = hexutil.Encode(packed)
		case "evm_setAccountStorageAt":
			var addrHex, keyHex, valHex string
			require.NoError(t, json.Unmarshal(req.Params[0], &addrHex))
			require.NoError(t, json.Unmarshal(req.Params[1], &keyHex))
			require.NoError(t, json.Unmarshal(req.Params[2], &valHex))
			require.Equal(t, token.Hex(), common.HexToAddress(addrHex).Hex())
			acct.setStorage(common.HexToHash(keyHex), common.HexToHash(valHex))
			result = true
		default:
			t.Fatalf("unexpected RPC method %s", req.Method)
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      json.RawMessage(req.ID),
			"result":  result,
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestFindBalanceLocatesRealSlot(t *testing.T) {
	token := common.HexToAddress("0xa41F142b6eb2b164f8164CAE0716892Ce02f311f")
	owner := common.HexToAddress("0xb634316E06cC0B358437CbadD4dC94F1D3a92B3b")

	solidityPreamble := append([]byte{0x60, 0x80, 0x60, 0x40, 0x52}, make([]byte, 20)...)
	acct := newFakeToken(4, solidityPreamble)

	srv := newFinderTestServer(t, token, acct)
	defer srv.Close()

	client, err := chain.Dial(srv.URL)
	require.NoError(t, err)
	erc20, err := chain.LoadERC20(client, "../../abis/erc20.json")
	require.NoError(t, err)
	archive, err := store.Load(t.TempDir() + "/archive.json")
	require.NoError(t, err)

	f := New(client, erc20, archive)
	found := f.FindBalance(context.Background(), token, owner)
	require.True(t, found)

	rec, ok := archive.Get(token.Hex())
	require.True(t, ok)
	require.True(t, rec.Balance.Resolved())
	require.Equal(t, uint64(4), *rec.Balance.Slot)
	require.Equal(t, compiler.Solidity.String(), *rec.Compiler)
}

func TestFindBalanceAlreadyResolvedSkips(t *testing.T) {
	token := common.HexToAddress("0xC82E3dB60A52CF7529253b4eC688f631aad9e7c2")
	owner := common.HexToAddress("0xb634316E06cC0B358437CbadD4dC94F1D3a92B3b")

	archive, err := store.Load(t.TempDir() + "/archive.json")
	require.NoError(t, err)
	slot := uint64(1)
	tgt := token.Hex()
	archive.Upsert(token.Hex(), func(rec *store.TokenRecord) {
		rec.Balance = store.SlotRecord{Slot: &slot, Target: &tgt}
	})

	f := New(nil, nil, archive)
	found := f.FindBalance(context.Background(), token, owner)
	require.False(t, found)
}
