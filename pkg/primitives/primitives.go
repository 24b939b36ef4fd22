// Package primitives provides the low-level building blocks the rest of the
// slot finder is built on: keccak256, 32-byte ABI padding for uint256 and
// address, and EIP-55 checksumming. Everything here is synchronous — no
// chain I/O crosses this package boundary.
package primitives

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// U256 is an unsigned 256-bit integer, big-endian when written to storage.
type U256 = uint256.Int

// NewU256FromUint64 builds a U256 from a small unsigned value.
func NewU256FromUint64(v uint64) *U256 {
	return uint256.NewInt(v)
}

// Keccak256 hashes data and returns the 32-byte digest.
func Keccak256(data ...[]byte) common.Hash {
	return crypto.Keccak256Hash(data...)
}

// PadUint encodes a U256 as its big-endian 32-byte word, matching Solidity's
// abi.encode(uint256).
func PadUint(v *U256) [32]byte {
	return v.Bytes32()
}

// PadAddr encodes an address as 12 zero bytes followed by the 20 address
// bytes, matching Solidity's abi.encode(address).
func PadAddr(a common.Address) [32]byte {
	var out [32]byte
	copy(out[12:], a.Bytes())
	return out
}

// ChecksumAddress re-checksums a hex address string regardless of the
// casing it arrived in. Per spec, holder and token addresses fetched from
// external lists are not guaranteed to be checksummed on input; every
// address stored in a record must be checksum-canonical, so callers run
// every address through here before it is persisted or used as a key.
func ChecksumAddress(hexAddr string) (common.Address, bool) {
	if !common.IsHexAddress(hexAddr) {
		return common.Address{}, false
	}
	return common.HexToAddress(hexAddr), true
}
