// Package compiler detects the source-language convention (Solidity vs.
// Vyper) a deployed contract was compiled with, from a bytecode
// prefix/suffix sniff. The two toolchains key mapping slots in opposite
// hash order, so getting this right (or at least trying both in the right
// order when unsure) roughly halves the slot finder's probe count.
package compiler

// Lang is the tagged variant of source-language conventions the finder
// cares about. Unknown is a transient value: it is never written to the
// archive as a record's final compiler once a slot has been resolved.
type Lang string

const (
	Solidity Lang = "solidity"
	Vyper    Lang = "vyper"
	Unknown  Lang = "unknown"
)

func (l Lang) String() string { return string(l) }

// prefixSignatures maps a deployed-bytecode prefix to the toolchain that
// emits it. Both Solidity dispatcher preambles (PUSH1 0x80/0x60, PUSH1 0x40,
// MSTORE) and the two common Vyper preambles are covered.
var prefixSignatures = map[string]Lang{
	"6004361015": Vyper,
	"341561000a": Vyper,
	"6060604052": Solidity,
	"6080604052": Solidity,
}

// Sniff returns the first of the following that matches bytecode, else
// Unknown:
//
//  1. The CBOR metadata marker each toolchain appends to the end of
//     deployed bytecode: Solidity's "0xa264" two bytes before the final 51
//     bytes, Vyper's "0xa165" two bytes before the final 11 bytes.
//  2. A known dispatcher-preamble prefix.
//
// A suffix check is skipped when the bytecode is shorter than its window
// (e.g. a 45-byte minimal proxy gets no Solidity suffix check) rather than
// slicing out of range; such bytecode can still match the Vyper suffix or
// a prefix, and is Unknown only if nothing matches.
func Sniff(bytecode []byte) Lang {
	if lang, ok := sniffSuffix(bytecode); ok {
		return lang
	}
	for prefix, lang := range prefixSignatures {
		if hasHexPrefix(bytecode, prefix) {
			return lang
		}
	}
	return Unknown
}

func sniffSuffix(b []byte) (Lang, bool) {
	n := len(b)
	if n >= 53 && b[n-53] == 0xA2 && b[n-52] == 0x64 {
		return Solidity, true
	}
	if n >= 13 && b[n-13] == 0xA1 && b[n-12] == 0x65 {
		return Vyper, true
	}
	return Unknown, false
}

func hasHexPrefix(b []byte, hexPrefix string) bool {
	want := len(hexPrefix) / 2
	if len(b) < want {
		return false
	}
	for i := 0; i < want; i++ {
		hi := hexNibble(hexPrefix[2*i])
		lo := hexNibble(hexPrefix[2*i+1])
		if hi < 0 || lo < 0 {
			return false
		}
		if b[i] != byte(hi<<4|lo) {
			return false
		}
	}
	return true
}

func hexNibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}
