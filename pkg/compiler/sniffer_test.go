package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSniffSolidityPrefix(t *testing.T) {
	code := append([]byte{0x60, 0x80, 0x60, 0x40, 0x52}, make([]byte, 20)...)
	assert.Equal(t, Solidity, Sniff(code))
}

func TestSniffVyperPrefix(t *testing.T) {
	code := append([]byte{0x60, 0x04, 0x36, 0x10, 0x15}, make([]byte, 20)...)
	assert.Equal(t, Vyper, Sniff(code))
}

func TestSniffSoliditySuffixWins(t *testing.T) {
	code := make([]byte, 53)
	code[0] = 0xA2
	code[1] = 0x64
	assert.Equal(t, Solidity, Sniff(code))
}

func TestSniffVyperSuffixWins(t *testing.T) {
	code := make([]byte, 13)
	code[0] = 0xA1
	code[1] = 0x65
	assert.Equal(t, Vyper, Sniff(code))
}

func TestSniffShortBytecodeIsUnknownNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.Equal(t, Unknown, Sniff([]byte{0x01, 0x02}))
		assert.Equal(t, Unknown, Sniff(nil))
	})
}

func TestSniffUnrecognizedIsUnknown(t *testing.T) {
	code := make([]byte, 100)
	assert.Equal(t, Unknown, Sniff(code))
}
