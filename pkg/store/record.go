package store

import "tokenslotfinder/pkg/compiler"

// SlotRecord is a per-variable (balance or allowance) resolution: the slot
// index and the contract that actually holds it. Both are nil together —
// either the variable has not been searched yet, or the search exhausted
// every candidate slot without finding a witness.
type SlotRecord struct {
	Slot   *uint64 `json:"slot"`
	Target *string `json:"target"`
}

// Resolved reports whether this variable has a known slot.
func (r SlotRecord) Resolved() bool {
	return r.Slot != nil && r.Target != nil
}

// TokenRecord is the full per-token archive entry.
type TokenRecord struct {
	Balance   SlotRecord `json:"balance"`
	Allowance SlotRecord `json:"allowance"`
	Compiler  *string    `json:"compiler,omitempty"`
	Symbol    *string    `json:"symbol,omitempty"`
	Complex   *bool      `json:"complex,omitempty"`
}

// CompilerLang returns the record's compiler tag, or compiler.Unknown if
// none has been recorded yet.
func (t TokenRecord) CompilerLang() compiler.Lang {
	if t.Compiler == nil {
		return compiler.Unknown
	}
	return compiler.Lang(*t.Compiler)
}
