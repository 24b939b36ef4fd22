// Package finder implements the empirical slot search (spec component C5):
// for a given token and storage variable (balance or allowance), it
// mutates candidate storage slots on a forked node and watches the
// corresponding ERC20 view function for a witnessing change. Balance and
// allowance share this machinery entirely through VariableSpec; the only
// per-variable code lives in spec.go and keys.go.
package finder

import (
	"context"
	"errors"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"tokenslotfinder/pkg/chain"
	"tokenslotfinder/pkg/compiler"
	"tokenslotfinder/pkg/store"
)

// Finder runs the slot search against a chain client and an archive.
type Finder struct {
	chain   *chain.Client
	erc20   *chain.ERC20
	archive *store.Archive
}

// New constructs a Finder over the given chain client, ERC20 ABI wrapper,
// and archive.
func New(c *chain.Client, erc20 *chain.ERC20, archive *store.Archive) *Finder {
	return &Finder{chain: c, erc20: erc20, archive: archive}
}

// FindBalance resolves the balance mapping slot for token, probing with
// owner as the account whose balanceOf is watched. It returns true if a
// slot was newly established this call, false if the token was already
// resolved or could not be resolved.
func (f *Finder) FindBalance(ctx context.Context, token, owner common.Address) bool {
	return f.search(ctx, balanceSpec, token, owner, common.Address{})
}

// FindAllowance resolves the allowance mapping slot for token, probing
// with the (owner, spender) pair.
func (f *Finder) FindAllowance(ctx context.Context, token, owner, spender common.Address) bool {
	return f.search(ctx, allowanceSpec, token, owner, spender)
}

func (f *Finder) search(ctx context.Context, spec VariableSpec, token, owner, spender common.Address) bool {
	addr := token.Hex()

	if store.Skip[addr] {
		return false
	}
	if rec, ok := f.archive.Get(addr); ok {
		if f.variableOf(rec, spec.Name).Resolved() {
			log.Printf("[Finder] %s skipping %s: already resolved", spec.Name, addr)
			return false
		}
	}

	f.archive.Upsert(addr, func(rec *store.TokenRecord) {
		f.setVariable(rec, spec.Name, store.SlotRecord{})
	})

	lang := f.detectCompiler(ctx, token)
	target := token
	var slot *uint64
	var resolvedLang compiler.Lang
	abandoned := false

	for _, method := range spec.ViewMethods {
		var abort bool
		slot, resolvedLang, abort = f.findIterate(ctx, spec, target, lang, method, owner, spender)
		if abort {
			abandoned = true
			break
		}
		if slot != nil {
			break
		}
	}

	if slot == nil && !abandoned {
		target, abandoned = f.tryProxyFallback(ctx, spec, token, &slot, &resolvedLang, lang, owner, spender)
	}

	if slot == nil {
		if abandoned {
			log.Printf("[Finder] %s search abandoned for %s: simulator call error", spec.Name, addr)
		} else {
			log.Printf("[Finder] %s slot not found for %s", spec.Name, addr)
		}
		return false
	}

	f.archive.Upsert(addr, func(rec *store.TokenRecord) {
		s := *slot
		t := target.Hex()
		f.setVariable(rec, spec.Name, store.SlotRecord{Slot: &s, Target: &t})
		c := resolvedLang.String()
		rec.Compiler = &c
	})
	log.Printf("[Finder] %s slot found for %s: slot=%d target=%s compiler=%s", spec.Name, addr, *slot, target.Hex(), resolvedLang)
	return true
}

// tryProxyFallback walks the one- and two-level proxy/external-storage
// accessor tables, retrying the primary view function at whatever contract
// the accessors discover. It returns the contract the slot was ultimately
// (or still not) found at, and whether a CallError aborted the attempt.
func (f *Finder) tryProxyFallback(ctx context.Context, spec VariableSpec, token common.Address, slot **uint64, resolvedLang *compiler.Lang, lang compiler.Lang, owner, spender common.Address) (common.Address, bool) {
	var firstLevel *proxyAccessor
	target := token

	for i := range spec.ProxyAccessors {
		pa := spec.ProxyAccessors[i]
		discovered, err := f.erc20.CallAddressView(ctx, token, pa.Name)
		if err != nil || discovered == (common.Address{}) {
			continue
		}
		target = discovered
		firstLevel = &spec.ProxyAccessors[i]
		break
	}

	if target == token {
		return token, false
	}

	s, rl, abort := f.findIterate(ctx, spec, target, lang, spec.PrimaryView, owner, spender)
	if abort {
		return target, true
	}
	if s != nil {
		*slot = s
		*resolvedLang = rl
		return target, false
	}

	if firstLevel == nil {
		return target, false
	}

	for _, second := range firstLevel.SecondLevel {
		discovered, err := f.erc20.CallAddressView(ctx, target, second)
		if err != nil || discovered == (common.Address{}) || discovered == target {
			continue
		}
		s2, rl2, abort2 := f.findIterate(ctx, spec, discovered, lang, spec.PrimaryView, owner, spender)
		if abort2 {
			return discovered, true
		}
		if s2 != nil {
			*slot = s2
			*resolvedLang = rl2
			return discovered, false
		}
		return discovered, false
	}

	return target, false
}

// findIterate encapsulates the unknown-compiler policy: if the sniffer
// returned Unknown, try Solidity first, then Vyper; otherwise try only the
// sniffed convention. The first successful probe wins. abort is true when
// a simulator call error terminated the search (further slots cannot
// succeed either, regardless of compiler guess).
func (f *Finder) findIterate(ctx context.Context, spec VariableSpec, target common.Address, lang compiler.Lang, method string, owner, spender common.Address) (*uint64, compiler.Lang, bool) {
	schedule := f.archive.CandidateSchedule(spec.Name)

	if lang != compiler.Unknown {
		slot, abort := f.find(ctx, spec, target, lang, method, owner, spender, schedule)
		return slot, lang, abort
	}

	slot, abort := f.find(ctx, spec, target, compiler.Solidity, method, owner, spender, schedule)
	if abort || slot != nil {
		return slot, compiler.Solidity, abort
	}
	slot, abort = f.find(ctx, spec, target, compiler.Vyper, method, owner, spender, schedule)
	return slot, compiler.Vyper, abort
}

// find walks the candidate slot schedule for a single (target, lang,
// method) combination, returning the first witnessing slot.
func (f *Finder) find(ctx context.Context, spec VariableSpec, target common.Address, lang compiler.Lang, method string, owner, spender common.Address, schedule []uint64) (*uint64, bool) {
	for _, slot := range schedule {
		ok, err := f.probe(ctx, spec, target, slot, lang, method, owner, spender)
		if err != nil {
			if errors.Is(err, chain.ErrCallError) {
				log.Printf("[Finder] %s %s call error at %s: %v", spec.Name, method, target.Hex(), err)
				return nil, true
			}
			log.Printf("[Finder] %s slot %d probe error at %s: %v", spec.Name, slot, target.Hex(), err)
			continue
		}
		if ok {
			s := slot
			return &s, false
		}
	}
	return nil, false
}

// probe mutates a single candidate slot and checks whether the view
// function witnesses the change.
func (f *Finder) probe(ctx context.Context, spec VariableSpec, target common.Address, slot uint64, lang compiler.Lang, method string, owner, spender common.Address) (bool, error) {
	starting, err := spec.ReadValue(ctx, f.erc20, target, method, owner, spender, nil)
	if err != nil {
		return false, err
	}

	probing := new(big.Int).Add(starting, probeDelta)
	key := spec.ComputeKey(slot, owner, spender, lang)

	if err := f.chain.StorageSet(ctx, target, key, common.BigToHash(probing)); err != nil {
		return false, err
	}

	updated, err := spec.ReadValue(ctx, f.erc20, target, method, owner, spender, nil)
	if err != nil {
		return false, err
	}

	match := spec.Match(starting, probing, updated)
	log.Printf("[Finder] %s %s(%s) slot=%d lang=%s starting=%s probing=%s updated=%s match=%v",
		spec.Name, method, target.Hex(), slot, lang, starting, probing, updated, match)
	return match, nil
}

func (f *Finder) detectCompiler(ctx context.Context, token common.Address) compiler.Lang {
	code, err := f.chain.Code(ctx, token)
	if err != nil {
		log.Printf("[Finder] fetching bytecode for %s: %v", token.Hex(), err)
		return compiler.Unknown
	}
	return compiler.Sniff(code)
}

func (f *Finder) variableOf(rec store.TokenRecord, name store.Variable) store.SlotRecord {
	if name == store.Balance {
		return rec.Balance
	}
	return rec.Allowance
}

func (f *Finder) setVariable(rec *store.TokenRecord, name store.Variable, slotRec store.SlotRecord) {
	if name == store.Balance {
		rec.Balance = slotRec
	} else {
		rec.Allowance = slotRec
	}
}
