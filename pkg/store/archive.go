// Package store holds the in-memory token archive: per-token balance and
// allowance slot records, mirrored to a single JSON file between batches.
// The archive is the one piece of shared mutable state slot-finder tasks
// touch concurrently; callers must honor the single-writer-per-key
// discipline described in the package doc for Archive.Upsert.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MaxSlot bounds the slot search: indices 0..MaxSlot-1 are tried, MaxSlot
// itself never is. Chosen as an empirical upper bound on legitimately
// observed storage-layout slot indices across real ERC20 deployments.
const MaxSlot = 310

// Skip is the fixed set of addresses the system refuses to probe — the
// sentinel pseudo-address some lists use for the native coin.
var Skip = map[string]bool{
	"0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE": true,
}

// Variable names one of the two storage variables the finder resolves.
type Variable string

const (
	Balance   Variable = "balance"
	Allowance Variable = "allowance"
)

// Archive is the process-wide, single-instance collaborator holding every
// token's resolution state. It is constructed once by the driver and
// passed into each finder/prober task rather than held as global state.
type Archive struct {
	mu   sync.Mutex
	path string
	data map[string]*TokenRecord
}

// Load reads the archive from path, starting empty if the file does not
// exist or fails to parse (a fresh run has no prior knowledge, not a fatal
// condition).
func Load(path string) (*Archive, error) {
	a := &Archive{path: path, data: make(map[string]*TokenRecord)}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return a, nil
		}
		return nil, fmt.Errorf("store: reading archive %s: %w", path, err)
	}
	if len(raw) == 0 {
		return a, nil
	}
	if err := json.Unmarshal(raw, &a.data); err != nil {
		return a, nil // malformed archive is treated the same as absent
	}
	return a, nil
}

// Get returns a copy of the record for addr, and whether one exists.
func (a *Archive) Get(addr string) (TokenRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.data[addr]
	if !ok {
		return TokenRecord{}, false
	}
	return *rec, true
}

// Upsert applies fn to the record for addr (creating an empty record first
// if none exists) and stores the result. Per the concurrency model, the
// record for a given token address must only ever be mutated by the task
// that is probing that token — Upsert itself is safe to call from many
// goroutines, but callers must not run two Upsert(addr, ...) calls for the
// same addr concurrently.
func (a *Archive) Upsert(addr string, fn func(rec *TokenRecord)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.data[addr]
	if !ok {
		rec = &TokenRecord{}
		a.data[addr] = rec
	}
	fn(rec)
}

// Keys returns every token address currently in the archive.
func (a *Archive) Keys() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]string, 0, len(a.data))
	for k := range a.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Persist writes the full archive to disk atomically: marshal, write to a
// ".tmp" sibling, then rename over the real path. There is no incremental
// log — the whole snapshot is rewritten every time, which keeps the format
// hand-inspectable and immune to partial writes if the rename itself is
// interrupted.
func (a *Archive) Persist() error {
	a.mu.Lock()
	data, err := json.MarshalIndent(a.data, "", "    ")
	a.mu.Unlock()
	if err != nil {
		return fmt.Errorf("store: marshal archive: %w", err)
	}

	if dir := filepath.Dir(a.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("store: creating archive directory: %w", err)
		}
	}

	tmp := a.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: writing temp archive: %w", err)
	}
	if err := os.Rename(tmp, a.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: renaming archive into place: %w", err)
	}
	return nil
}

// CandidateSchedule returns the slot search order for variable: every slot
// already observed for any token, most-frequent first (ties broken by
// first occurrence, walking tokens in sorted address order), followed by
// every remaining slot in 0..MaxSlot-1
// numeric order. Tokens cluster on a handful of conventional slot
// indices, so this schedule finds the right slot within the first few
// probes for the large majority of tokens while still bounding worst-case
// work at MaxSlot.
func (a *Archive) CandidateSchedule(variable Variable) []uint64 {
	a.mu.Lock()
	counts := make(map[uint64]int)
	var firstSeen []uint64
	addrs := make([]string, 0, len(a.data))
	for addr := range a.data {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		rec := a.data[addr]
		var slotRec SlotRecord
		switch variable {
		case Balance:
			slotRec = rec.Balance
		case Allowance:
			slotRec = rec.Allowance
		}
		if slotRec.Slot == nil {
			continue
		}
		slot := *slotRec.Slot
		if counts[slot] == 0 {
			firstSeen = append(firstSeen, slot)
		}
		counts[slot]++
	}
	a.mu.Unlock()

	sort.SliceStable(firstSeen, func(i, j int) bool {
		return counts[firstSeen[i]] > counts[firstSeen[j]]
	})

	seen := make(map[uint64]bool, len(firstSeen))
	schedule := make([]uint64, 0, MaxSlot)
	for _, s := range firstSeen {
		schedule = append(schedule, s)
		seen[s] = true
	}
	for s := uint64(0); s < MaxSlot; s++ {
		if !seen[s] {
			schedule = append(schedule, s)
		}
	}
	return schedule
}
