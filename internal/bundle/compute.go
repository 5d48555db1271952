// Package bundle measures coordinated multi-wallet buying around a token.
//
// A slot is "bundled" when at least MinSignersPerSlot distinct wallets
// transacted on the token inside it. Every signer seen in a bundled slot is a
// candidate bundler; a candidate survives the pattern filter only if none of
// its bundled-slot events is immediately followed by an event in an
// unbundled slot.
package bundle

import (
	"sort"

	"migration-sentinel/internal/domain"
)

// DefaultMinSignersPerSlot is the distinct-signer count that marks a slot bundled.
const DefaultMinSignersPerSlot = 4

// Result is the bundle ratio with its supporting counts.
type Result struct {
	Ratio          float64
	HasPriorityTip bool
	TotalWallets   int
	BundlerWallets int
	BundledSlots   int
}

// Stats returns the counts as a domain.BundleStats.
func (r *Result) Stats() *domain.BundleStats {
	if r == nil {
		return nil
	}
	return &domain.BundleStats{
		TotalWallets:   r.TotalWallets,
		BundlerWallets: r.BundlerWallets,
		BundledSlots:   r.BundledSlots,
	}
}

// Compute derives the bundle ratio from raw events. Events with an empty
// signer are ignored. The ratio is 0 when no wallet transacted.
func Compute(events []domain.ActivityEvent, minSigners int) Result {
	if minSigners <= 0 {
		minSigners = DefaultMinSignersPerSlot
	}

	bySlot := make(map[int64]map[string]struct{})
	bySigner := make(map[string][]domain.ActivityEvent)
	for _, ev := range events {
		if ev.Signer == "" {
			continue
		}
		signers, ok := bySlot[ev.Slot]
		if !ok {
			signers = make(map[string]struct{})
			bySlot[ev.Slot] = signers
		}
		signers[ev.Signer] = struct{}{}
		bySigner[ev.Signer] = append(bySigner[ev.Signer], ev)
	}

	bundled := make(map[int64]bool)
	candidates := make(map[string]struct{})
	for slot, signers := range bySlot {
		if len(signers) < minSigners {
			continue
		}
		bundled[slot] = true
		for s := range signers {
			candidates[s] = struct{}{}
		}
	}

	kept := 0
	for signer := range candidates {
		if keepsPattern(bySigner[signer], bundled) {
			kept++
		}
	}

	res := Result{
		TotalWallets:   len(bySigner),
		BundlerWallets: kept,
		BundledSlots:   len(bundled),
	}
	if res.TotalWallets > 0 {
		res.Ratio = float64(kept) / float64(res.TotalWallets)
	}
	return res
}

// keepsPattern reports whether a candidate's history never steps from a
// bundled slot straight into an unbundled one.
func keepsPattern(evs []domain.ActivityEvent, bundled map[int64]bool) bool {
	sorted := make([]domain.ActivityEvent, len(evs))
	copy(sorted, evs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Slot != sorted[j].Slot {
			return sorted[i].Slot < sorted[j].Slot
		}
		return sorted[i].Signature < sorted[j].Signature
	})

	sawBundled := false
	for i, ev := range sorted {
		if !bundled[ev.Slot] {
			continue
		}
		sawBundled = true
		if i+1 < len(sorted) && !bundled[sorted[i+1].Slot] {
			return false
		}
	}
	return sawBundled
}
