package ledger

import (
	"fmt"
	"sort"

	"github.com/orbitlabs/orbit/pkg/canonical"
)

// VerifyChain walks a full chain and checks every link: each event's
// eventHash must recompute from its own fields, previousEventHash must
// equal the predecessor's eventHash, and blockIndex must increase by
// exactly one per step starting at 1. Events may be supplied in any order;
// they are sorted by blockIndex first. An empty slice verifies trivially.
func VerifyChain(events []Event) (bool, string) {
	if len(events) == 0 {
		return true, "empty chain"
	}

	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].BlockIndex < sorted[j].BlockIndex })

	key := sorted[0].Key()
	prevHash := ""
	for i := range sorted {
		e := &sorted[i]

		if e.Key() != key {
			return false, fmt.Sprintf("event %s belongs to a different chain", e.EventID)
		}
		if e.BlockIndex != uint64(i)+1 {
			return false, fmt.Sprintf("block index gap at event %s: expected %d, got %d", e.EventID, i+1, e.BlockIndex)
		}
		if e.PreviousEventHash != prevHash {
			return false, fmt.Sprintf("chain broken at block %d: expected prev %q, got %q", e.BlockIndex, prevHash, e.PreviousEventHash)
		}

		computed, err := canonical.Hash(e, canonical.HashingExclusions())
		if err != nil {
			return false, fmt.Sprintf("cannot hash event %s: %v", e.EventID, err)
		}
		if computed != e.EventHash {
			return false, fmt.Sprintf("hash mismatch at block %d", e.BlockIndex)
		}

		prevHash = e.EventHash
	}

	return true, fmt.Sprintf("chain verified (%d events)", len(sorted))
}
