package v1

import "sort"

// RejectionEntry is one bucket in the share-rejection histogram: an
// exact server rejection message and how many times it occurred.
type RejectionEntry struct {
	Reason string
	Count  int
}

// rejectionHistogram tracks the top rejection reasons, keyed by the
// exact server message (no normalization), reported longest-message
// first.
type rejectionHistogram struct {
	counts map[string]int
}

func newRejectionHistogram() *rejectionHistogram {
	return &rejectionHistogram{counts: make(map[string]int)}
}

func (h *rejectionHistogram) Record(reason string) {
	if reason == "" {
		return
	}
	h.counts[reason]++
}

// Top returns at most n entries, longest reason string first, ties
// broken by descending count then by reason for determinism.
func (h *rejectionHistogram) Top(n int) []RejectionEntry {
	entries := make([]RejectionEntry, 0, len(h.counts))
	for reason, count := range h.counts {
		entries = append(entries, RejectionEntry{Reason: reason, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].Reason) != len(entries[j].Reason) {
			return len(entries[i].Reason) > len(entries[j].Reason)
		}
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Reason < entries[j].Reason
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
