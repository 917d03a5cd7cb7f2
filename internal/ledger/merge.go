// Package ledger owns the canonical list of receipt lines: de-duplicating
// merges, the delimited export format and persistence on the KV store.
package ledger

import "casheye/internal/core"

// Diff returns the incoming lines whose identity is not already present in
// existing, in incoming order. The first occurrence of a key wins, so
// repeats within incoming are dropped too.
func Diff(existing, incoming []core.ReceiptLine) []core.ReceiptLine {
	seen := make(map[core.LineKey]struct{}, len(existing)+len(incoming))
	for _, l := range existing {
		seen[l.Key()] = struct{}{}
	}
	var added []core.ReceiptLine
	for _, l := range incoming {
		k := l.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		added = append(added, l)
	}
	return added
}

// MergeIntoLedger keeps existing untouched and appends the new lines of
// incoming. Merging the same input twice is a no-op.
func MergeIntoLedger(existing, incoming []core.ReceiptLine) []core.ReceiptLine {
	added := Diff(existing, incoming)
	out := make([]core.ReceiptLine, 0, len(existing)+len(added))
	out = append(out, existing...)
	return append(out, added...)
}
