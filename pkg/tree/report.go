package tree

import "sort"

// Report enumerates what an import changed. Paths are tree-relative and
// sorted.
type Report struct {
	Added     []string
	Updated   []string
	Unchanged []string
	Removed   []string

	// PoolAdded lists pool entries created by this import; SkippedPool
	// lists entries whose digests mismatched under the skip policy.
	PoolAdded   []string
	SkippedPool []string
}

// Empty reports whether the import changed nothing: re-importing an
// already-imported index yields an empty report.
func (r *Report) Empty() bool {
	return len(r.Added) == 0 &&
		len(r.Updated) == 0 &&
		len(r.Removed) == 0 &&
		len(r.PoolAdded) == 0
}

func (r *Report) sort() {
	for _, s := range [][]string{r.Added, r.Updated, r.Unchanged, r.Removed, r.PoolAdded, r.SkippedPool} {
		sort.Strings(s)
	}
}
