package engine

// MergeGuard exposes the merge pair guard to external tests.
type MergeGuard = mergeGuard
