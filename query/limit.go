package query

// Limit is a result-count value: unset, a compile-time constant, or a
// value deferred to evaluation time.
type Limit struct {
	set bool
	n   int32
	fn  func() int32
}

// LimitOf returns a constant limit.
func LimitOf(n int32) Limit {
	return Limit{set: true, n: n}
}

// DeferredLimit returns a limit evaluated when the query runs.
func DeferredLimit(fn func() int32) Limit {
	return Limit{set: true, fn: fn}
}

// IsSet reports whether the limit carries a value.
func (l Limit) IsSet() bool { return l.set }

// Deferred reports whether resolution is deferred to evaluation time.
func (l Limit) Deferred() bool { return l.fn != nil }

// Resolve evaluates the limit. ok is false when the limit is unset.
func (l Limit) Resolve() (n int32, ok bool) {
	if !l.set {
		return 0, false
	}
	if l.fn != nil {
		return l.fn(), true
	}
	return l.n, true
}

// CombineMin combines two limits, keeping the smaller. Two constants
// combine immediately; any deferred side defers the min to evaluation time.
func CombineMin(a, b Limit) Limit {
	if !a.set {
		return b
	}
	if !b.set {
		return a
	}
	if a.fn == nil && b.fn == nil {
		return LimitOf(min(a.n, b.n))
	}
	return DeferredLimit(func() int32 {
		av, _ := a.Resolve()
		bv, _ := b.Resolve()
		return min(av, bv)
	})
}
