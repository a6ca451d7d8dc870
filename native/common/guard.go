package common

import "errors"

// ErrReentrancy indicates a guarded entry point was re-entered before the
// outer call finished.
var ErrReentrancy = errors.New("guard: reentrant call")

// ReentrancyGuard is a per-module mutual-exclusion flag. It rejects nested
// re-entry into any guarded entry point of the same module; entry points on
// other modules remain callable, which is why value-before-custody ordering is
// enforced independently by the engines.
type ReentrancyGuard struct {
	entered bool
}

// Enter claims the guard, failing if it is already held. The returned release
// function must run on every exit path, including failures.
func (g *ReentrancyGuard) Enter() (func(), error) {
	if g == nil {
		return func() {}, nil
	}
	if g.entered {
		return nil, ErrReentrancy
	}
	g.entered = true
	return func() { g.entered = false }, nil
}

// CallScope tracks how deep the current call chain is below the user-facing
// entry point. Depth one means a direct top-level action.
type CallScope struct {
	depth int
}

// Enter records one level of nesting and returns the matching release.
func (s *CallScope) Enter() func() {
	if s == nil {
		return func() {}
	}
	s.depth++
	return func() { s.depth-- }
}

// TopLevel reports whether execution is currently a direct top-level action
// rather than a nested call made by another module.
func (s *CallScope) TopLevel() bool {
	return s == nil || s.depth <= 1
}
