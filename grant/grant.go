// Package grant implements Grant and Issuer, a counted-resource pool built
// on top of watch.Watch. An Issuer hands out Grants; a Grant can be spent
// (subdivided further), subsumed (merged back together), revoked, or
// swapped, and conserves its issuer's total size across all of these
// operations.
//
// Issuing and spending share one CAS-style transfer loop, kept here as a
// single unexported helper.
package grant

import (
	"sync"

	"github.com/joeycumines/taskrt/status"
	"github.com/joeycumines/taskrt/watch"
)

// Issuer is a pool from which Grant instances are allocated. The zero value
// is not usable; construct with NewIssuer.
type Issuer struct {
	available *watch.Watch[uint64]

	mu        sync.Mutex
	totalSize uint64
}

// NewIssuer constructs a pool with the given initial available count.
func NewIssuer(initialCount uint64) *Issuer {
	return &Issuer{
		available: watch.New(initialCount),
		totalSize: initialCount,
	}
}

// Available returns the current count available for allocation.
func (iss *Issuer) Available() uint64 {
	return iss.available.GetValue()
}

// Close shuts down the pool: any blocked IssueGrant callers unblock with a
// status.Closed error, and a later IssueGrant that the remaining available
// count cannot satisfy fails at once (GrantRevoked without wait, Closed with
// wait). A later IssueGrant that the available count can satisfy still
// succeeds; Close does not refuse it.
func (iss *Issuer) Close() {
	iss.available.Close(status.Closed)
}

// Grow increases the pool size by count, waking anyone blocked in
// IssueGrant who can now be satisfied.
func (iss *Issuer) Grow(count uint64) {
	iss.mu.Lock()
	old := iss.totalSize
	iss.totalSize += count
	if iss.totalSize < old {
		iss.mu.Unlock()
		status.Panic("grant: Issuer.Grow overflowed total_size")
	}
	iss.mu.Unlock()
	iss.recycle(count)
}

func (iss *Issuer) recycle(count uint64) {
	iss.available.FetchAdd(count, addU64)
}

// IssueGrant allocates count from the pool, returning a Grant representing
// the allocation. If wait is false and the pool cannot satisfy count
// immediately, it returns a *status.Error with code GrantUnavailable (or
// GrantRevoked if the pool is closed). If wait is true, it blocks until the
// pool can satisfy the request or is closed.
func (iss *Issuer) IssueGrant(count uint64, wait bool) (*Grant, error) {
	return transfer(iss, iss.available, count, wait)
}

func addU64(a, b uint64) uint64 { return a + b }

// Destroy is the explicit stand-in for a destructor-time invariant check,
// which Go has no equivalent of: since total_size only ever changes via
// Grow, and every count taken out of `available` lives in exactly one live
// Grant's size Watch until that Grant recycles it back, total_size ==
// available() holds automatically unless a Grant is still outstanding.
// Destroy therefore just asserts that, panicking fatally otherwise.
func (iss *Issuer) Destroy() {
	iss.mu.Lock()
	total := iss.totalSize
	iss.mu.Unlock()
	if available := iss.Available(); total != available {
		status.Panic("grant: Issuer destroyed with outstanding grants (total_size=%d available=%d)", total, available)
	}
}

// Grant is a claim on some counted resource drawn from an Issuer. The unit
// of a Grant's size is application-defined. The zero value is not usable;
// Grants are only produced by Issuer.IssueGrant or by spending/subsuming an
// existing Grant.
type Grant struct {
	issuer *Issuer
	size   *watch.Watch[uint64]
}

// GetIssuer returns the Issuer this Grant was allocated from, or nil if the
// Grant has been moved-from (see MoveOut).
func (g *Grant) GetIssuer() *Issuer {
	return g.issuer
}

// Size returns the current claimable count on this Grant.
func (g *Grant) Size() uint64 {
	if g.size == nil {
		return 0
	}
	return g.size.GetValue()
}

// IsEmpty reports whether Size() == 0.
func (g *Grant) IsEmpty() bool {
	return g.Size() == 0
}

// IsValid reports whether the Grant has a live issuer reference — i.e. it
// is not moved-from. A zero-size Grant (e.g. from IssueGrant(0, ...)) is
// still valid; use IsEmpty to test size separately.
func (g *Grant) IsValid() bool {
	return g.issuer != nil
}

// IsRevoked reports whether Revoke has closed this Grant's size Watch.
func (g *Grant) IsRevoked() bool {
	return g.size != nil && g.size.IsClosed()
}

// Spend claims count from this Grant's own size, returning a new sub-Grant
// representing the spent amount. See Issuer.IssueGrant for the wait/error
// semantics; in addition, a revoked Grant returns GrantRevoked regardless
// of wait.
func (g *Grant) Spend(count uint64, wait bool) (*Grant, error) {
	if g.issuer == nil {
		return nil, status.New(status.FailedPrecondition)
	}
	return transfer(g.issuer, g.size, count, wait)
}

// SpendAll sets this Grant's size to zero, recycling the count back to the
// issuer, and returns the size it had before the call.
func (g *Grant) SpendAll() uint64 {
	if g.issuer == nil {
		return 0
	}
	previous := g.size.SetValueReturningOld(0)
	g.issuer.recycle(previous)
	return previous
}

// Subsume moves other's entire size into this Grant and leaves other
// empty. Both Grants must reference the same non-nil issuer; subsuming an
// already-moved-from other is a no-op, but subsuming into a moved-from self
// is a fatal precondition violation.
func (g *Grant) Subsume(other *Grant) {
	if other.issuer == nil {
		return
	}
	if g.issuer == nil {
		status.Panic("grant: it is not legal to subsume a Grant into an invalidated Grant")
	}
	if g.issuer != other.issuer {
		status.Panic("grant: subsume requires both grants to reference the same issuer")
	}
	count := other.size.SetValueReturningOld(0)
	g.size.FetchAdd(count, addU64)
}

// Revoke permanently invalidates this Grant: its remaining size is
// recycled to the issuer (as SpendAll does) and its size Watch is closed,
// waking any pending Spend waiters with GrantRevoked.
func (g *Grant) Revoke() {
	g.SpendAll()
	if g.size != nil {
		g.size.Close(status.GrantRevoked)
	}
}

// Swap exchanges the issuer references and sizes of g and other. The two
// Grants may belong to different issuers.
func (g *Grant) Swap(other *Grant) {
	g.issuer, other.issuer = other.issuer, g.issuer
	gSize := g.size.SetValueReturningOld(0)
	otherSize := other.size.SetValueReturningOld(0)
	g.size.SetValue(otherSize)
	other.size.SetValue(gSize)
}

// MoveOut returns a new Grant taking over this Grant's issuer and size,
// leaving this Grant with issuer == nil and size == 0 — Go's stand-in for
// C++ move construction, since Go has no move semantics. Call sites that
// previously relied on `Grant other = std::move(g)` should call
// `other := g.MoveOut()` instead.
func (g *Grant) MoveOut() *Grant {
	moved := &Grant{issuer: g.issuer, size: watch.New(g.size.SetValueReturningOld(0))}
	g.issuer = nil
	return moved
}

// Close is a destructor-equivalent: it calls Revoke. Callers that want
// deterministic cleanup should defer g.Close().
func (g *Grant) Close() {
	g.Revoke()
}

// transfer implements the shared CAS-style claim algorithm used by both
// Issuer.IssueGrant (source == issuer.available) and Grant.Spend
// (source == grant.size). See grant_impl.hpp's transfer_impl.
func transfer(issuer *Issuer, source *watch.Watch[uint64], count uint64, wait bool) (*Grant, error) {
	if issuer == nil {
		return nil, status.New(status.FailedPrecondition)
	}

	for {
		pretransfer, ok := source.ModifyIf(func(observed uint64) (uint64, bool) {
			if observed >= count {
				return observed - count, true
			}
			return observed, false
		})
		if ok {
			_ = pretransfer
			return &Grant{issuer: issuer, size: watch.New(count)}, nil
		}

		if !wait {
			if source.IsClosed() {
				return nil, status.New(status.GrantRevoked)
			}
			return nil, status.New(status.GrantUnavailable)
		}

		if _, err := source.AwaitTrue(func(observed uint64) bool { return observed >= count }); err != nil {
			return nil, err
		}
	}
}
