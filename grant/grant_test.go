package grant

import (
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/taskrt/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSimpleGrantRoundTrip issues a grant, closes it, and confirms the
// issuer's available count is conserved end to end.
func TestSimpleGrantRoundTrip(t *testing.T) {
	iss := NewIssuer(10)
	g, err := iss.IssueGrant(3, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), iss.Available())
	assert.Equal(t, uint64(3), g.Size())

	g.Close()
	assert.Equal(t, uint64(10), iss.Available())
	iss.Destroy()
}

// TestWaitingSpendResolvedByGrowth is end-to-end scenario 2.
func TestWaitingSpendResolvedByGrowth(t *testing.T) {
	iss := NewIssuer(4)
	g1, err := iss.IssueGrant(3, true)
	require.NoError(t, err)
	require.Equal(t, uint64(3), g1.Size())

	type result struct {
		g   *Grant
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		g2, err := iss.IssueGrant(2, true)
		resultCh <- result{g2, err}
	}()

	time.Sleep(20 * time.Millisecond) // let the goroutine block on await_true
	iss.Grow(1)

	r := <-resultCh
	require.NoError(t, r.err)
	assert.Equal(t, uint64(2), r.g.Size())
	assert.Equal(t, uint64(0), iss.Available())
}

// TestRevokeUnblocksWaiter is end-to-end scenario 3.
func TestRevokeUnblocksWaiter(t *testing.T) {
	iss := NewIssuer(4)
	g1, err := iss.IssueGrant(3, true)
	require.NoError(t, err)

	sub, err := g1.Spend(2, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), g1.Size())
	assert.Equal(t, uint64(2), sub.Size())

	errCh := make(chan error, 1)
	go func() {
		_, err := g1.Spend(2, true) // blocks: g1 only has size 1
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	g1.Revoke()

	err = <-errCh
	require.Error(t, err)
	assert.True(t, status.Is(err, status.GrantRevoked))
}

func TestIssueGrantNonBlockingInsufficient(t *testing.T) {
	iss := NewIssuer(1)
	_, err := iss.IssueGrant(5, false)
	require.Error(t, err)
	assert.True(t, status.Is(err, status.GrantUnavailable))
}

func TestIssueGrantZeroAlwaysSucceeds(t *testing.T) {
	iss := NewIssuer(0)
	g, err := iss.IssueGrant(0, false)
	require.NoError(t, err)
	assert.True(t, g.IsEmpty())
	assert.True(t, g.IsValid())
}

func TestSubsumeRequiresSameIssuer(t *testing.T) {
	iss1 := NewIssuer(10)
	iss2 := NewIssuer(10)
	g1, _ := iss1.IssueGrant(5, false)
	g2, _ := iss2.IssueGrant(5, false)

	assert.Panics(t, func() {
		g1.Subsume(g2)
	})
}

func TestSubsumeConservesTotal(t *testing.T) {
	iss := NewIssuer(10)
	g1, _ := iss.IssueGrant(4, false)
	g2, _ := iss.IssueGrant(3, false)

	g1.Subsume(g2)
	assert.Equal(t, uint64(7), g1.Size())
	assert.Equal(t, uint64(0), g2.Size())
	assert.Equal(t, uint64(3), iss.Available())

	g1.Close()
	iss.Destroy()
}

func TestSubsumeOfMovedFromOtherIsNoop(t *testing.T) {
	iss := NewIssuer(10)
	g1, _ := iss.IssueGrant(4, false)
	g2, _ := iss.IssueGrant(3, false)

	moved := g2.MoveOut()
	assert.NotPanics(t, func() {
		g1.Subsume(g2) // g2 is now moved-from: no-op
	})
	assert.Equal(t, uint64(4), g1.Size())

	g1.Close()
	moved.Close()
	iss.Destroy()
}

func TestDestroyPanicsWithOutstandingGrant(t *testing.T) {
	iss := NewIssuer(10)
	_, err := iss.IssueGrant(3, false)
	require.NoError(t, err)
	assert.Panics(t, func() { iss.Destroy() })
}

func TestSwapAcrossIssuers(t *testing.T) {
	iss1 := NewIssuer(10)
	iss2 := NewIssuer(10)
	g1, _ := iss1.IssueGrant(4, false)
	g2, _ := iss2.IssueGrant(6, false)

	g1.Swap(g2)
	assert.Equal(t, uint64(6), g1.Size())
	assert.Equal(t, uint64(4), g2.Size())
	assert.Same(t, iss2, g1.GetIssuer())
	assert.Same(t, iss1, g2.GetIssuer())

	g1.Close()
	g2.Close()
	iss1.Destroy()
	iss2.Destroy()
}

func TestConcurrentSpendConservesTotal(t *testing.T) {
	iss := NewIssuer(1000)
	g, _ := iss.IssueGrant(1000, false)

	var wg sync.WaitGroup
	results := make(chan *Grant, 1000)
	for i := 0; i < 1000; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := g.Spend(1, true)
			if err == nil {
				results <- sub
			}
		}()
	}
	wg.Wait()
	close(results)

	for sub := range results {
		sub.Close()
	}
	assert.Equal(t, uint64(0), g.Size())
	g.Close()
	iss.Destroy()
}

// TestGrant_Stress fans out concurrent issue/spend/grow/revoke traffic
// against a single Issuer for a bounded duration, in the style of
// eventloop/fastpath_stress_test.go, and checks the conservation invariant
// holds once everything settles.
func TestGrant_Stress(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	iss := NewIssuer(0)
	const workers = 24
	var wg sync.WaitGroup
	done := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					g, err := iss.IssueGrant(10, false)
					if err != nil {
						continue
					}
					if sub, err := g.Spend(3, false); err == nil {
						sub.Close()
					}
					g.Close()
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				iss.Grow(50)
			}
		}
	}()

	time.Sleep(200 * time.Millisecond)
	close(done)
	wg.Wait()

	g, err := iss.IssueGrant(iss.Available(), false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), iss.Available())
	g.Close()
	iss.Destroy()
}

// TestGrant_CloseRaceWithConcurrentSpend races Issuer.Close against
// concurrent Spend calls on outstanding grants, matching
// eventloop/fastpath_race_test.go's focus on a single operation racing
// against concurrent state changes rather than broad random fuzzing.
func TestGrant_CloseRaceWithConcurrentSpend(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	for round := 0; round < 50; round++ {
		iss := NewIssuer(1000)
		grants := make([]*Grant, 20)
		for i := range grants {
			g, err := iss.IssueGrant(10, false)
			require.NoError(t, err)
			grants[i] = g
		}

		var wg sync.WaitGroup
		for _, g := range grants {
			wg.Add(1)
			go func(g *Grant) {
				defer wg.Done()
				if sub, err := g.Spend(1, false); err == nil {
					sub.Close()
				}
				g.Close()
			}(g)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			iss.Close()
		}()

		wg.Wait()
	}
}
