package runtime

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsesDefaults(t *testing.T) {
	rt := New(Options{})
	defer rt.Halt()
	assert.NotNil(t, rt.Pool())
	assert.Len(t, rt.slots, defaultSlotCount)
}

func TestPostRunsWork(t *testing.T) {
	rt := New(Options{Workers: 2})
	defer rt.Halt()

	var n atomic.Int32
	done := make(chan struct{})
	rt.Post(func() {
		n.Add(1)
		close(done)
	})
	<-done
	assert.EqualValues(t, 1, n.Load())
}

func TestNotifyWakesSlotWaiter(t *testing.T) {
	rt := New(Options{Slots: 4})
	defer rt.Halt()

	key := uint64(7)
	slot := rt.Slot(key)
	last := slot.GetValue()

	woke := make(chan struct{})
	go func() {
		_, err := slot.AwaitNotEqual(last)
		require.NoError(t, err)
		close(woke)
	}()

	time.Sleep(10 * time.Millisecond)
	rt.Notify(key)

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by Notify")
	}
}

func TestHaltIsIdempotentAndJoinBlocksUntilHalted(t *testing.T) {
	rt := New(Options{})

	joined := make(chan struct{})
	go func() {
		rt.Join()
		close(joined)
	}()

	select {
	case <-joined:
		t.Fatal("Join returned before Halt was called")
	case <-time.After(10 * time.Millisecond):
	}

	rt.Halt()
	rt.Halt() // idempotent

	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("Join did not unblock after Halt")
	}
}

func TestDefaultReturnsSameInstance(t *testing.T) {
	a := Default()
	b := Default()
	assert.Same(t, a, b)
}
