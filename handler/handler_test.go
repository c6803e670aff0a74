package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifyInvokesOnce(t *testing.T) {
	count := 0
	h := New(func(v int) { count += v })
	h.Notify(5)
	h.Notify(5) // second call must be a no-op
	assert.Equal(t, 5, count)
}

func TestDestroyPreventsNotify(t *testing.T) {
	called := false
	h := New(func(int) { called = true })
	h.Destroy()
	h.Notify(1)
	assert.False(t, called)
}

func TestListPushDrainFIFOOrder(t *testing.T) {
	var list List[int]
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		list.Push(New(func(v int) { got = append(got, i*v) }))
	}
	assert.Equal(t, 5, list.Len())

	handlers := list.Drain()
	assert.Equal(t, 0, list.Len())
	NotifyAll(handlers, 1)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestListDrainEmpty(t *testing.T) {
	var list List[int]
	assert.Nil(t, list.Drain())
}
