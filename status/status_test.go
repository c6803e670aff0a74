package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIs(t *testing.T) {
	err := New(GrantUnavailable)
	assert.True(t, errors.Is(err, New(GrantUnavailable)))
	assert.False(t, errors.Is(err, New(GrantRevoked)))
}

func TestOf(t *testing.T) {
	assert.Equal(t, OK, Of(nil))
	assert.Equal(t, Unknown, Of(errors.New("boom")))
	assert.Equal(t, Closed, Of(New(Closed)))
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(Internal, cause)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "underlying")
}

func TestIsHelper(t *testing.T) {
	assert.True(t, Is(New(EndOfStream), EndOfStream))
	assert.False(t, Is(New(EndOfStream), ClosedBeforeEndOfStream))
}

func TestPanicProducesFatal(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		f, ok := r.(*Fatal)
		require.True(t, ok)
		assert.Contains(t, f.Message, "oops")
		assert.NotEmpty(t, f.Stack)
	}()
	Panic("oops: %d", 42)
}
