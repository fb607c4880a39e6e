package transport

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		err  error
		want Class
	}{
		{nil, Sent},
		{ErrWouldBlock, Retry},
		{fmt.Errorf("%w: no buffer space", ErrWouldBlock), Retry},
		{ErrPeerGone, Reap},
		{fmt.Errorf("wrapped: %w", ErrPeerGone), Reap},
		{errors.New("disk on fire"), Fatal},
		{ErrClosed, Fatal},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, Classify(tc.err), "%v", tc.err)
	}
}

func TestMemNetworkDelivery(t *testing.T) {
	network := NewMemNetwork(2)
	a := network.Node("a")
	b := network.Node("b")
	require.NoError(t, a.Open())
	require.NoError(t, b.Open())
	assert.Error(t, network.Node("a").Open(), "address reuse")

	data, from, err := b.Receive()
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Empty(t, from)

	_, err = a.Send([]byte("one"), "b")
	require.NoError(t, err)
	_, err = a.Send([]byte("two"), "b")
	require.NoError(t, err)
	_, err = a.Send([]byte("three"), "b")
	assert.ErrorIs(t, err, ErrWouldBlock)

	data, from, err = b.Receive()
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
	assert.Equal(t, "a", from)
	assert.Equal(t, 1, b.Pending())

	_, err = a.Send([]byte("x"), "nowhere")
	assert.ErrorIs(t, err, ErrPeerGone)

	network.Fail("b", ErrWouldBlock)
	_, err = a.Send([]byte("x"), "b")
	assert.ErrorIs(t, err, ErrWouldBlock)

	require.NoError(t, b.Close())
	_, _, err = b.Receive()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = a.Send([]byte("x"), "b")
	assert.ErrorIs(t, err, ErrPeerGone)
}
