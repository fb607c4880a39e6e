package rtc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/raet/internal/transport"
)

func localConfig() Config {
	return Config{ICEServers: []string{}, Loopback: true}
}

func TestTransportBeforeReady(t *testing.T) {
	tr, err := NewTransport(context.Background(), localConfig())
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.Send([]byte("x"), DefaultPeerAddr)
	assert.ErrorIs(t, err, transport.ErrClosed, "send before Open")
	_, _, err = tr.Receive()
	assert.ErrorIs(t, err, transport.ErrClosed, "receive before Open")

	require.NoError(t, tr.Open())
	assert.Equal(t, DefaultLocalAddr, tr.Addr())

	_, err = tr.Send([]byte("x"), DefaultPeerAddr)
	assert.ErrorIs(t, err, transport.ErrWouldBlock, "channel not ready yet")
	assert.Equal(t, transport.Retry, transport.Classify(err))

	_, err = tr.Send([]byte("x"), "rtc:elsewhere")
	assert.ErrorIs(t, err, transport.ErrPeerGone)

	data, from, err := tr.Receive()
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Empty(t, from)
}

func TestTransportClosedByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr, err := NewTransport(ctx, localConfig())
	require.NoError(t, err)
	defer tr.Close()
	require.NoError(t, tr.Open())

	cancel()
	<-tr.Done()

	_, err = tr.Send([]byte("x"), DefaultPeerAddr)
	assert.Equal(t, transport.Reap, transport.Classify(err))
	_, _, err = tr.Receive()
	assert.ErrorIs(t, err, transport.ErrClosed)
}

// connect pairs two transports in process by exchanging complete SDPs.
func connect(t *testing.T, a, b *Transport) {
	t.Helper()

	offer, err := a.CreateOffer()
	require.NoError(t, err)
	gathered := a.GatheringComplete()
	require.NoError(t, a.SetLocalDescription(offer))
	<-gathered
	require.NoError(t, b.SetRemoteDescription(*a.LocalDescription()))

	answer, err := b.CreateAnswer()
	require.NoError(t, err)
	gathered = b.GatheringComplete()
	require.NoError(t, b.SetLocalDescription(answer))
	<-gathered
	require.NoError(t, a.SetRemoteDescription(*b.LocalDescription()))

	for _, tr := range []*Transport{a, b} {
		select {
		case <-tr.Ready():
		case <-time.After(10 * time.Second):
			t.Skip("no ICE connectivity between loopback peers")
		}
	}
}

func TestTransportLoopbackPair(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real ICE sockets")
	}

	a, err := NewTransport(context.Background(), localConfig())
	require.NoError(t, err)
	defer a.Close()
	b, err := NewTransport(context.Background(), localConfig())
	require.NoError(t, err)
	defer b.Close()

	connect(t, a, b)
	require.NoError(t, a.Open())
	require.NoError(t, b.Open())

	n, err := a.Send([]byte("hello"), a.PeerAddr())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, from, err := b.Receive()
		require.NoError(t, err)
		if data != nil {
			assert.Equal(t, "hello", string(data))
			assert.Equal(t, DefaultPeerAddr, from)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("message not received")
}
