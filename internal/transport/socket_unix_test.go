//go:build unix

package transport

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveWithin(t *testing.T, d Datagram, wait time.Duration) ([]byte, string) {
	t.Helper()
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		data, from, err := d.Receive()
		require.NoError(t, err)
		if data != nil {
			return data, from
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("nothing received within %s", wait)
	return nil, ""
}

func TestUDPLoopback(t *testing.T) {
	a := NewUDP("127.0.0.1:0", 0)
	b := NewUDP("127.0.0.1:0", 0)
	require.NoError(t, a.Open())
	defer a.Close()
	require.NoError(t, b.Open())
	defer b.Close()

	data, _, err := b.Receive()
	require.NoError(t, err)
	assert.Nil(t, data, "receive on an idle socket must not block")

	n, err := a.Send([]byte("over udp"), b.Addr())
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	got, from := receiveWithin(t, b, time.Second)
	assert.Equal(t, "over udp", string(got))
	assert.Equal(t, a.Addr(), from)
}

func TestUnixgramLoopbackAndErrors(t *testing.T) {
	dir := t.TempDir()
	a := NewUnixgram(filepath.Join(dir, "lane.alpha.uxd"), 0)
	b := NewUnixgram(filepath.Join(dir, "lane.beta.uxd"), 0)
	require.NoError(t, a.Open())
	defer a.Close()
	require.NoError(t, b.Open())

	_, err := a.Send([]byte("over uxd"), b.Addr())
	require.NoError(t, err)
	got, from := receiveWithin(t, b, time.Second)
	assert.Equal(t, "over uxd", string(got))
	assert.Equal(t, a.Addr(), from)

	// Fill the receiver until the kernel pushes back.
	var blocked error
	for i := 0; i < 10000 && blocked == nil; i++ {
		_, blocked = a.Send(make([]byte, 1024), b.Addr())
	}
	assert.Equal(t, Retry, Classify(blocked))

	require.NoError(t, b.Close())
	_, err = a.Send([]byte("gone"), b.Addr())
	assert.Equal(t, Reap, Classify(err))
}
