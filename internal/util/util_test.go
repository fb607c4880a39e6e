package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024 * 1024, " 0.1 GiB"},
	}
	for _, tc := range testCases {
		got := formatBytes(tc.in)
		assert.Equal(t, tc.want, got)
		assert.Len(t, got, 8)
	}
}

func TestDropCountSkipsTraffic(t *testing.T) {
	d := map[string]uint64{
		"tx_sent":         4,
		"rx_bytes":        900,
		"msg_received":    2,
		"remote_admitted": 1,
		"parsing_error":   3,
		"stale_session":   1,
	}
	assert.Equal(t, uint64(4), dropCount(d))
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "none", Fingerprint(nil))
	a := Fingerprint([]byte("key-a"))
	assert.Len(t, a, 8)
	assert.Equal(t, a, Fingerprint([]byte("key-a")))
	assert.NotEqual(t, a, Fingerprint([]byte("key-b")))
}
