package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/1ureka/raet/internal/config"
	"github.com/1ureka/raet/internal/crypto"
)

func TestKeygenIsLoadableConfig(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeKeys(&buf))

	var kf keyFile
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &kf))
	signer, err := crypto.NewSigner([]byte(kf.Road.SigKey))
	require.NoError(t, err)
	assert.Equal(t, kf.Public.Verhex, signer.VerHex())
	priv, err := crypto.NewPrivateer([]byte(kf.Road.PriKey))
	require.NoError(t, err)
	assert.Equal(t, kf.Public.Pubhex, priv.PubHex())

	path := filepath.Join(t.TempDir(), "raet.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, kf.Road.SigKey, cfg.Road.SigKey)
	assert.Equal(t, kf.Road.PriKey, cfg.Road.PriKey)
}

func TestNormalizeWSURL(t *testing.T) {
	cases := map[string]string{
		"example.com":                   "wss://example.com/ws",
		"ws://127.0.0.1:8080":           "ws://127.0.0.1:8080/ws",
		"http://127.0.0.1:8080/ws?pin=1": "ws://127.0.0.1:8080/ws?pin=1",
		" wss://a.devtunnels.ms/ws ":    "wss://a.devtunnels.ms/ws",
	}
	for in, want := range cases {
		got, err := normalizeWSURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := normalizeWSURL("ws://")
	assert.Error(t, err)
}

func TestRTCRole(t *testing.T) {
	host, _, err := rtcRole([]string{"host"})
	require.NoError(t, err)
	assert.True(t, host)

	host, url, err := rtcRole([]string{"client", "ws://127.0.0.1:1/ws"})
	require.NoError(t, err)
	assert.False(t, host)
	assert.Equal(t, "ws://127.0.0.1:1/ws", url)

	for _, args := range [][]string{{"client"}, {"host", "x"}, {"peer"}} {
		_, _, err := rtcRole(args)
		assert.Error(t, err, args)
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"road", "lane", "rtc", "keygen"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
