package road

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/raet/internal/body"
	"github.com/1ureka/raet/internal/keeping"
	"github.com/1ureka/raet/internal/stack"
	"github.com/1ureka/raet/internal/transport"
)

func packFor(t *testing.T, from *RoadStack, uid uint32, b body.Body) [][]byte {
	t.Helper()
	remote, ok := from.Remotes.ByUID(uid)
	require.True(t, ok)
	parts, err := from.PackTx(stack.TxMsg{Body: b, UID: uid}, remote)
	require.NoError(t, err)
	return parts
}

func feed(to *RoadStack, from *RoadStack, parts ...[]byte) {
	for _, p := range parts {
		to.ProcessRx(stack.Wire{Data: p, Addr: from.Estate().HA})
	}
}

func TestServiceAllDeliversSegmentedMessage(t *testing.T) {
	alpha, beta := newPair(t, nil)
	big := body.Body{"content": strings.Repeat("z", 8000), "n": 3}
	small := body.Body{"content": "hi"}

	require.NoError(t, alpha.Transmit(big, 2))
	require.NoError(t, alpha.Transmit(small, 2))
	require.NoError(t, alpha.ServiceAll())
	assert.Greater(t, alpha.Stats.Get(stack.StatTxSent), uint64(2))
	assert.Equal(t, uint64(2), alpha.Stats.Get(stack.StatMsgSent))

	require.NoError(t, beta.ServiceAll())
	require.Equal(t, 2, beta.RxMsgs.Len())
	m, _ := beta.RxMsgs.Pop()
	assert.Equal(t, big, m.Body)
	assert.Equal(t, uint32(1), m.UID)
	assert.Equal(t, "alpha", m.Name)
	m, _ = beta.RxMsgs.Pop()
	assert.Equal(t, small, m.Body)

	remote, _ := beta.Remotes.ByUID(1)
	assert.Equal(t, alpha.Estate().SID, remote.RSID)
	assert.Zero(t, remote.Trays())
}

func TestOutOfOrderSegments(t *testing.T) {
	alpha, beta := newPair(t, nil)
	big := body.Body{"content": strings.Repeat("q", 3000)}
	parts := packFor(t, alpha, 2, big)
	require.Greater(t, len(parts), 2)

	for i := len(parts) - 1; i >= 0; i-- {
		feed(beta, alpha, parts[i])
	}
	require.Equal(t, 1, beta.RxMsgs.Len())
	m, _ := beta.RxMsgs.Pop()
	assert.Equal(t, big, m.Body)
}

func TestDuplicateSegmentsDeliverOnce(t *testing.T) {
	alpha, beta := newPair(t, nil)
	parts := packFor(t, alpha, 2, body.Body{"content": strings.Repeat("d", 3000)})

	feed(beta, alpha, parts[0], parts[0])
	assert.Equal(t, uint64(1), beta.Stats.Get(stack.StatDuplicateSegment))
	feed(beta, alpha, parts[1:]...)
	require.Equal(t, 1, beta.RxMsgs.Len())

	// Late copies after delivery must not start a new tray.
	feed(beta, alpha, parts...)
	assert.Equal(t, 1, beta.RxMsgs.Len())
	assert.Equal(t, uint64(1+len(parts)), beta.Stats.Get(stack.StatDuplicateSegment))
	remote, _ := beta.Remotes.ByUID(1)
	assert.Zero(t, remote.Trays())
}

func TestMissingSegments(t *testing.T) {
	alpha, beta := newPair(t, nil)
	parts := packFor(t, alpha, 2, body.Body{"content": strings.Repeat("m", 4000)})
	require.Greater(t, len(parts), 3)

	feed(beta, alpha, parts[0], parts[2])
	remote, _ := beta.Remotes.ByUID(1)
	require.Equal(t, 1, remote.Trays())
	p, err := Parse(parts[0])
	require.NoError(t, err)
	tray, ok := remote.Tray(rxIndex(p.Head))
	require.True(t, ok)
	assert.Equal(t, []int{1}, tray.Missing(0, -1))
}

func TestStaleTraysReapedOnNewSession(t *testing.T) {
	alpha, beta := newPair(t, nil)
	old := packFor(t, alpha, 2, body.Body{"content": strings.Repeat("s", 3000)})
	feed(beta, alpha, old[0])
	remote, _ := beta.Remotes.ByUID(1)
	require.Equal(t, 1, remote.Trays())
	oldSID := remote.RSID

	alpha.Estate().NextSID()
	feed(beta, alpha, packFor(t, alpha, 2, body.Body{"content": "new session"})...)
	assert.Zero(t, remote.Trays())
	assert.Equal(t, uint64(1), beta.Stats.Get(stack.StatStaleBook))
	assert.Equal(t, alpha.Estate().SID, remote.RSID)
	require.Equal(t, 1, beta.RxMsgs.Len())

	// The rest of the old session is now stale.
	feed(beta, alpha, old[1])
	assert.Equal(t, uint64(1), beta.Stats.Get(stack.StatStaleSession))
	assert.Zero(t, remote.Trays())
	assert.NotEqual(t, oldSID, remote.RSID)
}

func TestInboundDropsAreCounted(t *testing.T) {
	alpha, beta := newPair(t, nil)
	network := transport.NewMemNetwork(4)
	gamma := newStack(t, network, 3, "gamma", "10.0.0.3:7530", nil)
	require.NoError(t, gamma.AddRemote(remoteOf(t, beta)))

	feed(beta, alpha, []byte("garbage"))
	assert.Equal(t, uint64(1), beta.Stats.Get(stack.StatParsingError))

	feed(beta, gamma, packFor(t, gamma, 2, body.Body{"x": "y"})...)
	assert.Equal(t, uint64(1), beta.Stats.Get(stack.StatUnknownPeer))

	// Addressed to someone else.
	require.NoError(t, alpha.AddRemote(remoteOf(t, gamma)))
	feed(beta, alpha, packFor(t, alpha, 3, body.Body{"x": "y"})...)
	assert.Equal(t, uint64(1), beta.Stats.Get(stack.StatMisaddressed))

	parts := packFor(t, alpha, 2, body.Body{"x": "y"})
	parts[0][len(parts[0])-1] ^= 0x01
	feed(beta, alpha, parts...)
	assert.Equal(t, uint64(1), beta.Stats.Get(stack.StatVerificationFailure))

	h := messageHead(alpha, 2)
	h.PacketKind = PacketAlive
	p, err := Pack(h, body.Body{}, alpha, 1024)
	require.NoError(t, err)
	feed(beta, alpha, p.Packed)
	assert.Equal(t, uint64(1), beta.Stats.Get(stack.StatUnhandledPacket))

	assert.Zero(t, beta.RxMsgs.Len())
}

func TestDecryptErrorIsCounted(t *testing.T) {
	alpha, beta := newPair(t, nil)
	// Beta holds a wrong public key for alpha, so the coat fails to open
	// while the signature still verifies.
	remote, _ := beta.Remotes.ByUID(1)
	other := newStack(t, transport.NewMemNetwork(1), 9, "other", "10.0.0.9:7530", nil)
	remote.Publican = other.Estate().Privateer().Publican()

	feed(beta, alpha, packFor(t, alpha, 2, body.Body{"x": "y"})...)
	assert.Equal(t, uint64(1), beta.Stats.Get(stack.StatDecryptError))
}

func TestTransmitUnknownDestination(t *testing.T) {
	alpha, _ := newPair(t, nil)
	assert.ErrorIs(t, alpha.Transmit(body.Body{"x": "y"}, 42), stack.ErrInvalidDestination)
	assert.Equal(t, uint64(1), alpha.Stats.Get(stack.StatInvalidDestination))
	assert.Zero(t, alpha.TxMsgs.Len())
}

func TestAddRemoteCollisions(t *testing.T) {
	alpha, _ := newPair(t, nil)
	dupUID, err := NewRemoteEstate(2, "other", "10.0.0.5:7530", nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, alpha.AddRemote(dupUID), stack.ErrRegistry)
	localName, err := NewRemoteEstate(5, "alpha", "10.0.0.5:7530", nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, alpha.AddRemote(localName), stack.ErrRegistry)
	assert.Equal(t, 1, alpha.Remotes.Len())
}

func TestKeeperRestore(t *testing.T) {
	keeper := keeping.NewMemKeeper()
	network := transport.NewMemNetwork(8)

	cfg := DefaultConfig()
	cfg.UID, cfg.Name, cfg.HA = 5, "main", "10.0.0.5:7530"
	first, err := NewRoadStack(cfg, network.Node(cfg.HA), keeper)
	require.NoError(t, err)
	require.NoError(t, first.Open())

	peerKeys, err := NewLocalEstate(first.Estate().Lot, nil, nil)
	require.NoError(t, err)
	remote, err := NewRemoteEstate(6, "other", "10.0.0.6:7530", peerKeys.Signer().VerKey(), peerKeys.Privateer().Publican().Key())
	require.NoError(t, err)
	require.NoError(t, first.AddRemote(remote))
	remote.RSID = 0x44
	require.NoError(t, keeper.DumpRemote(remote.Record()))
	sid := first.Estate().SID
	require.NoError(t, first.Close())

	// Fresh identity in config; the keeper wins.
	cfg2 := DefaultConfig()
	cfg2.UID, cfg2.Name = 77, "fresh"
	second, err := NewRoadStack(cfg2, network.Node(cfg.HA), keeper)
	require.NoError(t, err)

	local := second.Estate()
	assert.Equal(t, uint32(5), local.UID)
	assert.Equal(t, "main", local.Name)
	assert.Equal(t, "10.0.0.5:7530", local.HA)
	assert.Equal(t, sid+1, local.SID)
	assert.Equal(t, first.Estate().Signer().KeyHex(), local.Signer().KeyHex())
	assert.Equal(t, first.Estate().Privateer().KeyHex(), local.Privateer().KeyHex())

	require.Equal(t, 1, second.Remotes.Len())
	got, ok := second.Remotes.ByName("other")
	require.True(t, ok)
	assert.Equal(t, uint32(6), got.Lot().UID)
	assert.Zero(t, got.RSID)
	assert.Equal(t, remote.Verifier.KeyHex(), got.Verifier.KeyHex())

	rec, ok, err := keeper.LoadLocal()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sid+1, rec.SID)
}

func TestReapedRemoteIsForgotten(t *testing.T) {
	keeper := keeping.NewMemKeeper()
	network := transport.NewMemNetwork(8)
	cfg := DefaultConfig()
	cfg.Name, cfg.HA = "main", "10.0.0.5:7530"
	s, err := NewRoadStack(cfg, network.Node(cfg.HA), keeper)
	require.NoError(t, err)
	require.NoError(t, s.Open())

	ghost := newStack(t, transport.NewMemNetwork(1), 2, "ghost", "10.0.0.66:7530", nil)
	require.NoError(t, s.AddRemote(remoteOf(t, ghost)))
	remotes, _ := keeper.LoadAllRemotes()
	require.Len(t, remotes, 1)

	require.NoError(t, s.Transmit(body.Body{"x": "y"}, 2))
	require.NoError(t, s.ServiceAllTx())
	assert.Equal(t, uint64(1), s.Stats.Get(stack.StatRemoteReaped))
	remotes, _ = keeper.LoadAllRemotes()
	assert.Empty(t, remotes)
}

func TestRestartedPeerWithoutKeeperStartsFreshSession(t *testing.T) {
	alpha, beta := newPair(t, nil)
	feed(beta, alpha, packFor(t, alpha, 2, body.Body{"content": strings.Repeat("a", 3000)})...)
	require.Equal(t, 1, beta.RxMsgs.Len())
	half := packFor(t, alpha, 2, body.Body{"content": strings.Repeat("b", 3000)})
	require.Greater(t, len(half), 1)
	feed(beta, alpha, half[0])

	old := alpha.Estate()
	restarted := newStack(t, transport.NewMemNetwork(8), 1, "alpha", old.HA, func(c *Config) {
		c.SigKey, c.PriKey = old.Signer().KeyHex(), old.Privateer().KeyHex()
	})
	require.NoError(t, restarted.AddRemote(remoteOf(t, beta)))
	assert.NotEqual(t, old.SID, restarted.Estate().SID)

	want := body.Body{"content": strings.Repeat("c", 3000)}
	feed(beta, restarted, packFor(t, restarted, 2, want)...)
	assert.Zero(t, beta.Stats.Get(stack.StatDuplicateSegment))
	assert.Equal(t, uint64(1), beta.Stats.Get(stack.StatStaleBook))
	assert.Equal(t, 1, beta.done.Len())

	require.Equal(t, 2, beta.RxMsgs.Len())
	beta.RxMsgs.Pop()
	m, _ := beta.RxMsgs.Pop()
	assert.Equal(t, want, m.Body)
}
