package lane

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/raet/internal/body"
	"github.com/1ureka/raet/internal/keeping"
	"github.com/1ureka/raet/internal/segment"
	"github.com/1ureka/raet/internal/stack"
	"github.com/1ureka/raet/internal/transport"
)

const testDir = "/var/run/raet"

func newYard(t *testing.T, network *transport.MemNetwork, uid uint32, name string, mutate func(*Config)) *LaneStack {
	t.Helper()
	cfg := DefaultConfig()
	cfg.UID, cfg.Name, cfg.Dirpath = uid, name, testDir
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewLaneStack(cfg, network.Node(cfg.HA()), nil)
	require.NoError(t, err)
	require.NoError(t, s.Open())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestComputeAndParseHA(t *testing.T) {
	ha := ComputeHA(testDir, "lane", "alpha")
	assert.Equal(t, "/var/run/raet/lane.alpha.uxd", ha)
	laneName, name, err := ParseHA(ha)
	require.NoError(t, err)
	assert.Equal(t, "lane", laneName)
	assert.Equal(t, "alpha", name)

	for _, bad := range []string{
		"/var/run/raet/lane.alpha.sock",
		"/var/run/raet/lanealpha.uxd",
		"/var/run/raet/lane.al.pha.uxd",
		"/var/run/raet/.alpha.uxd",
		"/var/run/raet/lane..uxd",
	} {
		_, _, err := ParseHA(bad)
		assert.ErrorIs(t, err, ErrFraming, bad)
	}
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("alpha-1"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName("al pha"))
	assert.False(t, ValidName("al.pha"))
	assert.False(t, ValidName("al\npha"))
}

// A small message fits one page of a fixed, known size.
func TestSinglePageIsDeterministic(t *testing.T) {
	msg := body.Body{
		"route":   map[string]any{"src": "alpha", "dst": "beta"},
		"content": "Hello all yards.",
	}
	h := Head{SN: "alpha", DN: "beta", SI: 1, BI: 1}
	book := NewTxBook(h, msg)
	require.NoError(t, book.Pack(body.JSON, MaxPageSize))
	require.Len(t, book.Pages, 1)
	page := book.Pages[0]
	assert.Len(t, page, 146)
	assert.True(t, strings.HasPrefix(string(page),
		"ri RAET\nvn 0\npk 0\nsn alpha\ndn beta\nsi 000000000000000001\nbi 1\npn 0000\npc 0001\n\n"))

	again := NewTxBook(h, msg)
	require.NoError(t, again.Pack(body.JSON, MaxPageSize))
	assert.Equal(t, page, again.Pages[0])

	p, err := Parse(page)
	require.NoError(t, err)
	assert.Equal(t, h.SN, p.Head.SN)
	assert.Equal(t, 1, p.Head.PC)
	got, err := body.Unpack(body.JSON, p.Payload)
	require.NoError(t, err)
	assert.Equal(t, "Hello all yards.", got["content"])
	assert.Equal(t, map[string]any{"src": "alpha", "dst": "beta"}, got["route"])
}

// A 100,083 byte body takes exactly two pages and comes back unchanged.
func TestLargeBodyPagesAndReassembles(t *testing.T) {
	msg := body.Body{"content": strings.Repeat("x", 100069)}
	flat, err := body.Pack(body.JSON, msg)
	require.NoError(t, err)
	require.Len(t, flat, 100083)

	h := Head{SN: "alpha", DN: "beta", SI: 1, BI: 1}
	book := NewTxBook(h, msg)
	require.NoError(t, book.Pack(body.JSON, MaxPageSize))
	require.Len(t, book.Pages, 2)
	assert.Equal(t, BookIndex{Local: "alpha", Remote: "beta", SI: 1, BI: 1}, book.Index())

	var rx *RxBook
	for i := len(book.Pages) - 1; i >= 0; i-- {
		assert.LessOrEqual(t, len(book.Pages[i]), MaxPageSize)
		p, err := Parse(book.Pages[i])
		require.NoError(t, err)
		assert.Equal(t, i, p.Head.PN)
		assert.Equal(t, 2, p.Head.PC)
		if rx == nil {
			rx, err = NewRxBook(p)
			require.NoError(t, err)
		}
		dup, err := rx.Add(p)
		require.NoError(t, err)
		assert.False(t, dup)
	}
	assert.Equal(t, BookIndex{Local: "beta", Remote: "alpha", SI: 1, BI: 1}, rx.Index)
	require.True(t, rx.Complete())
	got, err := rx.Open(body.JSON)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestPackRefusesOversize(t *testing.T) {
	h := Head{SN: "alpha", DN: "beta", PC: 1}
	_, err := Pack(h, make([]byte, 200), 100)
	assert.ErrorIs(t, err, ErrPageSize)
	p, err := Prepack(h, make([]byte, 200))
	require.NoError(t, err)
	assert.Greater(t, len(p.Packed), 200)

	_, err = Prepack(Head{SN: "al pha", DN: "beta", PC: 1}, nil)
	assert.ErrorIs(t, err, ErrFraming)
}

func TestParseRejectsMalformed(t *testing.T) {
	good := "ri RAET\nvn 0\npk 0\nsn a\ndn b\nsi 000000000000000001\nbi 1\npn 0000\npc 0001\n\n{}"
	_, err := Parse([]byte(good))
	require.NoError(t, err)

	testCases := map[string]string{
		"no tag":        "hello\n\n",
		"unterminated":  strings.TrimSuffix(good, "\n\n{}"),
		"short si":      strings.Replace(good, "si 000000000000000001", "si 1", 1),
		"missing field": strings.Replace(good, "bi 1\n", "", 1),
		"swapped":       strings.Replace(good, "sn a\ndn b", "dn b\nsn a", 1),
		"unknown kind":  strings.Replace(good, "pk 0", "pk 7", 1),
		"page overrun":  strings.Replace(good, "pn 0000", "pn 0001", 1),
		"short pc":      strings.Replace(good, "pc 0001", "pc 1", 1),
	}
	for name, raw := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.ErrorIs(t, err, ErrFraming)
			assert.ErrorIs(t, err, segment.ErrFraming)
		})
	}
}

func TestYardsExchangeAndAdmit(t *testing.T) {
	network := transport.NewMemNetwork(64)
	alpha := newYard(t, network, 1, "alpha", nil)
	beta := newYard(t, network, 1, "beta", nil)

	_, err := alpha.AddYard("beta")
	require.NoError(t, err)
	big := body.Body{"content": strings.Repeat("x", 100069)}
	require.NoError(t, alpha.TransmitTo(big, "beta"))
	require.NoError(t, alpha.TransmitTo(body.Body{"n": 2.0}, "beta"))
	require.NoError(t, alpha.ServiceAll())
	assert.Equal(t, uint64(3), alpha.Stats.Get(stack.StatTxSent))

	// Beta has never heard of alpha and admits it.
	require.NoError(t, beta.ServiceAll())
	assert.Equal(t, uint64(1), beta.Stats.Get(stack.StatRemoteAdmitted))
	remote, ok := beta.Remotes.ByName("alpha")
	require.True(t, ok)
	assert.Equal(t, alpha.Yard().HA, remote.Lot().HA)
	assert.NotEqual(t, beta.Yard().UID, remote.Lot().UID)
	require.NoError(t, beta.Remotes.Check())

	require.Equal(t, 2, beta.RxMsgs.Len())
	m, _ := beta.RxMsgs.Pop()
	assert.Equal(t, big, m.Body)
	assert.Equal(t, "alpha", m.Name)

	// And can answer.
	require.NoError(t, beta.TransmitTo(body.Body{"ack": true}, "alpha"))
	require.NoError(t, beta.ServiceAll())
	require.NoError(t, alpha.ServiceAll())
	require.Equal(t, 1, alpha.RxMsgs.Len())
	m, _ = alpha.RxMsgs.Pop()
	assert.Equal(t, true, m.Body["ack"])
}

func TestUnacceptedSource(t *testing.T) {
	network := transport.NewMemNetwork(8)
	alpha := newYard(t, network, 1, "alpha", nil)
	closed := newYard(t, network, 1, "beta", func(c *Config) { c.Accept = false })

	_, err := alpha.AddYard("beta")
	require.NoError(t, err)
	require.NoError(t, alpha.TransmitTo(body.Body{"x": 1.0}, "beta"))
	require.NoError(t, alpha.ServiceAll())
	require.NoError(t, closed.ServiceAll())
	assert.Equal(t, uint64(1), closed.Stats.Get(stack.StatUnacceptedSource))
	assert.Zero(t, closed.RxMsgs.Len())
	assert.Zero(t, closed.Remotes.Len())

	// A yard on another lane is refused even when accepting.
	other := newYard(t, network, 1, "gamma", func(c *Config) { c.Lane = "other" })
	beta := newYard(t, network, 1, "delta", nil)
	remote, err := NewRemoteYard(2, "delta", beta.Yard().HA)
	require.NoError(t, err)
	require.NoError(t, other.AddRemote(remote))
	require.NoError(t, other.TransmitTo(body.Body{"x": 1.0}, "delta"))
	require.NoError(t, other.ServiceAll())
	require.NoError(t, beta.ServiceAll())
	assert.Equal(t, uint64(1), beta.Stats.Get(stack.StatUnacceptedSource))
}

func TestTransmitToUnknownYard(t *testing.T) {
	alpha := newYard(t, transport.NewMemNetwork(8), 1, "alpha", nil)
	assert.ErrorIs(t, alpha.TransmitTo(body.Body{"x": 1.0}, "nobody"), stack.ErrInvalidDestination)
	assert.ErrorIs(t, alpha.TransmitTo(body.Body{"x": 1.0}, ""), stack.ErrInvalidDestination)
	assert.Equal(t, uint64(2), alpha.Stats.Get(stack.StatInvalidDestination))
	assert.Zero(t, alpha.TxMsgs.Len())
}

func TestRegistryRejectsDuplicateHA(t *testing.T) {
	alpha := newYard(t, transport.NewMemNetwork(8), 1, "alpha", nil)
	first, err := NewRemoteYard(2, "beta", ComputeHA(testDir, "lane", "beta"))
	require.NoError(t, err)
	require.NoError(t, alpha.AddRemote(first))
	same, err := NewRemoteYard(3, "gamma", ComputeHA(testDir, "lane", "beta"))
	require.NoError(t, err)
	assert.ErrorIs(t, alpha.AddRemote(same), stack.ErrRegistry)
	assert.Equal(t, 1, alpha.Remotes.Len())
	assert.NoError(t, alpha.Remotes.Check())
}

func TestStaleBooksAndDuplicates(t *testing.T) {
	network := transport.NewMemNetwork(8)
	alpha := newYard(t, network, 1, "alpha", nil)
	beta := newYard(t, network, 1, "beta", nil)
	remote, err := alpha.AddYard("beta")
	require.NoError(t, err)

	big := body.Body{"content": strings.Repeat("x", 100069)}
	pages, err := alpha.PackTx(stack.TxMsg{Body: big}, remote)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	from := alpha.Yard().HA

	beta.ProcessRx(stack.Wire{Data: pages[0], Addr: from})
	beta.ProcessRx(stack.Wire{Data: pages[0], Addr: from})
	assert.Equal(t, uint64(1), beta.Stats.Get(stack.StatDuplicateSegment))
	yard, ok := beta.Remotes.ByName("alpha")
	require.True(t, ok)
	require.Equal(t, 1, yard.Books())

	p, err := Parse(pages[0])
	require.NoError(t, err)
	book, ok := yard.Book(rxIndex(p.Head))
	require.True(t, ok)
	assert.Empty(t, book.Missing(0, -1))

	// Alpha restarts its session; the half book is stale.
	alpha.Yard().NextSID()
	fresh, err := alpha.PackTx(stack.TxMsg{Body: body.Body{"n": 1.0}}, remote)
	require.NoError(t, err)
	beta.ProcessRx(stack.Wire{Data: fresh[0], Addr: from})
	assert.Zero(t, yard.Books())
	assert.Equal(t, uint64(1), beta.Stats.Get(stack.StatStaleBook))
	assert.Equal(t, 1, beta.RxMsgs.Len())

	beta.ProcessRx(stack.Wire{Data: pages[1], Addr: from})
	assert.Equal(t, uint64(1), beta.Stats.Get(stack.StatStaleSession))
	assert.Zero(t, yard.Books())
}

func TestInboundDropsAreCounted(t *testing.T) {
	beta := newYard(t, transport.NewMemNetwork(8), 1, "beta", nil)
	beta.ProcessRx(stack.Wire{Data: []byte("junk"), Addr: "x"})
	assert.Equal(t, uint64(1), beta.Stats.Get(stack.StatParsingError))

	h := Head{SN: "alpha", DN: "someone", SI: 1, BI: 1, PC: 1}
	p, err := Pack(h, []byte("{}"), MaxPageSize)
	require.NoError(t, err)
	beta.ProcessRx(stack.Wire{Data: p.Packed, Addr: ComputeHA(testDir, "lane", "alpha")})
	assert.Equal(t, uint64(1), beta.Stats.Get(stack.StatMisaddressed))

	h.DN = "beta"
	p, err = Pack(h, []byte("not json"), MaxPageSize)
	require.NoError(t, err)
	beta.ProcessRx(stack.Wire{Data: p.Packed, Addr: ComputeHA(testDir, "lane", "alpha")})
	assert.Equal(t, uint64(2), beta.Stats.Get(stack.StatParsingError))
}

func TestLaneKeeperRestore(t *testing.T) {
	keeper := keeping.NewMemKeeper()
	network := transport.NewMemNetwork(8)
	cfg := DefaultConfig()
	cfg.Name, cfg.Dirpath = "main", testDir
	first, err := NewLaneStack(cfg, network.Node(cfg.HA()), keeper)
	require.NoError(t, err)
	_, err = first.AddYard("peer")
	require.NoError(t, err)

	cfg2 := DefaultConfig()
	cfg2.Name, cfg2.Dirpath = "other", "/elsewhere"
	second, err := NewLaneStack(cfg2, network.Node(cfg.HA()), keeper)
	require.NoError(t, err)
	assert.Equal(t, "main", second.Yard().Name)
	assert.Equal(t, first.Yard().HA, second.Yard().HA)
	assert.Equal(t, first.Yard().SID+1, second.Yard().SID)
	remote, ok := second.Remotes.ByName("peer")
	require.True(t, ok)
	assert.Zero(t, remote.RSID)
	assert.Equal(t, "lane", remote.Lane)
}

func TestRestartedYardWithoutKeeperStartsFreshSession(t *testing.T) {
	network := transport.NewMemNetwork(8)
	alpha := newYard(t, network, 1, "alpha", nil)
	beta := newYard(t, network, 1, "beta", nil)
	remote, err := alpha.AddYard("beta")
	require.NoError(t, err)
	from := alpha.Yard().HA

	first, err := alpha.PackTx(stack.TxMsg{Body: body.Body{"content": strings.Repeat("a", 100000)}}, remote)
	require.NoError(t, err)
	for _, p := range first {
		beta.ProcessRx(stack.Wire{Data: p, Addr: from})
	}
	require.Equal(t, 1, beta.RxMsgs.Len())
	half, err := alpha.PackTx(stack.TxMsg{Body: body.Body{"content": strings.Repeat("b", 100000)}}, remote)
	require.NoError(t, err)
	require.Greater(t, len(half), 1)
	beta.ProcessRx(stack.Wire{Data: half[0], Addr: from})

	restarted := newYard(t, transport.NewMemNetwork(8), 1, "alpha", nil)
	require.Equal(t, from, restarted.Yard().HA)
	assert.NotEqual(t, alpha.Yard().SID, restarted.Yard().SID)
	again, err := restarted.AddYard("beta")
	require.NoError(t, err)

	want := body.Body{"content": strings.Repeat("c", 100000)}
	pages, err := restarted.PackTx(stack.TxMsg{Body: want}, again)
	require.NoError(t, err)
	for _, p := range pages {
		beta.ProcessRx(stack.Wire{Data: p, Addr: from})
	}
	assert.Zero(t, beta.Stats.Get(stack.StatDuplicateSegment))
	assert.Equal(t, uint64(1), beta.Stats.Get(stack.StatStaleBook))
	assert.Equal(t, 1, beta.done.Len())

	require.Equal(t, 2, beta.RxMsgs.Len())
	beta.RxMsgs.Pop()
	m, _ := beta.RxMsgs.Pop()
	assert.Equal(t, want, m.Body)
}
