package keeping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keepers(t *testing.T) map[string]func() Keeper {
	return map[string]func() Keeper{
		"mem": func() Keeper { return NewMemKeeper() },
		"badger": func() Keeper {
			db, err := OpenBadger("")
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })
			return NewBadgerKeeper(db, "road")
		},
	}
}

func TestKeeperContract(t *testing.T) {
	for name, mk := range keepers(t) {
		t.Run(name, func(t *testing.T) {
			k := mk()

			_, ok, err := k.LoadLocal()
			require.NoError(t, err)
			assert.False(t, ok)

			local := Record{UID: 1, Name: "main", HA: "127.0.0.1:7530", SID: 4, Sighex: "aa", Prihex: "bb"}
			require.NoError(t, k.DumpLocal(local))
			got, ok, err := k.LoadLocal()
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, local, got)

			require.NoError(t, k.DumpRemote(Record{UID: 2, Name: "alpha", HA: "127.0.0.1:7531", RSID: 9}))
			require.NoError(t, k.DumpRemote(Record{UID: 3, Name: "beta", HA: "127.0.0.1:7532"}))
			require.NoError(t, k.DumpRemote(Record{UID: 2, Name: "alpha", HA: "127.0.0.1:7531", RSID: 10}))

			remotes, err := k.LoadAllRemotes()
			require.NoError(t, err)
			require.Len(t, remotes, 2)
			assert.Equal(t, uint32(10), remotes["alpha"].RSID)

			require.NoError(t, k.ClearRemote("beta"))
			remotes, err = k.LoadAllRemotes()
			require.NoError(t, err)
			assert.Len(t, remotes, 1)

			require.NoError(t, k.ClearAll())
			_, ok, err = k.LoadLocal()
			require.NoError(t, err)
			assert.False(t, ok)
			remotes, err = k.LoadAllRemotes()
			require.NoError(t, err)
			assert.Empty(t, remotes)
		})
	}
}

func TestBadgerPrefixesAreIsolated(t *testing.T) {
	db, err := OpenBadger("")
	require.NoError(t, err)
	defer db.Close()

	road := NewBadgerKeeper(db, "road")
	lane := NewBadgerKeeper(db, "lane")
	require.NoError(t, road.DumpRemote(Record{UID: 2, Name: "alpha"}))
	require.NoError(t, lane.DumpRemote(Record{UID: 2, Name: "alpha", Lane: "lane"}))
	require.NoError(t, road.ClearAll())

	remotes, err := lane.LoadAllRemotes()
	require.NoError(t, err)
	assert.Equal(t, "lane", remotes["alpha"].Lane)
}
