// Package keeping persists stack identity so a restarted stack resumes with
// the same uid, name, host address, keys and remotes.
package keeping

import (
	"errors"
	"maps"
	"sync"
)

// ErrKeeper wraps storage and decoding failures.
var ErrKeeper = errors.New("keeper")

// Record is the persisted state of one endpoint, local or remote.
//
// Key fields are hex. Sighex and Prihex are only set on the local record.
type Record struct {
	UID    uint32 `msgpack:"uid"`
	Name   string `msgpack:"name"`
	HA     string `msgpack:"ha"`
	SID    uint32 `msgpack:"sid"`
	RSID   uint32 `msgpack:"rsid,omitempty"`
	Sighex string `msgpack:"sighex,omitempty"`
	Prihex string `msgpack:"prihex,omitempty"`
	Verhex string `msgpack:"verhex,omitempty"`
	Pubhex string `msgpack:"pubhex,omitempty"`
	Lane   string `msgpack:"lane,omitempty"`
}

// Keeper loads and saves stack identity. Remotes are keyed by name.
type Keeper interface {
	LoadLocal() (Record, bool, error)
	DumpLocal(rec Record) error
	LoadAllRemotes() (map[string]Record, error)
	DumpRemote(rec Record) error
	ClearRemote(name string) error
	ClearAll() error
}

// MemKeeper keeps records in memory. Useful for tests and for stacks that
// should survive a rebuild within one process.
type MemKeeper struct {
	mu      sync.Mutex
	local   *Record
	remotes map[string]Record
}

var _ Keeper = (*MemKeeper)(nil)

// NewMemKeeper returns an empty keeper.
func NewMemKeeper() *MemKeeper {
	return &MemKeeper{remotes: make(map[string]Record)}
}

func (k *MemKeeper) LoadLocal() (Record, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.local == nil {
		return Record{}, false, nil
	}
	return *k.local, true, nil
}

func (k *MemKeeper) DumpLocal(rec Record) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.local = &rec
	return nil
}

func (k *MemKeeper) LoadAllRemotes() (map[string]Record, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return maps.Clone(k.remotes), nil
}

func (k *MemKeeper) DumpRemote(rec Record) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.remotes[rec.Name] = rec
	return nil
}

func (k *MemKeeper) ClearRemote(name string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.remotes, name)
	return nil
}

func (k *MemKeeper) ClearAll() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.local = nil
	clear(k.remotes)
	return nil
}
