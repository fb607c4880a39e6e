package stack

import (
	"errors"
	"fmt"
	"slices"

	"github.com/1ureka/raet/internal/lot"
)

// ErrRegistry is returned for duplicate or unknown uids, names or host
// addresses, and for identity mismatches.
var ErrRegistry = errors.New("registry")

// Remote is anything a stack can register as a peer.
type Remote interface {
	Lot() *lot.Lot
}

// Registry holds the remotes of one stack. Remotes live in a single arena
// keyed by uid; the name and host address views are secondary indexes that
// map to uids and are only ever changed together with the arena.
//
// Registry is owned by a single stack and needs no locking.
type Registry[R Remote] struct {
	local    *lot.Lot
	uniqueHA bool

	arena  map[uint32]R
	byName map[string]uint32
	byHA   map[string]uint32
}

// NewRegistry returns an empty registry for a stack whose own identity is
// local. When uniqueHA is set, host addresses must be unique too.
func NewRegistry[R Remote](local *lot.Lot, uniqueHA bool) *Registry[R] {
	return &Registry[R]{
		local:    local,
		uniqueHA: uniqueHA,
		arena:    make(map[uint32]R),
		byName:   make(map[string]uint32),
		byHA:     make(map[string]uint32),
	}
}

// Add registers r under its uid, name and host address.
func (g *Registry[R]) Add(r R) error {
	l := r.Lot()
	if l.UID == 0 {
		return fmt.Errorf("%w: uid 0 is reserved", ErrRegistry)
	}
	if l.UID == g.local.UID {
		return fmt.Errorf("%w: uid %d is the local uid", ErrRegistry, l.UID)
	}
	if _, ok := g.arena[l.UID]; ok {
		return fmt.Errorf("%w: duplicate uid %d", ErrRegistry, l.UID)
	}
	if err := g.checkName(l.Name); err != nil {
		return err
	}
	if err := g.checkHA(l.HA); err != nil {
		return err
	}
	g.arena[l.UID] = r
	g.byName[l.Name] = l.UID
	if g.uniqueHA {
		g.byHA[l.HA] = l.UID
	}
	return nil
}

// Remove unregisters r. The registered remote under r's uid must be r.
func (g *Registry[R]) Remove(r R) error {
	l := r.Lot()
	cur, ok := g.arena[l.UID]
	if !ok {
		return fmt.Errorf("%w: unknown uid %d", ErrRegistry, l.UID)
	}
	if cur.Lot() != l {
		return fmt.Errorf("%w: uid %d is registered to a different remote", ErrRegistry, l.UID)
	}
	delete(g.arena, l.UID)
	delete(g.byName, l.Name)
	if g.uniqueHA {
		delete(g.byHA, l.HA)
	}
	return nil
}

// Move gives a registered remote a new uid.
func (g *Registry[R]) Move(r R, uid uint32) error {
	l, err := g.registered(r)
	if err != nil {
		return err
	}
	if uid == l.UID {
		return nil
	}
	if uid == 0 || uid == g.local.UID {
		return fmt.Errorf("%w: cannot move to uid %d", ErrRegistry, uid)
	}
	if _, ok := g.arena[uid]; ok {
		return fmt.Errorf("%w: duplicate uid %d", ErrRegistry, uid)
	}
	delete(g.arena, l.UID)
	l.UID = uid
	g.arena[uid] = r
	g.byName[l.Name] = uid
	if g.uniqueHA {
		g.byHA[l.HA] = uid
	}
	return nil
}

// Rename gives a registered remote a new name.
func (g *Registry[R]) Rename(r R, name string) error {
	l, err := g.registered(r)
	if err != nil {
		return err
	}
	if name == l.Name {
		return nil
	}
	if err := g.checkName(name); err != nil {
		return err
	}
	delete(g.byName, l.Name)
	l.Name = name
	g.byName[name] = l.UID
	return nil
}

// Rehost gives a registered remote a new host address.
func (g *Registry[R]) Rehost(r R, ha string) error {
	l, err := g.registered(r)
	if err != nil {
		return err
	}
	if ha == l.HA {
		return nil
	}
	if err := g.checkHA(ha); err != nil {
		return err
	}
	if g.uniqueHA {
		delete(g.byHA, l.HA)
		g.byHA[ha] = l.UID
	}
	l.HA = ha
	return nil
}

// ByUID fetches a remote by uid.
func (g *Registry[R]) ByUID(uid uint32) (R, bool) {
	r, ok := g.arena[uid]
	return r, ok
}

// ByName fetches a remote by name.
func (g *Registry[R]) ByName(name string) (R, bool) {
	uid, ok := g.byName[name]
	if !ok {
		var zero R
		return zero, false
	}
	return g.ByUID(uid)
}

// ByHA fetches a remote by host address. Without a unique ha index the
// remote with the lowest uid wins.
func (g *Registry[R]) ByHA(ha string) (R, bool) {
	if g.uniqueHA {
		uid, ok := g.byHA[ha]
		if !ok {
			var zero R
			return zero, false
		}
		return g.ByUID(uid)
	}
	for _, r := range g.All() {
		if r.Lot().HA == ha {
			return r, true
		}
	}
	var zero R
	return zero, false
}

// All returns every remote ordered by uid.
func (g *Registry[R]) All() []R {
	uids := make([]uint32, 0, len(g.arena))
	for uid := range g.arena {
		uids = append(uids, uid)
	}
	slices.Sort(uids)
	out := make([]R, len(uids))
	for i, uid := range uids {
		out[i] = g.arena[uid]
	}
	return out
}

// Len returns the number of registered remotes.
func (g *Registry[R]) Len() int { return len(g.arena) }

// Check verifies that every index view covers exactly the arena.
func (g *Registry[R]) Check() error {
	if len(g.byName) != len(g.arena) {
		return fmt.Errorf("%w: %d names for %d remotes", ErrRegistry, len(g.byName), len(g.arena))
	}
	if g.uniqueHA && len(g.byHA) != len(g.arena) {
		return fmt.Errorf("%w: %d host addresses for %d remotes", ErrRegistry, len(g.byHA), len(g.arena))
	}
	for uid, r := range g.arena {
		l := r.Lot()
		if l.UID != uid {
			return fmt.Errorf("%w: remote %s filed under uid %d", ErrRegistry, l, uid)
		}
		if g.byName[l.Name] != uid {
			return fmt.Errorf("%w: name %q does not point at uid %d", ErrRegistry, l.Name, uid)
		}
		if g.uniqueHA && g.byHA[l.HA] != uid {
			return fmt.Errorf("%w: ha %q does not point at uid %d", ErrRegistry, l.HA, uid)
		}
	}
	return nil
}

func (g *Registry[R]) registered(r R) (*lot.Lot, error) {
	l := r.Lot()
	cur, ok := g.arena[l.UID]
	if !ok || cur.Lot() != l {
		return nil, fmt.Errorf("%w: remote %s is not registered", ErrRegistry, l)
	}
	return l, nil
}

func (g *Registry[R]) checkName(name string) error {
	if name == g.local.Name {
		return fmt.Errorf("%w: name %q is the local name", ErrRegistry, name)
	}
	if _, ok := g.byName[name]; ok {
		return fmt.Errorf("%w: duplicate name %q", ErrRegistry, name)
	}
	return nil
}

func (g *Registry[R]) checkHA(ha string) error {
	if !g.uniqueHA {
		return nil
	}
	if ha == g.local.HA {
		return fmt.Errorf("%w: ha %q is the local ha", ErrRegistry, ha)
	}
	if _, ok := g.byHA[ha]; ok {
		return fmt.Errorf("%w: duplicate ha %q", ErrRegistry, ha)
	}
	return nil
}
