package lane

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/1ureka/raet/internal/keeping"
	"github.com/1ureka/raet/internal/lot"
)

// Ext is the socket file extension of a yard.
const Ext = ".uxd"

// ComputeHA returns the socket path of yard name on lane under dirpath.
func ComputeHA(dirpath, lane, name string) string {
	return filepath.Join(dirpath, lane+"."+name+Ext)
}

// ParseHA splits a yard socket path into its lane and yard names.
func ParseHA(ha string) (laneName, name string, err error) {
	base := filepath.Base(ha)
	stem, ok := strings.CutSuffix(base, Ext)
	if !ok {
		return "", "", fmt.Errorf("%w: %q lacks %s extension", ErrFraming, ha, Ext)
	}
	parts := strings.Split(stem, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q is not <lane>.<name>%s", ErrFraming, ha, Ext)
	}
	return parts[0], parts[1], nil
}

// LocalYard is the identity of a lane stack.
type LocalYard struct {
	lot.Lot
	Lane    string
	Dirpath string
	bids    *lot.Sequencer
}

// NewLocalYard builds a local yard whose host address is derived from
// dirpath, lane and name.
func NewLocalYard(uid uint32, name, laneName, dirpath string, sid uint32) (*LocalYard, error) {
	if !ValidName(name) || !ValidName(laneName) {
		return nil, fmt.Errorf("%w: bad lane %q or yard name %q", ErrFraming, laneName, name)
	}
	return &LocalYard{
		Lot:     lot.Lot{UID: uid, Name: name, HA: ComputeHA(dirpath, laneName, name), SID: sid},
		Lane:    laneName,
		Dirpath: dirpath,
		bids:    lot.NewSequencer(0),
	}, nil
}

// NextBI returns a fresh book id.
func (y *LocalYard) NextBI() uint32 { return y.bids.Next() }

// Record returns the persisted form of y.
func (y *LocalYard) Record() keeping.Record {
	return keeping.Record{UID: y.UID, Name: y.Name, HA: y.HA, SID: y.SID, Lane: y.Lane}
}

// RemoteYard is a peer of a lane stack.
type RemoteYard struct {
	lot  lot.Lot
	Lane string
	// RSID is the last session id seen from this yard.
	RSID  uint32
	books map[BookIndex]*RxBook
}

// NewRemoteYard builds a remote yard.
func NewRemoteYard(uid uint32, name, ha string) (*RemoteYard, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: bad yard name %q", ErrFraming, name)
	}
	laneName, _, err := ParseHA(ha)
	if err != nil {
		laneName = ""
	}
	return &RemoteYard{
		lot:   lot.Lot{UID: uid, Name: name, HA: ha},
		Lane:  laneName,
		books: make(map[BookIndex]*RxBook),
	}, nil
}

func (r *RemoteYard) Lot() *lot.Lot { return &r.lot }

// Record returns the persisted form of r.
func (r *RemoteYard) Record() keeping.Record {
	return keeping.Record{UID: r.lot.UID, Name: r.lot.Name, HA: r.lot.HA, RSID: r.RSID, Lane: r.Lane}
}

// Books returns the number of in-flight inbound paged messages.
func (r *RemoteYard) Books() int { return len(r.books) }

// Book returns the in-flight book at idx.
func (r *RemoteYard) Book(idx BookIndex) (*RxBook, bool) {
	b, ok := r.books[idx]
	return b, ok
}

func (r *RemoteYard) reapStale(si uint32) int {
	n := 0
	for idx := range r.books {
		if idx.SI != si {
			delete(r.books, idx)
			n++
		}
	}
	return n
}
