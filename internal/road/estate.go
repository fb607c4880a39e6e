package road

import (
	"github.com/1ureka/raet/internal/crypto"
	"github.com/1ureka/raet/internal/keeping"
	"github.com/1ureka/raet/internal/lot"
)

// LocalEstate is the identity of a road stack with its signing and
// encryption keys.
type LocalEstate struct {
	lot.Lot
	signer    *crypto.Signer
	privateer *crypto.Privateer
	tids      *lot.Sequencer
}

// NewLocalEstate builds a local estate. Empty keys are generated.
func NewLocalEstate(l lot.Lot, sigkey, prikey []byte) (*LocalEstate, error) {
	signer, err := crypto.NewSigner(sigkey)
	if err != nil {
		return nil, err
	}
	privateer, err := crypto.NewPrivateer(prikey)
	if err != nil {
		return nil, err
	}
	return &LocalEstate{Lot: l, signer: signer, privateer: privateer, tids: lot.NewSequencer(0)}, nil
}

func (e *LocalEstate) Signer() *crypto.Signer       { return e.signer }
func (e *LocalEstate) Privateer() *crypto.Privateer { return e.privateer }

// NextTI returns a fresh transaction id.
func (e *LocalEstate) NextTI() uint32 { return e.tids.Next() }

// Record returns the persisted form of e.
func (e *LocalEstate) Record() keeping.Record {
	return keeping.Record{
		UID:    e.UID,
		Name:   e.Name,
		HA:     e.HA,
		SID:    e.SID,
		Sighex: e.signer.KeyHex(),
		Prihex: e.privateer.KeyHex(),
		Verhex: e.signer.VerHex(),
		Pubhex: e.privateer.PubHex(),
	}
}

// RemoteEstate is a peer of a road stack.
type RemoteEstate struct {
	lot lot.Lot
	// RSID is the last session id seen from this remote; zero until the
	// first packet of a session arrives.
	RSID     uint32
	Verifier *crypto.Verifier
	Publican *crypto.Publican

	trays map[TrayIndex]*RxTray
}

// NewRemoteEstate builds a remote. Either key may be nil when the matching
// foot or coat kind is not in use.
func NewRemoteEstate(uid uint32, name, ha string, verkey, pubkey []byte) (*RemoteEstate, error) {
	r := &RemoteEstate{
		lot:   lot.Lot{UID: uid, Name: name, HA: ha},
		trays: make(map[TrayIndex]*RxTray),
	}
	if verkey != nil {
		v, err := crypto.NewVerifier(verkey)
		if err != nil {
			return nil, err
		}
		r.Verifier = v
	}
	if pubkey != nil {
		p, err := crypto.NewPublican(pubkey)
		if err != nil {
			return nil, err
		}
		r.Publican = p
	}
	return r, nil
}

// RemoteFromRecord rebuilds a remote from its persisted form. The session
// id is not restored.
func RemoteFromRecord(rec keeping.Record) (*RemoteEstate, error) {
	return NewRemoteEstate(rec.UID, rec.Name, rec.HA, hexOrNil(rec.Verhex), hexOrNil(rec.Pubhex))
}

func hexOrNil(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

func (r *RemoteEstate) Lot() *lot.Lot { return &r.lot }

// Record returns the persisted form of r.
func (r *RemoteEstate) Record() keeping.Record {
	rec := keeping.Record{UID: r.lot.UID, Name: r.lot.Name, HA: r.lot.HA, RSID: r.RSID}
	if r.Verifier != nil {
		rec.Verhex = r.Verifier.KeyHex()
	}
	if r.Publican != nil {
		rec.Pubhex = r.Publican.KeyHex()
	}
	return rec
}

// Trays returns the number of in-flight inbound segmented messages.
func (r *RemoteEstate) Trays() int { return len(r.trays) }

// Tray returns the in-flight tray at idx.
func (r *RemoteEstate) Tray(idx TrayIndex) (*RxTray, bool) {
	t, ok := r.trays[idx]
	return t, ok
}

// reapStale drops trays from any session other than si and returns how many
// went.
func (r *RemoteEstate) reapStale(si uint32) int {
	n := 0
	for idx := range r.trays {
		if idx.SI != si {
			delete(r.trays, idx)
			n++
		}
	}
	return n
}
