package keeping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/1ureka/raet/internal/util"
)

// BadgerKeeper stores msgpack encoded records in a badger database. Several
// stacks can share one database under different prefixes.
//
// Keys are "<prefix>/local" and "<prefix>/remote/<name>".
type BadgerKeeper struct {
	db     *badger.DB
	prefix string
}

var _ Keeper = (*BadgerKeeper)(nil)

// OpenBadger opens a database at dir, or an in-memory one when dir is empty.
func OpenBadger(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", ErrKeeper, dir, err)
	}
	return db, nil
}

// NewBadgerKeeper returns a keeper over db for the stack named by prefix.
func NewBadgerKeeper(db *badger.DB, prefix string) *BadgerKeeper {
	return &BadgerKeeper{db: db, prefix: prefix}
}

func (k *BadgerKeeper) localKey() []byte { return []byte(k.prefix + "/local") }

func (k *BadgerKeeper) remotePrefix() string { return k.prefix + "/remote/" }

func (k *BadgerKeeper) LoadLocal() (Record, bool, error) {
	var rec Record
	err := k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k.localKey())
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: load local: %v", ErrKeeper, err)
	}
	return rec, true, nil
}

func (k *BadgerKeeper) DumpLocal(rec Record) error {
	return k.put(k.localKey(), rec)
}

func (k *BadgerKeeper) LoadAllRemotes() (map[string]Record, error) {
	out := make(map[string]Record)
	prefix := []byte(k.remotePrefix())
	err := k.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var rec Record
			if err := item.Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("record %s: %w", item.Key(), err)
			}
			out[rec.Name] = rec
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: load remotes: %v", ErrKeeper, err)
	}
	return out, nil
}

func (k *BadgerKeeper) DumpRemote(rec Record) error {
	return k.put([]byte(k.remotePrefix()+rec.Name), rec)
}

func (k *BadgerKeeper) ClearRemote(name string) error {
	err := k.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(k.remotePrefix() + name))
	})
	if err != nil {
		return fmt.Errorf("%w: clear remote %q: %v", ErrKeeper, name, err)
	}
	return nil
}

func (k *BadgerKeeper) ClearAll() error {
	prefix := []byte(k.prefix + "/")
	var keys [][]byte
	err := k.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err == nil {
		err = k.db.Update(func(txn *badger.Txn) error {
			for _, key := range keys {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err != nil {
		return fmt.Errorf("%w: clear %q: %v", ErrKeeper, k.prefix, err)
	}
	return nil
}

func (k *BadgerKeeper) put(key []byte, rec Record) error {
	val, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrKeeper, key, err)
	}
	err = k.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrKeeper, key, err)
	}
	return nil
}

// badgerLogger routes badger's own logging into ours, one level down so
// routine compaction chatter stays out of info output.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	util.LogError("badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	util.LogWarning("badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	util.LogDebug("badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	util.LogDebug("badger: "+strings.TrimSpace(format), args...)
}
