// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Badger persists the ledger in an embedded badger store.
// Keys are "run:<namespace>:<timestamp>"; values hold the unix export time.
type Badger struct {
	db     *badger.DB
	prefix []byte
}

// OpenBadger opens the badger directory at path.
func OpenBadger(path, namespace string) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("ledger: badger open: %w", err)
	}
	return &Badger{db: db, prefix: []byte("run:" + namespace + ":")}, nil
}

func (b *Badger) key(ts string) []byte {
	k := make([]byte, 0, len(b.prefix)+len(ts))
	k = append(k, b.prefix...)
	return append(k, ts...)
}

func (b *Badger) Has(_ context.Context, ts string) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(b.key(ts))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: badger get: %w", err)
	}
	return true, nil
}

func (b *Badger) Add(_ context.Context, ts string) error {
	if ts == "" {
		return ErrEmptyTimestamp
	}
	val := []byte(fmt.Sprintf("%d", time.Now().Unix()))
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.key(ts), val)
	})
}

func (b *Badger) Len(_ context.Context) (int, error) {
	n := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = b.prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (b *Badger) Close() error { return b.db.Close() }
