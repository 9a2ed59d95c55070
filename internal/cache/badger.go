package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"time"

	"insights-backend/internal/record"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Badger is an embedded on-disk cache, entries expire through badger's own ttl.
type Badger struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenBadger opens a badger cache in dir, an empty dir keeps it in memory.
func OpenBadger(dir string, ttl time.Duration) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return NewBadger(db, ttl), nil
}

func NewBadger(db *badger.DB, ttl time.Duration) *Badger {
	return &Badger{db: db, ttl: ttl}
}

func (b *Badger) Get(ctx context.Context, key string) (record.Canonical, bool, error) {
	_, span := tracer.Start(ctx, "badger:get")
	defer span.End()
	span.SetAttributes(attribute.String("cache_key", key))

	var serialized []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		serialized, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return record.Canonical{}, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read item from badger")
		return record.Canonical{}, false, err
	}

	var rec record.Canonical
	err = gob.NewDecoder(bytes.NewReader(serialized)).Decode(&rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to deserialize cached item")
		return record.Canonical{}, false, err
	}
	return rec, true, nil
}

func (b *Badger) Set(ctx context.Context, key string, rec record.Canonical) error {
	_, span := tracer.Start(ctx, "badger:set")
	defer span.End()
	span.SetAttributes(attribute.String("cache_key", key))

	serialized := bytes.NewBuffer(nil)
	err := gob.NewEncoder(serialized).Encode(rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to serialize item")
		return err
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), serialized.Bytes())
		if b.ttl > 0 {
			entry = entry.WithTTL(b.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write item to badger")
		return err
	}
	return nil
}

func (b *Badger) Delete(ctx context.Context, key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (b *Badger) Close() error {
	return b.db.Close()
}
