package source

import (
	"context"
	"fmt"
	"github.com/rotblauer/tilestream/conceptual"
	"github.com/rotblauer/tilestream/content"
	"github.com/rotblauer/tilestream/params"
	"github.com/rotblauer/tilestream/types/tilenode"
	"go.etcd.io/bbolt"
	"os"
	"path/filepath"
	"time"
)

// BoltSource serves tiles from a bbolt database, one key per tile id.
type BoltSource struct {
	db      *bbolt.DB
	bucket  []byte
	decoder content.Decoder
}

func OpenBoltSource(config *params.BoltSourceConfig, decoder content.Decoder) (*BoltSource, error) {
	if config == nil {
		config = params.DefaultBoltSourceConfig()
	}
	if err := os.MkdirAll(filepath.Dir(config.Path), 0770); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(config.Path, 0660, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open tile db %s: %w", config.Path, err)
	}
	bucket := config.Bucket
	if len(bucket) == 0 {
		bucket = params.TilesBoltBucket
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	if decoder == nil {
		decoder = content.Decompress{}
	}
	return &BoltSource{db: db, bucket: bucket, decoder: decoder}, nil
}

func (s *BoltSource) FetchTile(ctx context.Context, id conceptual.TileID) (*tilenode.TileContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("%w: %s", tilenode.ErrTileNotFound, id)
		}
		// Values are only valid for the life of the transaction.
		raw = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.decoder.Decode(id, raw)
}

// Put stores raw tile bytes under id, replacing any previous value.
func (s *BoltSource) Put(id conceptual.TileID, raw []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(id), raw)
	})
}

func (s *BoltSource) Has(id conceptual.TileID) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		ok = tx.Bucket(s.bucket).Get([]byte(id)) != nil
		return nil
	})
	return ok, err
}

func (s *BoltSource) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(s.bucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *BoltSource) Close() error {
	return s.db.Close()
}
