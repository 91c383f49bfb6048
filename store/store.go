// Package store persists normalized tree fragments, keyed by their paths, in
// a Bolt database or in memory.
//
// Keys are Potassium-encoded paths. Values are Potassium fragments framed
// with a checksum and optionally zstd-compressed. A msgpack metadata document
// records the format version and the fingerprint of the schema the data was
// written with.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/andreyvit/bindom/dom"
	"github.com/andreyvit/bindom/potassium"
	"github.com/andreyvit/bindom/schema"
)

const (
	metaBucket      = "meta"
	fragmentsBucket = "fragments"
	metaKey         = "store"

	DefaultCompressAbove = 1024
)

type Options struct {
	Logger  *slog.Logger
	Verbose bool

	// Schema, when set, is fingerprinted into the store metadata.
	Schema *schema.Context

	// CompressAbove is the payload size above which values are compressed.
	// Zero means DefaultCompressAbove; negative disables compression.
	CompressAbove int

	IsTesting bool
	MmapSize  int
}

// Meta is the store metadata document.
type Meta struct {
	FormatVersion int       `msgpack:"v"`
	Fingerprint   uint64    `msgpack:"fp"`
	Created       time.Time `msgpack:"created"`
	Updated       time.Time `msgpack:"updated"`
}

type Store struct {
	st      storage
	vc      *valueCodec
	logger  *slog.Logger
	verbose bool
	meta    Meta

	ReadCount  atomic.Uint64
	WriteCount atomic.Uint64
}

// Open opens or creates a Bolt-backed store.
func Open(path string, opt Options) (*Store, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	s, err := open(&boltStorage{bdb: bdb}, opt)
	if err != nil {
		bdb.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory returns a transient store.
func OpenMemory(opt Options) (*Store, error) {
	return open(newMemStorage(), opt)
}

func open(st storage, opt Options) (*Store, error) {
	logger := opt.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	compressAbove := opt.CompressAbove
	if compressAbove == 0 {
		compressAbove = DefaultCompressAbove
	}
	vc, err := newValueCodec(compressAbove)
	if err != nil {
		return nil, err
	}
	s := &Store{
		st:      st,
		vc:      vc,
		logger:  logger,
		verbose: opt.Verbose,
	}
	err = s.write(func(tx storageTx) error {
		return s.prepare(tx, opt.Schema, time.Now())
	})
	if err != nil {
		vc.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) prepare(tx storageTx, sc *schema.Context, now time.Time) error {
	if _, err := tx.CreateBucket(fragmentsBucket); err != nil {
		return err
	}
	mb, err := tx.CreateBucket(metaBucket)
	if err != nil {
		return err
	}

	var meta Meta
	if raw := mb.Get([]byte(metaKey)); raw != nil {
		if err := msgpack.Unmarshal(raw, &meta); err != nil {
			return dataErrf(raw, 0, err, "failed to decode store metadata")
		}
		if meta.FormatVersion > valueFormatVerLatest {
			return fmt.Errorf("store: format version %d is newer than supported %d", meta.FormatVersion, valueFormatVerLatest)
		}
	} else {
		meta = Meta{FormatVersion: valueFormatVerLatest, Created: now}
	}

	changed := meta.Updated.IsZero()
	if sc != nil && sc.Fingerprint() != meta.Fingerprint {
		if meta.Fingerprint != 0 {
			s.logger.LogAttrs(context.Background(), slog.LevelWarn, "store: schema changed since last open",
				slog.String("old", fmt.Sprintf("%016x", meta.Fingerprint)),
				slog.String("new", fmt.Sprintf("%016x", sc.Fingerprint())),
				slog.Time("last_updated", meta.Updated))
		}
		meta.Fingerprint = sc.Fingerprint()
		changed = true
	}
	if changed {
		meta.Updated = now
		raw, err := msgpack.Marshal(&meta)
		if err != nil {
			return err
		}
		if err := mb.Put([]byte(metaKey), raw); err != nil {
			return err
		}
	}
	s.meta = meta
	return nil
}

// Meta returns the metadata as of opening the store.
func (s *Store) Meta() Meta { return s.meta }

func (s *Store) Close() error {
	err := s.st.Close()
	s.vc.Close()
	return err
}

func (s *Store) write(f func(tx storageTx) error) error {
	tx, err := s.st.BeginTx(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := f(tx); err != nil {
		return err
	}
	s.WriteCount.Add(1)
	return tx.Commit()
}

func (s *Store) read(f func(tx storageTx) error) error {
	tx, err := s.st.BeginTx(false)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	s.ReadCount.Add(1)
	return f(tx)
}

// Put stores the fragment n at path p, replacing any previous fragment there.
func (s *Store) Put(p dom.Path, n dom.Node) error {
	key, err := encodeKey(p)
	if err != nil {
		return fmt.Errorf("store: key for %v: %w", p, err)
	}
	payload, err := potassium.EncodeNode(n)
	if err != nil {
		return fmt.Errorf("store: encode %v: %w", p, err)
	}
	val := s.vc.encode(payload)
	if s.verbose {
		s.logger.LogAttrs(context.Background(), slog.LevelDebug, "store: put", slog.String("path", p.String()), slog.Int("payload", len(payload)), slog.Int("stored", len(val)))
	}
	return s.write(func(tx storageTx) error {
		return tx.Bucket(fragmentsBucket).Put(key, val)
	})
}

// Get returns the fragment stored at p, or an error matching ErrNotFound.
func (s *Store) Get(p dom.Path) (dom.Node, error) {
	key, err := encodeKey(p)
	if err != nil {
		return nil, fmt.Errorf("store: key for %v: %w", p, err)
	}
	var n dom.Node
	err = s.read(func(tx storageTx) error {
		raw := tx.Bucket(fragmentsBucket).Get(key)
		if raw == nil {
			return fmt.Errorf("store: %v: %w", p, ErrNotFound)
		}
		var err error
		n, err = s.decodeValue(raw)
		return err
	})
	return n, err
}

// decodeValue copies uncompressed payloads out of raw, which is only valid
// for the duration of the transaction.
func (s *Store) decodeValue(raw []byte) (dom.Node, error) {
	payload, flags, err := s.vc.decode(raw)
	if err != nil {
		return nil, err
	}
	if flags&vfZstd == 0 {
		payload = bytes.Clone(payload)
	}
	n, err := potassium.DecodeNode(payload)
	if err != nil {
		return nil, dataErrf(payload, 0, err, "invalid fragment")
	}
	return n, nil
}

// Delete removes the fragment at p. Deleting a missing fragment is not an
// error. Fragments stored under descendant paths are kept.
func (s *Store) Delete(p dom.Path) error {
	key, err := encodeKey(p)
	if err != nil {
		return fmt.Errorf("store: key for %v: %w", p, err)
	}
	return s.write(func(tx storageTx) error {
		return tx.Bucket(fragmentsBucket).Delete(key)
	})
}

// ErrStop can be returned from a Scan callback to end the scan early.
var ErrStop = errors.New("stop scan")

// Scan calls fn for the fragment at prefix and every fragment stored under
// it, in key order. Fragments are decoded lazily; a corrupted fragment ends
// the scan with an error.
func (s *Store) Scan(prefix dom.Path, fn func(p dom.Path, n dom.Node) error) error {
	kp, err := encodeKey(prefix)
	if err != nil {
		return fmt.Errorf("store: key for %v: %w", prefix, err)
	}
	err = s.read(func(tx storageTx) error {
		c := tx.Bucket(fragmentsBucket).Cursor()
		for k, v := c.Seek(kp); k != nil && bytes.HasPrefix(k, kp); k, v = c.Next() {
			p, err := decodeKey(k)
			if err != nil {
				return err
			}
			if !p.HasPrefix(prefix) {
				continue
			}
			n, err := s.decodeValue(v)
			if err != nil {
				return fmt.Errorf("store: %v: %w", p, err)
			}
			if err := fn(p, n); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

type Stats struct {
	Fragments  int
	DataSize   int64
	DataAlloc  int64
	TotalBytes int64
}

func (s *Store) Stats() (Stats, error) {
	var result Stats
	err := s.read(func(tx storageTx) error {
		bs := tx.Bucket(fragmentsBucket).Stats()
		result = Stats{
			Fragments:  bs.KeyN,
			DataSize:   bs.LeafInuse,
			DataAlloc:  bs.TotalAlloc(),
			TotalBytes: tx.Size(),
		}
		return nil
	})
	return result, err
}
