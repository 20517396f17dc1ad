package volume

import (
	"context"
	"encoding/binary"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/hupe1980/seqdb/internal/dberr"
)

// Bucket names of the key-value index.
var (
	BucketAccession = []byte("acc")
	BucketTaxID     = []byte("tax")
)

// kvIndex is the bbolt accession and taxid index of a volume.
type kvIndex struct {
	db      *bolt.DB
	cleanup func()
}

func openKV(path string, cleanup func()) (*kvIndex, error) {
	db, err := bolt.Open(path, 0o400, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		cleanup()
		return nil, err
	}
	return &kvIndex{db: db, cleanup: cleanup}, nil
}

func (x *kvIndex) get(bucket, key []byte) ([]int, error) {
	var oids []int
	err := x.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucket)
		if bkt == nil {
			return nil
		}
		v := bkt.Get(key)
		if len(v)%4 != 0 {
			return dberr.ErrCorrupt
		}
		for i := 0; i < len(v); i += 4 {
			oids = append(oids, int(binary.BigEndian.Uint32(v[i:])))
		}
		return nil
	})
	return oids, err
}

func (x *kvIndex) close() error {
	err := x.db.Close()
	x.cleanup()
	return err
}

// loadKV opens the key-value index on first use. v.mu must be held.
func (v *Volume) loadKV(ctx context.Context) (*kvIndex, error) {
	if v.kvDone {
		return v.kv, nil
	}
	name := v.file("kv")
	ok, err := v.a.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		v.kvDone = true
		return nil, nil
	}
	path, cleanup, err := v.a.LocalFile(ctx, name)
	if err != nil {
		return nil, err
	}
	kv, err := openKV(path, cleanup)
	if err != nil {
		return nil, dberr.FileAccess("open", name, err)
	}
	v.kv, v.kvDone = kv, true
	return kv, nil
}

// LookupAccession returns the local OIDs whose deflines carry acc. Matching
// is case-insensitive; an unversioned accession matches every version.
func (v *Volume) LookupAccession(ctx context.Context, acc string) ([]int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	kv, err := v.loadKV(ctx)
	if err != nil || kv == nil {
		return nil, err
	}
	oids, err := kv.get(BucketAccession, []byte(strings.ToLower(strings.TrimSpace(acc))))
	if err != nil {
		return nil, dberr.FileAccess("read", v.file("kv"), err)
	}
	return oids, nil
}

// LookupTaxID returns the local OIDs with the given taxonomy id.
func (v *Volume) LookupTaxID(ctx context.Context, taxID int) ([]int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	kv, err := v.loadKV(ctx)
	if err != nil || kv == nil {
		return nil, err
	}
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], uint32(taxID))
	oids, err := kv.get(BucketTaxID, key[:])
	if err != nil {
		return nil, dberr.FileAccess("read", v.file("kv"), err)
	}
	return oids, nil
}
