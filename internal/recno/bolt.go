package recno

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("records")

// Bolt is a Store kept in a bbolt file. Every call runs in its own
// transaction, so a failed call leaves the records as they were.
type Bolt struct {
	db     *bolt.DB
	path   string
	last   int
	temp   bool
	closed bool
}

// OpenTemp creates a fresh bolt store at path. Any existing file is
// replaced and the file is removed again on Close.
func OpenTemp(path string) (*Bolt, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	b, err := openBolt(path)
	if err != nil {
		return nil, err
	}
	b.temp = true
	return b, nil
}

func openBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second, NoSync: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	b := &Bolt{db: db, path: path}
	err = db.Update(func(tx *bolt.Tx) error {
		bk, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		if k, _ := bk.Cursor().Last(); k != nil {
			b.last = int(binary.BigEndian.Uint64(k))
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return b, nil
}

func key(n int) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(n))
	return k[:]
}

func (b *Bolt) Path() string {
	return b.path
}

func (b *Bolt) Get(n int) ([]byte, error) {
	if b.closed {
		return nil, ErrClosed
	}
	if n < 1 || n > b.last {
		return nil, ErrNotFound
	}
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(key(n))
		if v == nil {
			return ErrNotFound
		}
		out = clone(v)
		return nil
	})
	if err != nil {
		return nil, wrapIO(err)
	}
	return out, nil
}

func (b *Bolt) Last() (int, error) {
	if b.closed {
		return 0, ErrClosed
	}
	return b.last, nil
}

func (b *Bolt) Put(n int, data []byte) error {
	if b.closed {
		return ErrClosed
	}
	if n < 1 || n > b.last+1 {
		return ErrNotFound
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(key(n), clone(data))
	})
	if err != nil {
		return wrapIO(err)
	}
	if n > b.last {
		b.last = n
	}
	return nil
}

func (b *Bolt) InsertBefore(n int, data []byte) error {
	if b.closed {
		return ErrClosed
	}
	if n < 1 || n > b.last+1 {
		return ErrNotFound
	}
	return b.insertAt(n, data)
}

func (b *Bolt) InsertAfter(n int, data []byte) error {
	if b.closed {
		return ErrClosed
	}
	if n < 0 || n > b.last {
		return ErrNotFound
	}
	return b.insertAt(n+1, data)
}

// insertAt shifts records n..last up by one and stores data as record n.
func (b *Bolt) insertAt(n int, data []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketName)
		for i := b.last; i >= n; i-- {
			v := clone(bk.Get(key(i)))
			if err := bk.Put(key(i+1), v); err != nil {
				return err
			}
		}
		return bk.Put(key(n), clone(data))
	})
	if err != nil {
		return wrapIO(err)
	}
	b.last++
	return nil
}

func (b *Bolt) Delete(n int) error {
	if b.closed {
		return ErrClosed
	}
	if n < 1 || n > b.last {
		return ErrNotFound
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketName)
		for i := n; i < b.last; i++ {
			v := clone(bk.Get(key(i + 1)))
			if err := bk.Put(key(i), v); err != nil {
				return err
			}
		}
		return bk.Delete(key(b.last))
	})
	if err != nil {
		return wrapIO(err)
	}
	b.last--
	return nil
}

func (b *Bolt) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	err := b.db.Close()
	if b.temp {
		if rerr := os.Remove(b.path); rerr != nil && !os.IsNotExist(rerr) && err == nil {
			err = rerr
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

func wrapIO(err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrIO, err)
}
