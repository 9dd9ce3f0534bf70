package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// CachedEntry mirrors book.BookEntry without importing the book package
// (which imports storage for LoadPolyglotCached), keeping the dependency
// one-directional. Move is the raw board.Move encoding.
type CachedEntry struct {
	Move   uint16
	Weight uint16
}

// BookCache persists decoded Polyglot opening-book entries in BadgerDB,
// keyed by a hash of the source book file's contents. Parsing a multi-
// megabyte Polyglot file is pure CPU work done once; the cache lets every
// later engine start skip straight to the decoded table.
type BookCache struct {
	db *badger.DB
}

// OpenBookCache opens (creating if absent) the on-disk book cache.
func OpenBookCache() (*BookCache, error) {
	dir, err := GetBookCacheDir()
	if err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open book cache: %w", err)
	}

	return &BookCache{db: db}, nil
}

// Close closes the underlying database.
func (c *BookCache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Get returns the decoded entries cached under contentHash, if present.
func (c *BookCache) Get(contentHash string) (map[uint64][]CachedEntry, bool, error) {
	var entries map[uint64][]CachedEntry

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(contentHash))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			var decodeErr error
			entries, decodeErr = decodeBookEntries(val)
			return decodeErr
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("read book cache: %w", err)
	}

	return entries, entries != nil, nil
}

// Put stores the decoded entries under contentHash, replacing any prior
// cache for that content.
func (c *BookCache) Put(contentHash string, entries map[uint64][]CachedEntry) error {
	data := encodeBookEntries(entries)

	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(contentHash), data)
	})
	if err != nil {
		return fmt.Errorf("write book cache: %w", err)
	}

	return nil
}

func cacheKey(contentHash string) []byte {
	return []byte("book:" + contentHash)
}

// encodeBookEntries serializes the position->entries map as a flat byte
// stream: key count, then per-key [zobrist key][entry count][entries...].
func encodeBookEntries(entries map[uint64][]CachedEntry) []byte {
	buf := make([]byte, 4, 64)
	binary.LittleEndian.PutUint32(buf, uint32(len(entries)))

	for key, list := range entries {
		keyBuf := make([]byte, 12)
		binary.LittleEndian.PutUint64(keyBuf[0:8], key)
		binary.LittleEndian.PutUint32(keyBuf[8:12], uint32(len(list)))
		buf = append(buf, keyBuf...)

		for _, e := range list {
			entryBuf := make([]byte, 4)
			binary.LittleEndian.PutUint16(entryBuf[0:2], e.Move)
			binary.LittleEndian.PutUint16(entryBuf[2:4], e.Weight)
			buf = append(buf, entryBuf...)
		}
	}

	return buf
}

func decodeBookEntries(data []byte) (map[uint64][]CachedEntry, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("decode book cache: truncated header")
	}

	numKeys := binary.LittleEndian.Uint32(data[0:4])
	offset := 4

	result := make(map[uint64][]CachedEntry, numKeys)

	for i := uint32(0); i < numKeys; i++ {
		if offset+12 > len(data) {
			return nil, fmt.Errorf("decode book cache: truncated key header")
		}
		key := binary.LittleEndian.Uint64(data[offset : offset+8])
		count := binary.LittleEndian.Uint32(data[offset+8 : offset+12])
		offset += 12

		list := make([]CachedEntry, 0, count)
		for j := uint32(0); j < count; j++ {
			if offset+4 > len(data) {
				return nil, fmt.Errorf("decode book cache: truncated entry")
			}
			move := binary.LittleEndian.Uint16(data[offset : offset+2])
			weight := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
			offset += 4
			list = append(list, CachedEntry{Move: move, Weight: weight})
		}
		result[key] = list
	}

	return result, nil
}
