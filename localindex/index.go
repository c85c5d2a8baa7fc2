// Package localindex is the per-peer local image index: a mapping
// from image_id to file path plus the set of images this peer has
// shared out, rebuilt by scanning the peer's image directory. spec.md
// §5 names it ("Local image index (per peer). Single-writer; rebuilt
// on directory scan.") without specifying storage; we back it with an
// embedded key-value store rather than inventing a bespoke format.
package localindex

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/model"
)

var imageKeyPrefix = []byte("img:")

// Entry is one indexed image: its path on disk and whether this peer
// is the owner (as opposed to holding a viewer's copy).
type Entry struct {
	Path    string `json:"path"`
	IsOwner bool   `json:"is_owner"`
}

// Index wraps a badger database scoped to one peer's data directory.
// All writes come from the single goroutine that owns a Rescan or
// Put call at a time; badger's own transactions provide the
// consistency, this type just narrows the API to what this domain
// needs.
type Index struct {
	db *badger.DB
}

// Open opens (creating if absent) the index database under dataDir.
func Open(dataDir string) (*Index, error) {
	opts := badger.DefaultOptions(filepath.Join(dataDir, "localindex")).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "localindex: opening badger db")
	}
	return &Index{db: db}, nil
}

func (idx *Index) Close() error {
	return idx.db.Close()
}

func key(id model.ImageID) []byte {
	return append(append([]byte{}, imageKeyPrefix...), id[:]...)
}

// Put records or updates one image's entry.
func (idx *Index) Put(id model.ImageID, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return idx.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(id), data)
	})
}

// Get looks up one image's entry.
func (idx *Index) Get(id model.ImageID) (Entry, bool, error) {
	var e Entry
	err := idx.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if err != nil {
		return Entry{}, false, err
	}
	if e.Path == "" {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Delete removes one image's entry, e.g. once its file is gone.
func (idx *Index) Delete(id model.ImageID) error {
	return idx.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(id))
	})
}

// All returns every indexed image, for directory-scan reconciliation
// and for building the local peer's DiscoverPeers image list.
func (idx *Index) All() (map[model.ImageID]Entry, error) {
	out := make(map[model.ImageID]Entry)
	err := idx.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(imageKeyPrefix); it.ValidForPrefix(imageKeyPrefix); it.Next() {
			item := it.Item()
			var id model.ImageID
			copy(id[:], item.Key()[len(imageKeyPrefix):])
			var e Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			out[id] = e
		}
		return nil
	})
	return out, err
}

// Rescan walks imageDir, computing an ID for every regular file found
// with the fingerprint callback (the owner argument is not used; the
// callback alone decides the ID) and reconciling the index: every
// scanned file is recorded with IsOwner set, and owner entries whose
// files are no longer found are dropped. It is the single writer for
// the duration of the call; callers must serialize concurrent scans.
func Rescan(idx *Index, imageDir, owner string, fingerprint func(path string) (model.ImageID, error)) error {
	seen := make(map[model.ImageID]struct{})

	entries, err := os.ReadDir(imageDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "localindex: reading image directory")
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		path := filepath.Join(imageDir, de.Name())
		id, err := fingerprint(path)
		if err != nil {
			continue // unreadable/non-image files are skipped, not fatal
		}
		seen[id] = struct{}{}
		if err := idx.Put(id, Entry{Path: path, IsOwner: true}); err != nil {
			return err
		}
	}

	existing, err := idx.All()
	if err != nil {
		return err
	}
	for id, e := range existing {
		if !e.IsOwner {
			continue // viewer copies aren't reconciled against imageDir
		}
		if _, ok := seen[id]; !ok {
			if err := idx.Delete(id); err != nil {
				return err
			}
		}
	}
	return nil
}
