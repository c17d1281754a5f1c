package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/n7proto/dtnd/bundle"
	"github.com/timshannon/badgerhold"
)

const (
	dirBadger string = "db"
	dirBundle string = "bndl"
)

type Store struct {
	bh *badgerhold.Store

	badgerDir string
	bundleDir string
}

func NewStore(dir string) (s *Store, err error) {
	badgerDir := path.Join(dir, dirBadger)
	bundleDir := path.Join(dir, dirBundle)

	opts := badgerhold.DefaultOptions
	opts.Dir = badgerDir
	opts.ValueDir = badgerDir

	if dirErr := os.MkdirAll(badgerDir, 0700); dirErr != nil {
		err = dirErr
		return
	}
	if dirErr := os.MkdirAll(bundleDir, 0700); dirErr != nil {
		err = dirErr
		return
	}

	if bh, bhErr := badgerhold.Open(opts); bhErr != nil {
		err = bhErr
	} else {
		s = &Store{
			bh: bh,

			badgerDir: badgerDir,
			bundleDir: bundleDir,
		}
	}
	return
}

func (s *Store) Close() error {
	return s.bh.Close()
}

// Push a new/received Bundle to the Store.
func (s *Store) Push(b bundle.Bundle) error {
	bi := NewBundleItem(b, s.bundleDir)

	if biStore, err := s.QueryId(b.ID()); err != nil {
		log.WithFields(log.Fields{
			"bundle": b.ID().String(),
		}).Info("Bundle ID is unknown, inserting BundleItem")

		if err := bi.Parts[0].storeBundle(b); err != nil {
			return err
		}

		return s.bh.Insert(bi.Id, bi)
	} else if bi.Fragmented {
		if !biStore.Fragmented {
			log.WithFields(log.Fields{
				"bundle": b.ID().String(),
			}).Debug("Received bundle fragment, whole bundle is already stored")
			return nil
		}

		knownFragment := false
		compPart := bi.Parts[0]
		for _, part := range biStore.Parts {
			if part.FragmentOffset == compPart.FragmentOffset &&
				part.TotalDataLength == compPart.TotalDataLength {
				knownFragment = true
				break
			}
		}

		if knownFragment {
			log.WithFields(log.Fields{
				"bundle": b.ID().String(),
			}).Debug("Received bundle fragment, which is already stored")
			return nil
		} else {
			log.WithFields(log.Fields{
				"bundle": b.ID().String(),
			}).Info("Received new bundle fragment, updating BundleItem")

			if err := compPart.storeBundle(b); err != nil {
				return err
			}

			biStore.Parts = append(biStore.Parts, compPart)
			return s.bh.Update(biStore.Id, biStore)
		}
	} else {
		log.WithFields(log.Fields{
			"bundle": b.ID().String(),
		}).Debug("Bundle ID is known, ignoring push")

		return nil
	}
}

// Update an existing BundleItem.
func (s *Store) Update(bi BundleItem) error {
	log.WithFields(log.Fields{
		"bundle": bi.Id,
	}).Debug("Store updates BundleItem")

	return s.bh.Update(bi.Id, bi)
}

// Delete a BundleItem, identified by its scrubbed BundleID, and its serialized Bundle parts.
func (s *Store) Delete(bid bundle.BundleID) error {
	if bi, err := s.QueryId(bid); err == nil {
		log.WithFields(log.Fields{
			"bundle": bid,
		}).Info("Store deletes BundleItem")

		for _, bp := range bi.Parts {
			if err := bp.deleteBundle(); err != nil {
				log.WithFields(log.Fields{
					"bundle": bid,
					"file":   bp.Filename,
					"error":  err,
				}).Warn("Failed to delete BundlePart")
			}
		}

		return s.bh.Delete(bi.Id, BundleItem{})
	}

	return nil
}

// DeleteExpired removes all Bundles whose Expires timestamp is in the past.
func (s *Store) DeleteExpired() {
	var bis []BundleItem
	if err := s.bh.Find(&bis, badgerhold.Where("Expires").Lt(time.Now())); err != nil {
		log.WithError(err).Warn("Failed to get expired Bundles")
		return
	}

	for _, bi := range bis {
		logger := log.WithField("bundle", bi.Id)
		if err := s.Delete(bi.BId); err != nil {
			logger.WithError(err).Warn("Failed to delete expired Bundle")
		} else {
			logger.Info("Deleted expired Bundle")
		}
	}
}

// QueryId fetches the BundleItem for the requested BundleID.
func (s *Store) QueryId(bid bundle.BundleID) (bi BundleItem, err error) {
	err = s.bh.Get(bid.Scrub().String(), &bi)
	return
}

// QueryByItemId fetches the BundleItem stored under the given scrubbed
// BundleID string representation, as used by pull-mode CLAs which address
// bundles by their Store key rather than by a decoded BundleID.
func (s *Store) QueryByItemId(id string) (bi BundleItem, err error) {
	err = s.bh.Get(id, &bi)
	return
}

// QueryPending fetches all pending BundleItems.
func (s *Store) QueryPending() (bis []BundleItem, err error) {
	err = s.bh.Find(&bis, badgerhold.Where("Pending").Eq(true))
	return
}

// KnowsBundle reports whether a BundleItem for the given BundleID is known to this Store.
func (s *Store) KnowsBundle(bid bundle.BundleID) bool {
	_, err := s.QueryId(bid)
	return err != badgerhold.ErrNotFound
}

// Digest returns a stable hash over the sorted set of non-deleted BundleItem
// IDs currently held by this Store, for use by pull-mode CLAs to detect
// whether a peer's holdings have changed.
func (s *Store) Digest() (digest string, err error) {
	var bis []BundleItem
	if err = s.bh.Find(&bis, badgerhold.Where("Id").Ne("")); err != nil {
		return
	}

	ids := make([]string, len(bis))
	for i, bi := range bis {
		ids[i] = bi.Id
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}

	digest = hex.EncodeToString(h.Sum(nil))
	return
}

// KnownIds returns the sorted set of non-deleted BundleItem IDs currently
// held by this Store.
func (s *Store) KnownIds() (ids []string, err error) {
	var bis []BundleItem
	if err = s.bh.Find(&bis, badgerhold.Where("Id").Ne("")); err != nil {
		return
	}

	ids = make([]string, len(bis))
	for i, bi := range bis {
		ids[i] = bi.Id
	}
	sort.Strings(ids)
	return
}
