package storage

import (
	"crypto/sha1"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/n7proto/dtnd/bundle"
)

// BundleItem is a wrapper for meta data around a Bundle. The Store operates
// on BundleItems instead of Bundles.
type BundleItem struct {
	Id  string `badgerhold:"key"`
	BId bundle.BundleID

	Pending bool      `badgerholdIndex:"Pending"`
	Expires time.Time `badgerholdIndex:"Expires"`

	Fragmented bool
	Parts      []BundlePart

	Properties map[string]interface{}
}

// bundleParts loads each stored fragment/Bundle referenced by this BundleItem.
func (bi BundleItem) bundleParts() (parts []bundle.Bundle, err error) {
	parts = make([]bundle.Bundle, len(bi.Parts))
	for i, part := range bi.Parts {
		if parts[i], err = part.Load(); err != nil {
			return
		}
	}
	return
}

// Load returns the complete Bundle for this BundleItem, reassembling fragments if necessary.
func (bi BundleItem) Load() (b bundle.Bundle, err error) {
	parts, err := bi.bundleParts()
	if err != nil {
		return
	}

	if !bi.Fragmented {
		return parts[0], nil
	}
	return bundle.ReassembleFragments(parts)
}

// IsComplete reports whether all fragments required to Load this BundleItem are present.
func (bi BundleItem) IsComplete() bool {
	if !bi.Fragmented {
		return true
	}

	parts, err := bi.bundleParts()
	return err == nil && bundle.IsBundleReassemblable(parts)
}

// BundlePart links a BundleItem to a Bundle stored on disk, with optional
// fragmentation information.
type BundlePart struct {
	Filename string

	FragmentOffset  uint64
	TotalDataLength uint64
}

// storeBundle serializes a Bundle to this BundlePart's file.
func (bp BundlePart) storeBundle(b bundle.Bundle) error {
	f, err := os.OpenFile(bp.Filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	return b.WriteCbor(f)
}

// deleteBundle removes this BundlePart's serialized Bundle from disk.
func (bp BundlePart) deleteBundle() error {
	return os.Remove(bp.Filename)
}

// Load reads and decodes the Bundle stored in this BundlePart's file.
func (bp BundlePart) Load() (b bundle.Bundle, err error) {
	f, err := os.Open(bp.Filename)
	if err != nil {
		return
	}
	defer f.Close()

	return bundle.NewBundleFromCborReader(f)
}

// calcExpirationDate computes a Bundle's expiration time from its creation
// timestamp's DTN time (seconds) and its lifetime (milliseconds).
func calcExpirationDate(b bundle.Bundle) time.Time {
	// TODO: check Bundle Age Block for bundles with a zero creation timestamp
	return b.PrimaryBlock.CreationTimestamp.DtnTime().Time().Add(
		time.Duration(b.PrimaryBlock.Lifetime) * time.Millisecond)
}

// bundlePartPath returns a stable on-disk path for a BundleID's serialized Bundle.
func bundlePartPath(id bundle.BundleID, storagePath string) string {
	f := fmt.Sprintf("%x", sha1.Sum([]byte(id.String())))
	return path.Join(storagePath, f)
}

// NewBundleItem creates a new BundleItem for a Bundle, referencing its
// on-disk storage location but not yet writing it.
func NewBundleItem(b bundle.Bundle, storagePath string) (bi BundleItem) {
	bid := b.ID()

	bi = BundleItem{
		Id:  bid.Scrub().String(),
		BId: bid.Scrub(),

		Pending: false,
		Expires: calcExpirationDate(b),

		Fragmented: b.PrimaryBlock.HasFragmentation(),

		Properties: make(map[string]interface{}),
	}

	bp := BundlePart{
		Filename: bundlePartPath(bid, storagePath),

		FragmentOffset:  bid.FragmentOffset,
		TotalDataLength: bid.TotalDataLength,
	}

	bi.Parts = append(bi.Parts, bp)

	return
}
