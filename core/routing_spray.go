// SPDX-FileCopyrightText: 2019 Markus Sommer
// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/cboring"
	"github.com/n7proto/dtnd/bundle"
	"github.com/n7proto/dtnd/cla"
)

// SprayConfig configures the initial copy count handed out by either spray
// variant.
type SprayConfig struct {
	// Multiplicity is the number of copies of a bundle allotted at origin.
	Multiplicity uint64
}

// copyLedger tracks, per bundle, which peers already hold a copy and how
// many further copies remain to be handed out. Both spray variants share
// this bookkeeping shape; they differ only in how much they give away per
// handoff.
type copyLedger struct {
	seen      []bundle.EndpointID
	remaining uint64
}

// hasSeen reports whether eid is already recorded as holding a copy.
func (l copyLedger) hasSeen(eid bundle.EndpointID) bool {
	for _, seen := range l.seen {
		if seen == eid {
			return true
		}
	}
	return false
}

// forget removes a peer from the seen list, used when a transfer fails and
// the copy should be considered undelivered.
func (l *copyLedger) forget(eid bundle.EndpointID) {
	for i, seen := range l.seen {
		if seen == eid {
			l.seen = append(l.seen[:i], l.seen[i+1:]...)
			return
		}
	}
}

// ledgerStore is a concurrency-safe map of per-bundle copyLedgers, shared by
// both SprayAndWait and BinarySpray.
type ledgerStore struct {
	mu      sync.RWMutex
	ledgers map[bundle.BundleID]copyLedger
}

func newLedgerStore() *ledgerStore {
	return &ledgerStore{ledgers: make(map[bundle.BundleID]copyLedger)}
}

func (s *ledgerStore) get(id bundle.BundleID) (copyLedger, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.ledgers[id]
	return l, ok
}

func (s *ledgerStore) put(id bundle.BundleID, l copyLedger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgers[id] = l
}

// purgeExpired drops ledger entries for bundles no longer held in the store.
func (s *ledgerStore) purgeExpired(c *Core) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.ledgers {
		if !c.store.KnowsBundle(id) {
			delete(s.ledgers, id)
		}
	}
}

// SprayAndWait is the vanilla Spray-and-Wait strategy: the originator alone
// distributes Multiplicity copies, one per contacted peer, until exhausted.
type SprayAndWait struct {
	c       *Core
	copies  uint64
	ledgers *ledgerStore
}

// NewSprayAndWait builds a SprayAndWait strategy and schedules its ledger GC.
func NewSprayAndWait(c *Core, config SprayConfig) *SprayAndWait {
	log.WithField("multiplicity", config.Multiplicity).Debug("spray-and-wait: initialised")

	sw := &SprayAndWait{c: c, copies: config.Multiplicity, ledgers: newLedgerStore()}

	if err := c.cron.Register("spray_and_wait_gc", sw.GarbageCollect, time.Second*60); err != nil {
		log.WithError(err).Warn("spray-and-wait: failed to register gc cron")
	}

	return sw
}

// GarbageCollect drops bookkeeping for bundles no longer in the store.
func (sw *SprayAndWait) GarbageCollect() {
	sw.ledgers.purgeExpired(sw.c)
}

// NotifyIncoming seeds the ledger: full multiplicity for self-originated
// bundles, a single relay copy for anything arriving from elsewhere.
func (sw *SprayAndWait) NotifyIncoming(bp BundlePack) {
	bndl := bp.MustBundle()

	if sw.c.HasEndpoint(bndl.PrimaryBlock.SourceNode) {
		sw.ledgers.put(bp.Id, copyLedger{remaining: sw.copies})
		log.WithField("bundle", bp.ID()).Debug("spray-and-wait: seeded bundle originated locally")
		return
	}

	ledger := copyLedger{remaining: 1}
	if prev, ok := previousNodeOf(bndl); ok {
		ledger.seen = append(ledger.seen, prev)
	}
	sw.ledgers.put(bp.Id, ledger)

	log.WithField("bundle", bp.ID()).Debug("spray-and-wait: seeded bundle received from a peer")
}

// DispatchingAllowed never blocks dispatch; copy accounting happens in
// SenderForBundle instead.
func (*SprayAndWait) DispatchingAllowed(_ BundlePack) bool {
	return true
}

// SenderForBundle hands single copies to unseen peers until the remaining
// count drops below two, at which point the bundle waits for direct contact
// with its destination.
func (sw *SprayAndWait) SenderForBundle(bp BundlePack) (css []cla.ConvergenceSender, del bool) {
	ledger, ok := sw.ledgers.get(bp.Id)
	if !ok {
		log.WithField("bundle", bp.ID()).Warn("spray-and-wait: no ledger for bundle")
		return nil, false
	}

	if ledger.remaining < 2 {
		log.WithField("bundle", bp.ID()).Debug("spray-and-wait: out of copies, holding for direct contact")
		return nil, false
	}

	for _, cs := range sw.c.claManager.Sender() {
		if ledger.remaining < 2 {
			break
		}
		peer := cs.GetPeerEndpointID()
		if ledger.hasSeen(peer) {
			continue
		}

		css = append(css, cs)
		ledger.seen = append(ledger.seen, peer)
		ledger.remaining--
	}

	sw.ledgers.put(bp.Id, ledger)

	log.WithFields(log.Fields{
		"bundle":    bp.ID(),
		"senders":   css,
		"remaining": ledger.remaining,
	}).Debug("spray-and-wait: chose convergence senders")

	return css, false
}

// ReportFailure returns an unsent copy to the pool so it can be retried.
func (sw *SprayAndWait) ReportFailure(bp BundlePack, sender cla.ConvergenceSender) {
	ledger, ok := sw.ledgers.get(bp.Id)
	if !ok {
		log.WithField("bundle", bp.ID()).Warn("spray-and-wait: no ledger for failed bundle")
		return
	}

	ledger.remaining++
	ledger.forget(sender.GetPeerEndpointID())
	sw.ledgers.put(bp.Id, ledger)

	log.WithFields(log.Fields{"bundle": bp.ID(), "bad_cla": sender}).Debug("spray-and-wait: reclaimed copy after failure")
}

func (*SprayAndWait) ReportPeerAppeared(_ cla.Convergence) {}

func (*SprayAndWait) ReportPeerDisappeared(_ cla.Convergence) {}

func (*SprayAndWait) String() string { return "spray" }

// BinarySpray is the binary variant of Spray-and-Wait: each relay keeps
// ceil(copies/2) and hands floor(copies/2) to the next peer, carrying the
// remaining-copy count on the bundle itself via a BinarySprayBlock.
type BinarySpray struct {
	c       *Core
	copies  uint64
	ledgers *ledgerStore
}

// NewBinarySpray builds a BinarySpray strategy, registering the
// BinarySprayBlock extension type and scheduling ledger GC.
func NewBinarySpray(c *Core, config SprayConfig) *BinarySpray {
	log.WithField("multiplicity", config.Multiplicity).Debug("binary-spray: initialised")

	if mgr := bundle.GetExtensionBlockManager(); !mgr.IsKnown(ExtBlockTypeBinarySprayBlock) {
		_ = mgr.Register(NewBinarySprayBlock(0))
	}

	bs := &BinarySpray{c: c, copies: config.Multiplicity, ledgers: newLedgerStore()}

	if err := c.cron.Register("binary_spray_gc", bs.GarbageCollect, time.Second*60); err != nil {
		log.WithError(err).Warn("binary-spray: failed to register gc cron")
	}

	return bs
}

// GarbageCollect drops bookkeeping for bundles no longer in the store.
func (bs *BinarySpray) GarbageCollect() {
	bs.ledgers.purgeExpired(bs.c)
}

// NotifyIncoming reads the carried BinarySprayBlock's remaining-copy count
// when present (a bundle arriving from a peer), or seeds full multiplicity
// for a bundle this node originates.
func (bs *BinarySpray) NotifyIncoming(bp BundlePack) {
	bndl := bp.MustBundle()

	if block, err := bndl.ExtensionBlock(ExtBlockTypeBinarySprayBlock); err == nil {
		ledger := copyLedger{remaining: block.Value.(*BinarySprayBlock).RemainingCopies()}
		if prev, ok := previousNodeOf(bndl); ok {
			ledger.seen = append(ledger.seen, prev)
		}
		bs.ledgers.put(bp.Id, ledger)

		log.WithFields(log.Fields{"bundle": bp.ID(), "remaining": ledger.remaining}).
			Debug("binary-spray: seeded bundle from carried copy count")
		return
	}

	bs.ledgers.put(bp.Id, copyLedger{remaining: bs.copies})
	log.WithField("bundle", bp.ID()).Debug("binary-spray: seeded bundle originated locally")
}

// DispatchingAllowed never blocks dispatch; copy accounting happens in
// SenderForBundle instead.
func (*BinarySpray) DispatchingAllowed(_ BundlePack) bool {
	return true
}

// SenderForBundle splits the remaining copies with a single unseen peer,
// halving what's kept locally and stamping the handed-off half onto the
// bundle's BinarySprayBlock.
func (bs *BinarySpray) SenderForBundle(bp BundlePack) (css []cla.ConvergenceSender, del bool) {
	ledger, ok := bs.ledgers.get(bp.Id)
	if !ok {
		log.WithField("bundle", bp.ID()).Warn("binary-spray: no ledger for bundle")
		return nil, false
	}

	if ledger.remaining < 2 {
		log.WithField("bundle", bp.ID()).Debug("binary-spray: out of copies, holding for direct contact")
		return nil, false
	}

	for _, cs := range bs.c.claManager.Sender() {
		peer := cs.GetPeerEndpointID()
		if ledger.hasSeen(peer) {
			continue
		}

		css = append(css, cs)
		ledger.seen = append(ledger.seen, peer)

		handoff := ledger.remaining / 2
		ledger.remaining -= handoff
		bs.stampCopyCount(bp, handoff)

		// one peer per contact in the binary variant
		break
	}

	bs.ledgers.put(bp.Id, ledger)

	log.WithFields(log.Fields{
		"bundle":    bp.ID(),
		"senders":   css,
		"remaining": ledger.remaining,
	}).Debug("binary-spray: chose convergence sender")

	return css, false
}

// stampCopyCount writes handoff into the bundle's BinarySprayBlock, adding
// one if the bundle didn't carry it yet.
func (bs *BinarySpray) stampCopyCount(bp BundlePack, handoff uint64) {
	bndl := bp.MustBundle()
	if block, err := bndl.ExtensionBlock(ExtBlockTypeBinarySprayBlock); err == nil {
		block.Value.(*BinarySprayBlock).SetCopies(handoff)
		return
	}
	bndl.AddExtensionBlock(bundle.NewCanonicalBlock(0, 0, NewBinarySprayBlock(handoff)))
}

// ReportFailure folds the undelivered half back into the local ledger and
// the bundle's carried copy count.
func (bs *BinarySpray) ReportFailure(bp BundlePack, sender cla.ConvergenceSender) {
	block, err := bp.MustBundle().ExtensionBlock(ExtBlockTypeBinarySprayBlock)
	if err != nil {
		log.WithField("bundle", bp.ID()).Warn("binary-spray: bundle carries no copy-count block")
		return
	}

	ledger, ok := bs.ledgers.get(bp.Id)
	if !ok {
		log.WithFields(log.Fields{"bundle": bp.ID(), "bad_cla": sender}).Warn("binary-spray: no ledger for failed bundle")
		return
	}

	carried := block.Value.(*BinarySprayBlock)
	carried.SetCopies(ledger.remaining + carried.RemainingCopies())
	ledger.forget(sender.GetPeerEndpointID())
	bs.ledgers.put(bp.Id, ledger)

	log.WithFields(log.Fields{"bundle": bp.ID(), "bad_cla": sender}).Debug("binary-spray: folded copy count back after failure")
}

func (*BinarySpray) ReportPeerAppeared(_ cla.Convergence) {}

func (*BinarySpray) ReportPeerDisappeared(_ cla.Convergence) {}

func (*BinarySpray) String() string { return "binary_spray" }

// ExtBlockTypeBinarySprayBlock is the canonical-block type code carrying a
// BinarySpray bundle's remaining-copy count between hops.
const ExtBlockTypeBinarySprayBlock uint64 = 192

// BinarySprayBlock is a single varint: the number of copies left to
// distribute for the bundle it's attached to.
type BinarySprayBlock uint64

// NewBinarySprayBlock constructs a BinarySprayBlock carrying copies.
func NewBinarySprayBlock(copies uint64) *BinarySprayBlock {
	b := BinarySprayBlock(copies)
	return &b
}

func (bsb *BinarySprayBlock) BlockTypeCode() uint64 {
	return ExtBlockTypeBinarySprayBlock
}

func (*BinarySprayBlock) CheckValid() error {
	return nil
}

func (bsb *BinarySprayBlock) MarshalCbor(w io.Writer) error {
	return cboring.WriteUInt(uint64(*bsb), w)
}

func (bsb *BinarySprayBlock) UnmarshalCbor(r io.Reader) error {
	us, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	*bsb = BinarySprayBlock(us)
	return nil
}

func (bsb *BinarySprayBlock) RemainingCopies() uint64 {
	return uint64(*bsb)
}

func (bsb *BinarySprayBlock) SetCopies(newValue uint64) {
	*bsb = BinarySprayBlock(newValue)
}
