// SPDX-FileCopyrightText: 2019 Markus Sommer
// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/n7proto/dtnd/bundle"
	"github.com/n7proto/dtnd/cla"
)

// SendBundle hands a locally originated bundle to the processing pipeline.
// The bundle's source must be dtn:none or an endpoint of this node, which is
// enforced later in transmit.
func (c *Core) SendBundle(bndl *bundle.Bundle) {
	if c.signPriv != nil {
		c.attachSignature(bndl)
	}

	bp := NewBundlePackFromBundle(*bndl, c.store)

	c.peers.touchByBundle(bp)
	c.routing.NotifyIncoming(bp)
	c.transmit(bp)
}

// attachSignature appends a SignatureBlock to an outbound bundle when the
// Core was configured with a private key.
func (c *Core) attachSignature(bndl *bundle.Bundle) {
	sb, err := bundle.NewSignatureBlock(*bndl, c.signPriv)
	if err != nil {
		log.WithField("bundle", bndl.ID()).WithError(err).Error("signature block creation failed, continuing unsigned")
		return
	}

	cb := bundle.NewCanonicalBlock(0, bundle.ReplicateBlock|bundle.DeleteBundle, sb)
	cb.SetCRCType(bundle.CRC32)
	bndl.AddExtensionBlock(cb)

	log.WithField("bundle", bndl.ID()).Info("attached signature to outgoing bundle")
}

// transmit begins forwarding an outbound BundlePack, rejecting it if its
// source does not belong to this node.
func (c *Core) transmit(bp BundlePack) {
	log.WithField("bundle", bp.ID()).Info("transmission requested")

	c.idKeeper.update(bp.MustBundle())

	bp.AddConstraint(DispatchPending)
	_ = bp.Sync()

	src := bp.MustBundle().PrimaryBlock.SourceNode
	if src != bundle.DtnNone() && !c.HasEndpoint(src) {
		log.WithFields(log.Fields{
			"bundle": bp.ID(),
			"source": src,
		}).Info("outbound bundle's source belongs to neither dtn:none nor this node")

		c.bundleDeletion(bp, bundle.NoInformation)
		return
	}

	c.dispatching(bp)
}

// receive handles a freshly arrived BundlePack from a convergence layer.
func (c *Core) receive(bp BundlePack) {
	log.WithField("bundle", bp.ID()).Debug("bundle received")

	if len(bp.Constraints) > 0 {
		// Already known; the stored copy must not be re-deleted here.
		log.WithField("bundle", bp.ID()).Debug("duplicate of an already-stored bundle, ignoring")
		return
	}

	log.WithField("bundle", bp.ID()).Info("processing freshly received bundle")

	bp.AddConstraint(DispatchPending)
	_ = bp.Sync()

	if bp.MustBundle().PrimaryBlock.BundleControlFlags.Has(bundle.StatusRequestReception) {
		c.SendStatusReport(bp, bundle.ReceivedBundle, bundle.NoInformation)
	}

	if !c.sanitizeUnknownBlocks(bp) {
		return
	}

	c.peers.touchByBundle(bp)
	c.routing.NotifyIncoming(bp)

	c.dispatching(bp)
}

// sanitizeUnknownBlocks walks a bundle's canonical blocks back to front,
// acting on any block whose type is not registered with the
// ExtensionBlockManager. It returns false if the bundle was deleted as a
// consequence (the caller must stop processing in that case).
func (c *Core) sanitizeUnknownBlocks(bp BundlePack) bool {
	bndl := bp.MustBundle()
	ebm := bundle.GetExtensionBlockManager()

	for i := len(bndl.CanonicalBlocks) - 1; i >= 0; i-- {
		cb := &bndl.CanonicalBlocks[i]
		if ebm.IsKnown(cb.BlockTypeCode()) {
			continue
		}

		logger := log.WithFields(log.Fields{
			"bundle": bp.ID(),
			"number": i,
			"type":   cb.BlockTypeCode(),
		})
		logger.Warn("canonical block's type is unregistered")

		if cb.BlockControlFlags.Has(bundle.StatusReportBlock) {
			logger.Info("unknown block requested status reporting")
			c.SendStatusReport(bp, bundle.ReceivedBundle, bundle.BlockUnintelligible)
		}

		if cb.BlockControlFlags.Has(bundle.DeleteBundle) {
			logger.Info("unknown block requires whole-bundle deletion")
			c.bundleDeletion(bp, bundle.BlockUnintelligible)
			return false
		}

		if cb.BlockControlFlags.Has(bundle.RemoveBlock) {
			logger.Info("unknown block is being stripped from the bundle")
			bndl.CanonicalBlocks = append(bndl.CanonicalBlocks[:i], bndl.CanonicalBlocks[i+1:]...)
		}
	}

	return true
}

// dispatching consults the routing algorithm and either delivers the bundle
// locally or forwards it onward.
func (c *Core) dispatching(bp BundlePack) {
	log.WithField("bundle", bp.ID()).Info("dispatching bundle")

	if !c.routing.DispatchingAllowed(bp) {
		log.WithFields(log.Fields{
			"bundle":  bp.ID(),
			"routing": c.routing,
		}).Info("routing algorithm declined dispatching")
		return
	}

	bndl, err := bp.Bundle()
	if err != nil {
		log.WithFields(log.Fields{
			"bundle": bp.Id,
			"error":  err,
		}).Warn("bundle unavailable during dispatching")
		return
	}

	if c.HasEndpoint(bndl.PrimaryBlock.Destination) {
		c.localDelivery(bp)
	} else {
		c.forward(bp)
	}
}

// forward transmits a bundle pack towards its destination, either by a
// direct match among known senders or via the configured routing algorithm.
func (c *Core) forward(bp BundlePack) {
	log.WithField("bundle", bp.ID()).Info("forwarding bundle")

	bp.AddConstraint(ForwardPending)
	bp.RemoveConstraint(DispatchPending)
	_ = bp.Sync()

	if expired := c.bumpHopCount(bp); expired {
		return
	}

	if bp.MustBundle().PrimaryBlock.IsLifetimeExceeded() {
		log.WithFields(log.Fields{
			"bundle":  bp.ID(),
			"primary": bp.MustBundle().PrimaryBlock,
		}).Warn("primary block's lifetime exceeded")
		c.bundleDeletion(bp, bundle.LifetimeExpired)
		return
	}

	if age, err := bp.UpdateBundleAge(); err == nil && age >= bp.MustBundle().PrimaryBlock.Lifetime {
		log.WithField("bundle", bp.ID()).Warn("bundle age block exceeds lifetime")
		c.bundleDeletion(bp, bundle.LifetimeExpired)
		return
	}

	c.stampPreviousNode(bp)

	nodes, deleteAfterwards := c.resolveSenders(bp)
	sent := c.dispatchToSenders(bp, nodes)

	c.settleHopCount(bp)

	if !sent {
		log.WithField("bundle", bp.ID()).Info("no CLA accepted the bundle for forwarding")
		c.bundleContraindicated(bp)
		return
	}

	if bp.MustBundle().PrimaryBlock.BundleControlFlags.Has(bundle.StatusRequestForward) {
		c.SendStatusReport(bp, bundle.ForwardedBundle, bundle.NoInformation)
	}

	switch {
	case deleteAfterwards:
		bp.PurgeConstraints()
		_ = bp.Sync()
	case c.InspectAllBundles && bp.MustBundle().IsAdministrativeRecord():
		c.bundleContraindicated(bp)
		c.checkAdministrativeRecord(bp)
	default:
		c.bundleContraindicated(bp)
	}
}

// bumpHopCount increments a bundle's optional HopCountBlock and deletes the
// bundle if the limit is now exceeded, reporting whether that happened.
func (c *Core) bumpHopCount(bp BundlePack) (expired bool) {
	hcBlock, err := bp.MustBundle().ExtensionBlock(bundle.ExtBlockTypeHopCountBlock)
	if err != nil {
		return false
	}

	hc := hcBlock.Value.(*bundle.HopCountBlock)
	hc.Increment()
	hcBlock.Value = hc

	log.WithFields(log.Fields{
		"bundle": bp.ID(),
		"hops":   hc,
	}).Debug("hop count block incremented")

	if hc.IsExceeded() {
		log.WithFields(log.Fields{
			"bundle": bp.ID(),
			"hops":   hc,
		}).Info("hop count limit exceeded")
		c.bundleDeletion(bp, bundle.HopLimitExceeded)
		return true
	}

	return false
}

// settleHopCount decrements a HopCountBlock after a forwarding attempt,
// undoing the speculative increment applied by bumpHopCount.
func (c *Core) settleHopCount(bp BundlePack) {
	hcBlock, err := bp.MustBundle().ExtensionBlock(bundle.ExtBlockTypeHopCountBlock)
	if err != nil {
		return
	}

	hc := hcBlock.Value.(*bundle.HopCountBlock)
	hc.Decrement()
	hcBlock.Value = hc

	log.WithFields(log.Fields{
		"bundle": bp.ID(),
		"hops":   hc,
	}).Debug("hop count block restored")
}

// stampPreviousNode records this node as the bundle's most recent hop,
// replacing an existing PreviousNodeBlock or appending a fresh one.
func (c *Core) stampPreviousNode(bp BundlePack) {
	bndl := bp.MustBundle()

	if pnBlock, err := bndl.ExtensionBlock(bundle.ExtBlockTypePreviousNodeBlock); err == nil {
		prev := pnBlock.Value.(*bundle.PreviousNodeBlock).Endpoint()
		pnBlock.Value = bundle.NewPreviousNodeBlock(c.NodeId)

		log.WithFields(log.Fields{
			"bundle": bp.ID(),
			"from":   prev,
			"to":     c.NodeId,
		}).Debug("previous node block updated")
		return
	}

	bndl.AddExtensionBlock(bundle.NewCanonicalBlock(0, 0, bundle.NewPreviousNodeBlock(c.NodeId)))
}

// resolveSenders picks the ConvergenceSenders a bundle should be handed to,
// preferring a direct match to the destination over the routing algorithm's
// own selection.
func (c *Core) resolveSenders(bp BundlePack) (nodes []cla.ConvergenceSender, deleteAfterwards bool) {
	if direct := c.senderForDestination(bp.MustBundle().PrimaryBlock.Destination); direct != nil {
		return direct, true
	}
	return c.routing.SenderForBundle(bp)
}

// dispatchToSenders concurrently offers a bundle to every selected
// ConvergenceSender, reporting failures back to the routing algorithm, and
// returns whether at least one transmission succeeded.
func (c *Core) dispatchToSenders(bp BundlePack, nodes []cla.ConvergenceSender) bool {
	var wg sync.WaitGroup
	var mu sync.Mutex
	sent := false

	wg.Add(len(nodes))
	for _, node := range nodes {
		go func(node cla.ConvergenceSender) {
			defer wg.Done()

			logger := log.WithFields(log.Fields{"bundle": bp.ID(), "cla": node})

			if err := node.Send(bp.MustBundle()); err != nil {
				logger.WithError(err).Warn("sending to CLA failed")
				c.routing.ReportFailure(bp, node)
				return
			}

			logger.Info("sending to CLA succeeded")
			mu.Lock()
			sent = true
			mu.Unlock()
		}(node)
	}
	wg.Wait()

	return sent
}

// checkAdministrativeRecord decodes and inspects a bundle's payload as an
// administrative record, returning false on any parsing failure.
func (c *Core) checkAdministrativeRecord(bp BundlePack) bool {
	if !bp.MustBundle().IsAdministrativeRecord() {
		log.WithField("bundle", bp.ID()).Debug("bundle carries no administrative record")
		return false
	}

	payloadBlock, err := bp.MustBundle().PayloadBlock()
	if err != nil {
		log.WithFields(log.Fields{
			"bundle": bp.ID(),
			"error":  err,
		}).Warn("administrative-record bundle missing payload block")
		return false
	}

	data := payloadBlock.Value.(*bundle.PayloadBlock).Data()
	ar, err := bundle.NewAdministrativeRecordFromCbor(data)
	if err != nil {
		log.WithFields(log.Fields{
			"bundle": bp.ID(),
			"error":  err,
		}).Warn("administrative record failed to parse")
		return false
	}

	log.WithFields(log.Fields{
		"bundle": bp.ID(),
		"record": ar,
	}).Info("received administrative record")

	// Status reports are the only administrative record kind understood today.
	c.inspectStatusReport(bp, ar)

	return true
}

func (c *Core) inspectStatusReport(bp BundlePack, ar bundle.AdministrativeRecord) {
	if ar.RecordTypeCode() != bundle.ARTypeStatusReport {
		log.WithFields(log.Fields{
			"bundle": bp.ID(),
			"type":   ar.RecordTypeCode(),
		}).Warn("administrative record is not a status report")
		return
	}

	status := *ar.(*bundle.StatusReport)
	infos := status.StatusInformations()

	if len(infos) == 0 {
		log.WithFields(log.Fields{
			"bundle": bp.ID(),
			"record": ar,
		}).Warn("status report carries no status information")
		return
	}

	refItem, err := c.store.QueryId(status.RefBundle)
	if err != nil {
		log.WithFields(log.Fields{
			"bundle": bp.ID(),
			"report": status,
		}).Warn("status report references an unknown bundle")
		return
	}

	for _, info := range infos {
		logger := log.WithFields(log.Fields{
			"bundle":    bp.ID(),
			"report":    status,
			"reference": refItem.Id,
			"status":    info,
		})
		logger.Info("applying status report entry")

		switch info {
		case bundle.ReceivedBundle, bundle.ForwardedBundle, bundle.DeletedBundle:
			// no local action required

		case bundle.DeliveredBundle:
			if err := c.store.Delete(refItem.BId); err != nil {
				logger.WithError(err).Warn("failed to purge delivered bundle")
			} else {
				logger.Info("delivered bundle purged from store")
			}

		default:
			logger.Warn("status report carries an unrecognized status code")
		}
	}
}

// localDelivery hands a bundle destined for this node to its application
// agents.
func (c *Core) localDelivery(bp BundlePack) {
	log.WithField("bundle", bp.ID()).Info("bundle is addressed to this node")

	if bp.MustBundle().IsAdministrativeRecord() {
		if !c.checkAdministrativeRecord(bp) {
			c.bundleDeletion(bp, bundle.NoInformation)
			return
		}
	}

	bp.AddConstraint(LocalEndpoint)
	_ = bp.Sync()

	if err := c.agentManager.Deliver(bp); err != nil {
		log.WithField("bundle", bp.ID()).WithError(err).Warn("local delivery to application agent failed")
	}

	if bp.MustBundle().PrimaryBlock.BundleControlFlags.Has(bundle.StatusRequestDelivery) {
		c.SendStatusReport(bp, bundle.DeliveredBundle, bundle.NoInformation)
	}

	bp.PurgeConstraints()
	_ = bp.Sync()
}

func (c *Core) bundleContraindicated(bp BundlePack) {
	log.WithField("bundle", bp.ID()).Info("bundle flagged as contraindicated")
	bp.AddConstraint(Contraindicated)
	_ = bp.Sync()
}

func (c *Core) bundleDeletion(bp BundlePack, reason bundle.StatusReportReason) {
	if bp.MustBundle().PrimaryBlock.BundleControlFlags.Has(bundle.StatusRequestDeletion) {
		c.SendStatusReport(bp, bundle.DeletedBundle, reason)
	}

	bp.PurgeConstraints()
	_ = bp.Sync()

	log.WithField("bundle", bp.ID()).Info("bundle deleted")
}
