// SPDX-FileCopyrightText: 2019 Markus Sommer
// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	log "github.com/sirupsen/logrus"

	"github.com/n7proto/dtnd/bundle"
	"github.com/n7proto/dtnd/cla"
	"github.com/n7proto/dtnd/storage"
)

// epidemicAlgorithmKey names this strategy's slot in a BundleItem's
// Properties map, shared with filterCLAs as "routing/epidemic/sent".
const epidemicAlgorithmKey = "epidemic"

// epidemicDestinationKey remembers a bundle's original destination so
// DispatchingAllowed can short-circuit once it is locally addressed.
const epidemicDestinationKey = "routing/epidemic/destination"

// EpidemicRouting forwards every bundle to every reachable peer that has not
// already seen it, discovering "already seen" either by a PreviousNodeBlock
// on receipt or by a per-bundle record of CLAs already tried on send.
type EpidemicRouting struct {
	c *Core
}

// NewEpidemicRouting constructs an EpidemicRouting strategy bound to c.
func NewEpidemicRouting(c *Core) *EpidemicRouting {
	log.Debug("Initialised epidemic routing")
	return &EpidemicRouting{c: c}
}

// NotifyIncoming records the bundle's destination and, if present, marks the
// sender named in its PreviousNodeBlock as already having a copy so it is
// skipped on any later re-forward.
func (er *EpidemicRouting) NotifyIncoming(bp BundlePack) {
	bi, err := er.c.store.QueryId(bp.Id)
	if err != nil {
		log.WithError(err).Warn("epidemic: bundle not in store, ignoring")
		return
	}

	bndl := bp.MustBundle()

	if _, known := bi.Properties[epidemicDestinationKey]; !known {
		bi.Properties[epidemicDestinationKey] = bndl.PrimaryBlock.Destination
		er.saveBundleItem(bi)
	}

	prevNode, hasPrev := previousNodeOf(bndl)
	if !hasPrev {
		return
	}

	if containsEid(er.alreadySent(bi), prevNode) {
		return
	}

	log.WithFields(log.Fields{
		"bundle": bp.ID(),
		"eid":    prevNode,
	}).Debug("epidemic: marking previous-node hop as already delivered")

	bi.Properties[epidemicAlgorithmKey+"/sent"] = append(er.alreadySent(bi), prevNode)
	er.saveBundleItem(bi)
}

// previousNodeOf extracts the EndpointID of a bundle's PreviousNodeBlock, if any.
func previousNodeOf(bndl bundle.Bundle) (eid bundle.EndpointID, ok bool) {
	block, err := bndl.ExtensionBlock(bundle.ExtBlockTypePreviousNodeBlock)
	if err != nil {
		return bundle.EndpointID{}, false
	}
	return block.Value.(*bundle.PreviousNodeBlock).Endpoint(), true
}

// alreadySent returns the EndpointIDs this bundle is already known to have
// reached, per this strategy's bookkeeping key.
func (er *EpidemicRouting) alreadySent(bi storage.BundleItem) []bundle.EndpointID {
	sent, ok := bi.Properties[epidemicAlgorithmKey+"/sent"].([]bundle.EndpointID)
	if !ok {
		return nil
	}
	return sent
}

func containsEid(eids []bundle.EndpointID, target bundle.EndpointID) bool {
	for _, e := range eids {
		if e == target {
			return true
		}
	}
	return false
}

func (er *EpidemicRouting) saveBundleItem(bi storage.BundleItem) {
	if err := er.c.store.Update(bi); err != nil {
		log.WithError(err).Warn("epidemic: failed to persist bundle item update")
	}
}

// unseenSenders resolves the ConvergenceSenders this bundle has not yet been
// handed to, updating the sent-to record when persist is true.
func (er *EpidemicRouting) unseenSenders(bp BundlePack, persist bool) (css []cla.ConvergenceSender) {
	bi, err := er.c.store.QueryId(bp.Id)
	if err != nil {
		log.WithFields(log.Fields{"bundle": bp.ID(), "error": err}).Warn("epidemic: bundle not in store")
		return nil
	}

	css, sentEids := filterCLAs(bi, er.c.claManager.Sender(), epidemicAlgorithmKey)

	log.WithFields(log.Fields{
		"bundle": bp.ID(),
		"sent":   sentEids,
		"chosen": css,
	}).Debug("epidemic: resolved unseen convergence senders")

	if persist {
		bi.Properties[epidemicAlgorithmKey+"/sent"] = sentEids
		er.saveBundleItem(bi)
	}

	return css
}

// DispatchingAllowed permits dispatch once the bundle is locally addressed,
// or as long as at least one peer hasn't seen it yet.
func (er *EpidemicRouting) DispatchingAllowed(bp BundlePack) bool {
	bi, err := er.c.store.QueryId(bp.Id)
	if err != nil {
		log.WithFields(log.Fields{"bundle": bp.ID(), "error": err}).Warn("epidemic: bundle not in store")
		return true
	}

	if dst, ok := bi.Properties[epidemicDestinationKey]; ok {
		if er.c.HasEndpoint(dst.(bundle.EndpointID)) {
			return true
		}
	}

	css := er.unseenSenders(bp, false)
	if len(css) == 0 {
		bi.Pending = true
		er.saveBundleItem(bi)
	}

	return len(css) > 0
}

// SenderForBundle hands the bundle to every convergence sender that hasn't
// seen it, flagging none for forced deletion.
func (er *EpidemicRouting) SenderForBundle(bp BundlePack) (css []cla.ConvergenceSender, del bool) {
	return er.unseenSenders(bp, true), false
}

// ReportFailure un-marks a sender so a later dispatch attempt retries it.
func (er *EpidemicRouting) ReportFailure(bp BundlePack, sender cla.ConvergenceSender) {
	bi, err := er.c.store.QueryId(bp.Id)
	if err != nil {
		log.WithError(err).Warn("epidemic: bundle not in store, cannot record failure")
		return
	}

	sent := er.alreadySent(bi)

	log.WithFields(log.Fields{
		"bundle":  bp.ID(),
		"bad_cla": sender,
		"sent":    sent,
	}).Debug("epidemic: transmission failed, retracting sent-to record")

	for i, eid := range sent {
		if eid == sender.GetPeerEndpointID() {
			sent = append(sent[:i], sent[i+1:]...)
			break
		}
	}

	bi.Properties[epidemicAlgorithmKey+"/sent"] = sent
	er.saveBundleItem(bi)
}

func (*EpidemicRouting) ReportPeerAppeared(_ cla.Convergence) {}

func (*EpidemicRouting) ReportPeerDisappeared(_ cla.Convergence) {}

func (*EpidemicRouting) String() string {
	return "epidemic"
}
