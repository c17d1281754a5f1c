// SPDX-FileCopyrightText: 2019 Markus Sommer
// SPDX-FileCopyrightText: 2020 Alvar Penning
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

// prophetSentKey is this strategy's bookkeeping slot in a BundleItem's
// Properties map.
const prophetSentKey = "routing/prophet/sent"

// ProphetConfig tunes the PRoPHET delivery-predictability model.
type ProphetConfig struct {
	// PInit is the predictability bump on a fresh encounter.
	PInit float64
	// Beta scales the transitive update derived from a peer's own summary vector.
	Beta float64
	// Gamma is the per-tick ageing factor applied to stale predictabilities.
	Gamma float64
	// AgeInterval is the duration between ageing ticks, as a parseable duration string.
	AgeInterval string
}

// Prophet implements PRoPHET: each node maintains a delivery probability per
// destination, exchanges summary vectors with encountered peers, and only
// forwards a bundle to a peer with a strictly higher probability of reaching
// its destination.
type Prophet struct {
	c *Core

	mu                   sync.RWMutex
	predictability       map[bundle.EndpointID]float64
	peerPredictability   map[bundle.EndpointID]map[bundle.EndpointID]float64
	config               ProphetConfig
}

// NewProphet builds a Prophet strategy, registers its ageing cron job and
// its ProphetBlock extension type.
func NewProphet(c *Core, config ProphetConfig) *Prophet {
	log.WithFields(log.Fields{
		"p_init": config.PInit,
		"beta":   config.Beta,
		"gamma":  config.Gamma,
		"age":    config.AgeInterval,
	}).Info("prophet: initialised")

	p := &Prophet{
		c:                  c,
		predictability:     make(map[bundle.EndpointID]float64),
		peerPredictability: make(map[bundle.EndpointID]map[bundle.EndpointID]float64),
		config:             config,
	}

	ageInterval, err := time.ParseDuration(config.AgeInterval)
	if err != nil {
		log.WithField("duration", config.AgeInterval).Fatal("prophet: unparsable age-interval")
	}

	if err := c.cron.Register("prophet_age", p.ageTick, ageInterval); err != nil {
		log.WithError(err).Warn("prophet: failed to register ageing cron")
	}

	if mgr := bundle.GetExtensionBlockManager(); !mgr.IsKnown(bundle.ExtBlockTypeProphetBlock) {
		_ = mgr.Register(newProphetBlock(p.predictability))
	}

	return p
}

// bump raises this node's predictability for peer on a fresh encounter.
func (p *Prophet) bump(peer bundle.EndpointID) {
	old := p.predictability[peer]
	p.predictability[peer] = old + (1-old)*p.config.PInit
	log.WithFields(log.Fields{"peer": peer, "old": old, "new": p.predictability[peer]}).Debug("prophet: bumped on encounter")
}

// ageTick decays every known predictability by one ageing step.
func (p *Prophet) ageTick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for peer, old := range p.predictability {
		p.predictability[peer] = old * p.config.Gamma
	}
}

// foldTransitive applies the transitive PRoPHET update: if peer is likely to
// reach some otherPeer, and we are likely to reach peer, our own
// predictability for otherPeer rises accordingly.
func (p *Prophet) foldTransitive(peer bundle.EndpointID) {
	summary, known := p.peerPredictability[peer]
	if !known {
		log.WithField("peer", peer).Debug("prophet: no summary vector known for peer")
		return
	}

	peerPred := p.predictability[peer]
	for otherPeer, otherPred := range summary {
		old := p.predictability[otherPeer]
		p.predictability[otherPeer] = old + (1-old)*peerPred*otherPred*p.config.Beta
	}
}

// sendSummaryVector transmits this node's current predictabilities to peer
// as a metadata bundle.
func (p *Prophet) sendSummaryVector(peer bundle.EndpointID) {
	p.mu.RLock()
	block := newProphetBlock(p.predictability)
	p.mu.RUnlock()

	if err := sendMetadataBundle(p.c, p.c.NodeId, peer, block); err != nil {
		log.WithFields(log.Fields{"peer": peer, "error": err}).Warn("prophet: failed to send summary vector")
	}
}

// NotifyIncoming either absorbs an incoming summary-vector bundle (updating
// this node's own predictabilities transitively), or — for an ordinary
// bundle — records the previous hop so it is skipped on any re-forward.
func (p *Prophet) NotifyIncoming(bp BundlePack) {
	bndl := bp.MustBundle()

	if block, err := bndl.ExtensionBlock(bundle.ExtBlockTypeProphetBlock); err == nil {
		p.absorbSummaryVector(bp, block.Value.(*ProphetBlock))
		return
	}

	bi, err := p.c.store.QueryId(bp.Id)
	if err != nil {
		log.WithError(err).Warn("prophet: bundle not in store, ignoring")
		return
	}

	prevNode, ok := previousNodeOf(bndl)
	if !ok {
		return
	}

	sent, _ := bi.Properties[prophetSentKey].([]bundle.EndpointID)
	if containsEid(sent, prevNode) {
		return
	}

	bi.Properties[prophetSentKey] = append(sent, prevNode)
	if err := p.c.store.Update(bi); err != nil {
		log.WithError(err).Warn("prophet: failed to persist bundle item update")
	}
}

func (p *Prophet) absorbSummaryVector(bp BundlePack, block *ProphetBlock) {
	bndl := bp.MustBundle()
	if bndl.PrimaryBlock.Destination != p.c.NodeId {
		log.WithField("destination", bndl.PrimaryBlock.Destination).Debug("prophet: summary vector addressed elsewhere, ignoring")
		return
	}

	peer := bndl.PrimaryBlock.SourceNode
	data := block.predictabilities()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.peerPredictability[peer] = data
	p.foldTransitive(peer)

	log.WithFields(log.Fields{"peer": peer, "entries": len(data)}).Debug("prophet: absorbed summary vector")
}

// DispatchingAllowed always permits dispatch; PRoPHET decides who to give a
// bundle to in SenderForBundle, not whether to hold it.
func (*Prophet) DispatchingAllowed(_ BundlePack) bool {
	return true
}

// SenderForBundle forwards to any unseen peer whose delivery predictability
// for the bundle's destination beats this node's own. Summary-vector
// bundles are never forwarded and are flagged for deletion once delivered.
func (p *Prophet) SenderForBundle(bp BundlePack) (css []cla.ConvergenceSender, del bool) {
	bndl := bp.MustBundle()

	if _, err := bndl.ExtensionBlock(bundle.ExtBlockTypeProphetBlock); err == nil {
		return nil, true
	}

	bi, err := p.c.store.QueryId(bp.Id)
	if err != nil {
		log.WithError(err).Warn("prophet: bundle not in store")
		return nil, false
	}

	sent, _ := bi.Properties[prophetSentKey].([]bundle.EndpointID)
	destination := bndl.PrimaryBlock.Destination

	p.mu.RLock()
	ownPred := p.predictability[destination]
	for _, cs := range p.c.claManager.Sender() {
		peer := cs.GetPeerEndpointID()
		if p.peerPredictability[peer][destination] <= ownPred {
			continue
		}
		if containsEid(sent, peer) {
			continue
		}

		css = append(css, cs)
		sent = append(sent, peer)
	}
	p.mu.RUnlock()

	if len(css) == 0 {
		log.WithField("bundle", bp.ID()).Debug("prophet: no better-predictability peer found")
		return nil, false
	}

	bi.Properties[prophetSentKey] = sent
	if err := p.c.store.Update(bi); err != nil {
		log.WithError(err).Warn("prophet: failed to persist bundle item update")
	}

	log.WithFields(log.Fields{"bundle": bp.ID(), "senders": css}).Debug("prophet: chose convergence senders")

	return css, false
}

// ReportFailure retracts a sender so a later attempt retries it.
func (p *Prophet) ReportFailure(bp BundlePack, sender cla.ConvergenceSender) {
	bi, err := p.c.store.QueryId(bp.Id)
	if err != nil {
		log.WithError(err).Warn("prophet: bundle not in store, cannot record failure")
		return
	}

	sent, ok := bi.Properties[prophetSentKey].([]bundle.EndpointID)
	if !ok {
		log.WithField("bundle", bp.ID()).Warn("prophet: bundle had no recorded sent-to list")
		return
	}

	for i, eid := range sent {
		if eid == sender.GetPeerEndpointID() {
			sent = append(sent[:i], sent[i+1:]...)
			break
		}
	}

	bi.Properties[prophetSentKey] = sent
	if err := p.c.store.Update(bi); err != nil {
		log.WithError(err).Warn("prophet: failed to persist bundle item update")
	}
}

// ReportPeerAppeared bumps delivery predictability for the encountered peer
// and shares this node's current summary vector with it.
func (p *Prophet) ReportPeerAppeared(peer cla.Convergence) {
	sender, ok := peer.(cla.ConvergenceSender)
	if !ok {
		log.Debug("prophet: appeared peer is not a ConvergenceSender")
		return
	}

	peerID := sender.GetPeerEndpointID()

	p.mu.Lock()
	p.bump(peerID)
	p.mu.Unlock()

	p.sendSummaryVector(peerID)
}

// ReportPeerDisappeared is a no-op: PRoPHET predictabilities only decay via
// the ageing cron, a disappearance carries no extra information.
func (*Prophet) ReportPeerDisappeared(_ cla.Convergence) {}

func (*Prophet) String() string { return "prophet" }

// ProphetBlock carries one node's full delivery-predictability table as an
// extension block, exchanged as the payload of a PRoPHET summary-vector bundle.
type ProphetBlock map[bundle.EndpointID]float64

func newProphetBlock(data map[bundle.EndpointID]float64) *ProphetBlock {
	b := ProphetBlock(data)
	return &b
}

func (pBlock *ProphetBlock) predictabilities() map[bundle.EndpointID]float64 {
	return *pBlock
}

func (pBlock *ProphetBlock) BlockTypeCode() uint64 {
	return bundle.ExtBlockTypeProphetBlock
}

func (ProphetBlock) CheckValid() error {
	return nil
}

func (pBlock *ProphetBlock) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteMapPairLength(uint64(len(*pBlock)), w); err != nil {
		return err
	}

	for peer, pred := range *pBlock {
		if err := cboring.Marshal(&peer, w); err != nil {
			return err
		}
		if err := cboring.WriteFloat64(pred, w); err != nil {
			return err
		}
	}

	return nil
}

func (pBlock *ProphetBlock) UnmarshalCbor(r io.Reader) error {
	count, err := cboring.ReadMapPairLength(r)
	if err != nil {
		return err
	}

	data := make(map[bundle.EndpointID]float64, count)
	for i := uint64(0); i < count; i++ {
		var peer bundle.EndpointID
		if err := cboring.Unmarshal(&peer, r); err != nil {
			return err
		}

		pred, err := cboring.ReadFloat64(r)
		if err != nil {
			return err
		}

		data[peer] = pred
	}

	*pBlock = data
	return nil
}
