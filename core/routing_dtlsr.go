// SPDX-FileCopyrightText: 2019 Markus Sommer
// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/RyanCarrier/dijkstra"
	"github.com/dtn7/cboring"
	"github.com/n7proto/dtnd/bundle"
	"github.com/n7proto/dtnd/cla"
)

// dtlsrBroadcastAddress is the well-known destination link-state summary
// bundles are addressed to, so every node forwards them to every peer.
const dtlsrBroadcastAddress = "dtn://routing/dtlsr/broadcast/"

// dtlsrAlgorithmKey is this strategy's name as used by filterCLAs, which
// stores its sent-to record under "routing/<name>/sent". Used only for
// broadcast bundles — point-to-point bundles follow the routing table
// directly and need no sent-to tracking.
const dtlsrAlgorithmKey = "dtlsr"

// dtlsrSentKey is the literal Properties key filterCLAs uses for this strategy.
const dtlsrSentKey = "routing/" + dtlsrAlgorithmKey + "/sent"

// DTLSRConfig tunes the link-state routing strategy's timers. Every
// duration field is a parseable Go duration string ("30s", "5m", ...).
type DTLSRConfig struct {
	// RecomputeTime is the interval between routing-table recomputations.
	RecomputeTime string
	// BroadcastTime is the interval between link-state broadcasts (skipped if nothing changed).
	BroadcastTime string
	// PurgeTime is how long a disconnected peer is kept before being forgotten.
	PurgeTime string
}

// linkState is one node's view of its own direct connections: a peer
// EndpointID mapped to the DtnTime it disconnected, or zero while still
// connected.
type linkState struct {
	id        bundle.EndpointID
	timestamp bundle.DtnTime
	peers     map[bundle.EndpointID]bundle.DtnTime
}

func (ls linkState) newerThan(other linkState) bool {
	return ls.timestamp > other.timestamp
}

// DTLSR computes next-hop forwarding via Dijkstra shortest paths over a
// link-state graph assembled from this node's own connections plus summary
// bundles broadcast by every other DTLSR node.
type DTLSR struct {
	c *Core

	mu sync.RWMutex

	routingTable map[bundle.EndpointID]bundle.EndpointID
	localState   linkState
	peerState    map[bundle.EndpointID]linkState
	localDirty   bool
	receivedNew  bool

	// nodeIndex/indexNode is a bidirectional EndpointID<->int mapping, since
	// dijkstra only operates on integer vertex identifiers.
	nodeIndex map[bundle.EndpointID]int
	indexNode []bundle.EndpointID

	broadcastAddress bundle.EndpointID
	purgeTime        time.Duration
}

// NewDTLSR builds a DTLSR strategy and schedules its purge/recompute/
// broadcast cron jobs.
func NewDTLSR(c *Core, config DTLSRConfig) *DTLSR {
	log.WithField("config", config).Debug("dtlsr: initialising")

	bAddr, err := bundle.NewEndpointID(dtlsrBroadcastAddress)
	if err != nil {
		log.WithField("address", dtlsrBroadcastAddress).Fatal("dtlsr: broadcast address is unparsable")
	}

	purgeTime := mustParseDuration("dtlsr purge-time", config.PurgeTime)
	recomputeTime := mustParseDuration("dtlsr recompute-time", config.RecomputeTime)
	broadcastTime := mustParseDuration("dtlsr broadcast-time", config.BroadcastTime)

	d := &DTLSR{
		c:            c,
		routingTable: make(map[bundle.EndpointID]bundle.EndpointID),
		localState: linkState{
			id:        c.NodeId,
			timestamp: bundle.DtnTimeNow(),
			peers:     make(map[bundle.EndpointID]bundle.DtnTime),
		},
		peerState:        make(map[bundle.EndpointID]linkState),
		nodeIndex:        map[bundle.EndpointID]int{c.NodeId: 0},
		indexNode:        []bundle.EndpointID{c.NodeId},
		broadcastAddress: bAddr,
		purgeTime:        purgeTime,
	}

	registerCronOrWarn(c, "dtlsr_purge", d.purgeStalePeers, purgeTime)
	registerCronOrWarn(c, "dtlsr_recompute", d.recomputeIfDirty, recomputeTime)
	registerCronOrWarn(c, "dtlsr_broadcast", d.broadcastIfDirty, broadcastTime)

	if mgr := bundle.GetExtensionBlockManager(); !mgr.IsKnown(bundle.ExtBlockTypeDTLSRBlock) {
		_ = mgr.Register(NewDTLSRBlock(d.localState))
	}

	return d
}

func mustParseDuration(what, s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		log.WithFields(log.Fields{"field": what, "value": s}).Fatal("dtlsr: unparsable duration")
	}
	return d
}

func registerCronOrWarn(c *Core, name string, job func(), interval time.Duration) {
	if err := c.cron.Register(name, job, interval); err != nil {
		log.WithFields(log.Fields{"job": name, "error": err}).Warn("dtlsr: failed to register cron job")
	}
}

// NotifyIncoming absorbs a carried link-state summary if newer than what's
// already known, and — for an ordinary bundle — records the previous hop so
// a broadcast re-forward doesn't bounce it straight back.
func (d *DTLSR) NotifyIncoming(bp BundlePack) {
	bndl := bp.MustBundle()

	if block, err := bndl.ExtensionBlock(bundle.ExtBlockTypeDTLSRBlock); err == nil {
		d.absorbLinkState(block.Value.(*DTLSRBlock).state())
	}

	bi, err := d.c.store.QueryId(bp.Id)
	if err != nil {
		log.WithError(err).Debug("dtlsr: bundle not in store")
		return
	}

	prevNode, ok := previousNodeOf(bndl)
	if !ok {
		return
	}

	sent, _ := bi.Properties[dtlsrSentKey].([]bundle.EndpointID)
	bi.Properties[dtlsrSentKey] = append(sent, prevNode)
	if err := d.c.store.Update(bi); err != nil {
		log.WithError(err).Warn("dtlsr: failed to persist bundle item update")
	}
}

// absorbLinkState merges a peer's link-state report into peerState if it
// is new or newer than what's currently held, tracking every node it mentions.
func (d *DTLSR) absorbLinkState(data linkState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, known := d.peerState[data.id]
	if known && !data.newerThan(existing) {
		return
	}

	d.peerState[data.id] = data
	d.receivedNew = true

	d.trackNode(data.id)
	for peer := range data.peers {
		d.trackNode(peer)
	}
}

// DispatchingAllowed always permits dispatch; DTLSR decides a next hop
// (or not) in SenderForBundle.
func (*DTLSR) DispatchingAllowed(_ BundlePack) bool {
	return true
}

// ReportFailure is a no-op: a failed single-copy delivery has no retry
// state to roll back.
func (*DTLSR) ReportFailure(_ BundlePack, _ cla.ConvergenceSender) {}

// SenderForBundle floods link-state broadcast bundles to every unseen peer,
// and otherwise looks up the single next hop from the computed routing
// table, deleting the bundle locally once handed off since DTLSR keeps no
// multiple copies in flight.
func (d *DTLSR) SenderForBundle(bp BundlePack) (css []cla.ConvergenceSender, del bool) {
	bndl, err := bp.Bundle()
	if err != nil {
		log.WithError(err).Debug("dtlsr: bundle no longer exists")
		return nil, false
	}

	if bndl.PrimaryBlock.Destination == d.broadcastAddress {
		return d.floodBroadcast(bp, bndl)
	}

	destination := bndl.PrimaryBlock.Destination

	d.mu.RLock()
	forwarder, present := d.routingTable[destination]
	d.mu.RUnlock()

	if !present {
		log.WithFields(log.Fields{"bundle": bp.ID(), "destination": destination}).Debug("dtlsr: no route known")
		return nil, false
	}

	for _, cs := range d.c.claManager.Sender() {
		if cs.GetPeerEndpointID() != forwarder {
			continue
		}

		log.WithFields(log.Fields{"bundle": bndl.ID(), "destination": destination, "via": forwarder}).
			Debug("dtlsr: chose next hop")
		return []cla.ConvergenceSender{cs}, true
	}

	log.WithFields(log.Fields{"bundle": bp.ID(), "destination": destination}).
		Debug("dtlsr: next hop not currently connected")
	return nil, false
}

func (d *DTLSR) floodBroadcast(bp BundlePack, bndl bundle.Bundle) (css []cla.ConvergenceSender, del bool) {
	bi, err := d.c.store.QueryId(bp.Id)
	if err != nil {
		log.WithError(err).Debug("dtlsr: broadcast bundle not in store")
		return nil, false
	}

	css, sent := filterCLAs(bi, d.c.claManager.Sender(), dtlsrAlgorithmKey)

	bi.Properties[dtlsrSentKey] = sent
	if err := d.c.store.Update(bi); err != nil {
		log.WithError(err).Warn("dtlsr: failed to persist bundle item update")
	}

	log.WithFields(log.Fields{"bundle": bndl.ID(), "peers": css}).Debug("dtlsr: relaying link-state broadcast")
	return css, false
}

// ReportPeerAppeared starts tracking a newly connected peer and marks the
// local link state dirty so the next broadcast tick announces it.
func (d *DTLSR) ReportPeerAppeared(peer cla.Convergence) {
	sender, ok := peer.(cla.ConvergenceSender)
	if !ok {
		log.Warn("dtlsr: appeared peer is not a ConvergenceSender")
		return
	}
	peerID := sender.GetPeerEndpointID()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.trackNode(peerID)
	d.localState.peers[peerID] = 0
	d.localState.timestamp = bundle.DtnTimeNow()
	d.localDirty = true

	log.WithField("peer", peerID).Debug("dtlsr: now tracking connected peer")
}

// ReportPeerDisappeared stamps a disconnect timestamp on the peer so
// purgeStalePeers can later forget it, and marks local state dirty.
func (d *DTLSR) ReportPeerDisappeared(peer cla.Convergence) {
	sender, ok := peer.(cla.ConvergenceSender)
	if !ok {
		log.Warn("dtlsr: disappeared peer is not a ConvergenceSender")
		return
	}
	peerID := sender.GetPeerEndpointID()

	d.mu.Lock()
	defer d.mu.Unlock()

	now := bundle.DtnTimeNow()
	d.localState.peers[peerID] = now
	d.localState.timestamp = now
	d.localDirty = true

	log.WithField("peer", peerID).Debug("dtlsr: peer disconnected, purge timer started")
}

// trackNode assigns id a vertex index if it doesn't have one yet. Caller
// must hold d.mu.
func (d *DTLSR) trackNode(id bundle.EndpointID) {
	if _, present := d.nodeIndex[id]; present {
		return
	}
	d.nodeIndex[id] = len(d.indexNode)
	d.indexNode = append(d.indexNode, id)
}

// buildGraph assembles the Dijkstra graph from this node's own connections
// plus every received peer's reported connections. Caller must hold d.mu.
func (d *DTLSR) buildGraph() *dijkstra.Graph {
	now := bundle.DtnTimeNow()
	graph := dijkstra.NewGraph()

	for i := range d.indexNode {
		graph.AddVertex(i)
	}

	d.addEdgesFrom(graph, 0, d.localState.peers, now)
	for _, peer := range d.peerState {
		d.addEdgesFrom(graph, d.nodeIndex[peer.id], peer.peers, now)
	}

	return graph
}

// addEdgesFrom adds one arc per entry in peers, weighted by how long ago
// the connection was lost (0 while still connected).
func (d *DTLSR) addEdgesFrom(graph *dijkstra.Graph, fromIndex int, peers map[bundle.EndpointID]bundle.DtnTime, now bundle.DtnTime) {
	for peer, disconnectedAt := range peers {
		var cost int64
		if disconnectedAt != 0 {
			cost = int64(now - disconnectedAt)
		}

		if err := graph.AddArc(fromIndex, d.nodeIndex[peer], cost); err != nil {
			log.WithError(err).Warn("dtlsr: failed to add graph edge")
			return
		}
	}
}

// recomputeRoutingTable re-derives the next-hop table via shortest paths
// from this node to every tracked vertex. Caller must hold d.mu.
func (d *DTLSR) recomputeRoutingTable() {
	log.Debug("dtlsr: recomputing routing table")

	graph := d.buildGraph()
	table := make(map[bundle.EndpointID]bundle.EndpointID)

	for i := 1; i < len(d.indexNode); i++ {
		shortest, err := graph.Shortest(0, i)
		if err != nil {
			log.WithFields(log.Fields{"node": d.indexNode[i], "error": err}).Debug("dtlsr: no path found")
			continue
		}
		if len(shortest.Path) <= 1 {
			log.WithField("node", d.indexNode[i]).Warn("dtlsr: single-step path, should not happen")
			continue
		}

		table[d.indexNode[i]] = d.indexNode[shortest.Path[1]]
	}

	log.WithField("routes", len(table)).Debug("dtlsr: finished routing table computation")
	d.routingTable = table
}

// recomputeIfDirty is the recompute cron tick: it only redoes the shortest-
// path computation if local or received link state actually changed.
func (d *DTLSR) recomputeIfDirty() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.localDirty && !d.receivedNew {
		return
	}

	d.recomputeRoutingTable()
	d.receivedNew = false
}

// broadcastLinkState sends this node's current link state as a metadata bundle.
func (d *DTLSR) broadcastLinkState() {
	d.mu.RLock()
	block := NewDTLSRBlock(d.localState)
	d.mu.RUnlock()

	if err := sendMetadataBundle(d.c, d.c.NodeId, d.broadcastAddress, block); err != nil {
		log.WithError(err).Warn("dtlsr: failed to broadcast link state")
	}
}

// broadcastIfDirty is the broadcast cron tick: only announces link state
// when the local connection set has actually changed since the last tick.
func (d *DTLSR) broadcastIfDirty() {
	d.mu.RLock()
	dirty := d.localDirty
	d.mu.RUnlock()

	if !dirty {
		return
	}

	d.broadcastLinkState()

	d.mu.Lock()
	d.localDirty = false
	// a local change forces a recompute even if broadcastIfDirty ran before
	// recomputeIfDirty picked it up.
	d.receivedNew = true
	d.mu.Unlock()
}

// purgeStalePeers forgets peers that disconnected more than purgeTime ago.
func (d *DTLSR) purgeStalePeers() {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for peer, disconnectedAt := range d.localState.peers {
		if disconnectedAt != 0 && disconnectedAt.Time().Add(d.purgeTime).Before(now) {
			log.WithField("peer", peer).Debug("dtlsr: forgetting stale peer")
			delete(d.localState.peers, peer)
			d.localDirty = true
		}
	}
}

func (*DTLSR) String() string { return "dtlsr" }

// DTLSRBlock carries one node's linkState as an extension block, exchanged
// as the payload of a DTLSR broadcast bundle.
type DTLSRBlock linkState

// NewDTLSRBlock wraps data as a DTLSRBlock.
func NewDTLSRBlock(data linkState) *DTLSRBlock {
	b := DTLSRBlock(data)
	return &b
}

func (b *DTLSRBlock) state() linkState {
	return linkState(*b)
}

func (b *DTLSRBlock) BlockTypeCode() uint64 {
	return bundle.ExtBlockTypeDTLSRBlock
}

func (*DTLSRBlock) CheckValid() error {
	return nil
}

func (b *DTLSRBlock) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}
	if err := cboring.Marshal(&b.id, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(b.timestamp), w); err != nil {
		return err
	}

	if err := cboring.WriteMapPairLength(uint64(len(b.peers)), w); err != nil {
		return err
	}
	for peer, timestamp := range b.peers {
		if err := cboring.Marshal(&peer, w); err != nil {
			return err
		}
		if err := cboring.WriteUInt(uint64(timestamp), w); err != nil {
			return err
		}
	}

	return nil
}

func (b *DTLSRBlock) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 3 {
		return fmt.Errorf("dtlsr block: expected 3 fields, got %d", l)
	}

	var id bundle.EndpointID
	if err := cboring.Unmarshal(&id, r); err != nil {
		return err
	}
	b.id = id

	timestamp, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	b.timestamp = bundle.DtnTime(timestamp)

	count, err := cboring.ReadMapPairLength(r)
	if err != nil {
		return err
	}

	peers := make(map[bundle.EndpointID]bundle.DtnTime, count)
	for i := uint64(0); i < count; i++ {
		var peer bundle.EndpointID
		if err := cboring.Unmarshal(&peer, r); err != nil {
			return err
		}
		ts, err := cboring.ReadUInt(r)
		if err != nil {
			return err
		}
		peers[peer] = bundle.DtnTime(ts)
	}
	b.peers = peers

	return nil
}
