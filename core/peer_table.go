// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/n7proto/dtnd/bundle"
)

// PeerKind distinguishes peers configured ahead of time from peers learned
// through discovery.
type PeerKind int

const (
	// StaticPeer was configured explicitly and never expires.
	StaticPeer PeerKind = iota

	// DynamicPeer was learned from a beacon and expires once its validity
	// window elapses without a fresh touch.
	DynamicPeer
)

func (k PeerKind) String() string {
	if k == StaticPeer {
		return "static"
	}
	return "dynamic"
}

// PeerCLA names one convergence layer a Peer is reachable through, together
// with its advertised port, if any.
type PeerCLA struct {
	Name string
	Port uint16
}

// Peer is a single entry of the PeerTable, identified by its node name
// (EndpointID authority). It tracks everything a routing algorithm or the
// discovery janitor needs to reason about reachability.
type Peer struct {
	Eid              bundle.EndpointID
	Address          string
	Kind             PeerKind
	AdvertisedPeriod time.Duration
	CLAs             []PeerCLA
	Services         map[uint8]string
	LastContact      time.Time
	FailCount        uint

	customTimeout time.Duration
}

// defaultPeerTimeout is used when a Peer neither carries an advertised
// period nor a custom timeout override.
const defaultPeerTimeout = 30 * time.Second

// timeout returns the validity window after which a dynamic Peer without
// fresh contact is considered gone: a configured override, else twice the
// advertised beaconing period, else defaultPeerTimeout.
func (p Peer) timeout() time.Duration {
	if p.customTimeout > 0 {
		return p.customTimeout
	}
	if p.AdvertisedPeriod > 0 {
		return 2 * p.AdvertisedPeriod
	}
	return defaultPeerTimeout
}

// Expired reports whether a dynamic Peer has not been touched within its
// validity window. Static peers never expire.
func (p Peer) Expired(now time.Time) bool {
	if p.Kind == StaticPeer {
		return false
	}
	return now.Sub(p.LastContact) >= p.timeout()
}

// nodeName is the PeerTable's key: a Peer's EndpointID authority, stripped
// of any service-specific demux suffix.
func nodeName(eid bundle.EndpointID) string {
	return eid.Authority()
}

// PeerTable tracks every known neighbor, keyed by node name, and enforces
// the insert/remove/touch/get/find_by_address/iterate contract routing
// algorithms and the discovery janitor rely on.
type PeerTable struct {
	mutex sync.RWMutex
	peers map[string]Peer
}

// NewPeerTable creates an empty PeerTable.
func NewPeerTable() *PeerTable {
	return &PeerTable{
		peers: make(map[string]Peer),
	}
}

// Insert adds or overwrites a Peer, returning true if this node name was not
// previously known.
func (pt *PeerTable) Insert(peer Peer) (isNew bool) {
	key := nodeName(peer.Eid)

	pt.mutex.Lock()
	defer pt.mutex.Unlock()

	_, exists := pt.peers[key]
	pt.peers[key] = peer

	log.WithFields(log.Fields{
		"peer": key,
		"new":  !exists,
	}).Debug("peer table insert")

	return !exists
}

// Remove deletes a Peer by node name. It is a no-op if the node name is
// unknown.
func (pt *PeerTable) Remove(node string) {
	pt.mutex.Lock()
	defer pt.mutex.Unlock()

	delete(pt.peers, node)
}

// Touch refreshes a Peer's last_contact to now, if the node name is known.
func (pt *PeerTable) Touch(node string) {
	pt.mutex.Lock()
	defer pt.mutex.Unlock()

	if peer, ok := pt.peers[node]; ok {
		peer.LastContact = time.Now()
		peer.FailCount = 0
		pt.peers[node] = peer
	}
}

// Get looks a Peer up by node name.
func (pt *PeerTable) Get(node string) (Peer, bool) {
	pt.mutex.RLock()
	defer pt.mutex.RUnlock()

	peer, ok := pt.peers[node]
	return peer, ok
}

// FindByAddress returns the first Peer whose recorded address matches,
// regardless of node name.
func (pt *PeerTable) FindByAddress(address string) (Peer, bool) {
	pt.mutex.RLock()
	defer pt.mutex.RUnlock()

	for _, peer := range pt.peers {
		if peer.Address == address {
			return peer, true
		}
	}
	return Peer{}, false
}

// Iterate returns a snapshot of every known Peer. Mutating the PeerTable
// concurrently with consuming the result is safe; the slice is a copy.
func (pt *PeerTable) Iterate() []Peer {
	pt.mutex.RLock()
	defer pt.mutex.RUnlock()

	out := make([]Peer, 0, len(pt.peers))
	for _, peer := range pt.peers {
		out = append(out, peer)
	}
	return out
}

// EvictExpired removes every dynamic Peer whose validity window has
// elapsed, invoking onDropped for each one before it is removed.
func (pt *PeerTable) EvictExpired(onDropped func(bundle.EndpointID)) {
	now := time.Now()

	pt.mutex.Lock()
	var dropped []bundle.EndpointID
	for key, peer := range pt.peers {
		if peer.Expired(now) {
			dropped = append(dropped, peer.Eid)
			delete(pt.peers, key)
		}
	}
	pt.mutex.Unlock()

	for _, eid := range dropped {
		log.WithField("peer", eid).Info("peer expired, evicting from peer table")
		if onDropped != nil {
			onDropped(eid)
		}
	}
}

// touchByBundle is invoked from the processing pipeline for both inbound
// and outbound bundles so that forwarding traffic itself counts as contact.
func (pt *PeerTable) touchByBundle(bp BundlePack) {
	bndl, err := bp.Bundle()
	if err != nil {
		return
	}

	if pnBlock, err := bndl.ExtensionBlock(bundle.ExtBlockTypePreviousNodeBlock); err == nil {
		prev := pnBlock.Value.(*bundle.PreviousNodeBlock).Endpoint()
		pt.Touch(nodeName(prev))
	}
}
