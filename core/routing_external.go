// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/n7proto/dtnd/bundle"
	"github.com/n7proto/dtnd/cla"
)

// externalDecisionTimeout bounds how long ExternalRouting waits for a policy
// engine to answer a SenderForBundle request before falling back to an
// empty route.
const externalDecisionTimeout = 250 * time.Millisecond

// ExternalEvent is the tagged-variant wire shape pushed to the adapter
// connection for every Notify-class occurrence a routing agent may react to.
type ExternalEvent struct {
	Kind   string            `json:"kind"`
	Bundle string            `json:"bundle,omitempty"`
	Peer   string            `json:"peer,omitempty"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// PeerState mirrors a single PeerTable entry for consumption by an external
// policy engine.
type PeerState struct {
	NodeName string   `json:"node_name"`
	Address  string   `json:"address"`
	Kind     string   `json:"kind"`
	CLAs     []string `json:"clas"`
}

// ServiceState summarizes what this node itself advertises, so an external
// policy engine knows its own local endpoints without a separate query.
type ServiceState struct {
	NodeId   string   `json:"node_id"`
	Services []string `json:"services"`
}

// senderRequest is pushed when the pipeline needs a routing decision.
type senderRequest struct {
	Kind      string `json:"kind"`
	RequestId string `json:"request_id"`
	BundleId  string `json:"bundle_id"`
}

// senderResponse is the adapter's reply to a senderRequest, naming peers by
// node name rather than by CLA handle, since the adapter has no notion of a
// live Go interface value.
type senderResponse struct {
	RequestId       string   `json:"request_id"`
	Peers           []string `json:"peers"`
	DeleteAfterSend bool     `json:"delete_after_send"`
}

// externalAdapterConn wraps the single permitted policy-engine connection.
type externalAdapterConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan senderResponse
}

func (conn *externalAdapterConn) push(v interface{}) error {
	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()
	return conn.ws.WriteJSON(v)
}

func (conn *externalAdapterConn) await(requestId string) chan senderResponse {
	ch := make(chan senderResponse, 1)

	conn.pendingMu.Lock()
	conn.pending[requestId] = ch
	conn.pendingMu.Unlock()

	return ch
}

func (conn *externalAdapterConn) resolve(resp senderResponse) {
	conn.pendingMu.Lock()
	ch, ok := conn.pending[resp.RequestId]
	if ok {
		delete(conn.pending, resp.RequestId)
	}
	conn.pendingMu.Unlock()

	if ok {
		ch <- resp
	}
}

func (conn *externalAdapterConn) readLoop(onClose func()) {
	defer onClose()

	for {
		var resp senderResponse
		if err := conn.ws.ReadJSON(&resp); err != nil {
			log.WithError(err).Info("external routing adapter connection closed")
			return
		}
		conn.resolve(resp)
	}
}

// ExternalRoutingAdapter exposes the §4.8-style message-passing interface to
// an out-of-process policy engine over a WebSocket. Only one connection is
// permitted at a time; a second attempt is rejected with HTTP 409.
type ExternalRoutingAdapter struct {
	c *Core

	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *externalAdapterConn
}

// NewExternalRoutingAdapter creates an adapter bound to the given Core. Call
// ServeHTTP from an HTTP mux to expose the policy-engine endpoint.
func NewExternalRoutingAdapter(c *Core) *ExternalRoutingAdapter {
	return &ExternalRoutingAdapter{
		c:        c,
		upgrader: websocket.Upgrader{},
	}
}

// ServeHTTP upgrades the request to a WebSocket if no policy engine is
// currently attached, and pushes the initial PeerState and ServiceState.
func (a *ExternalRoutingAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	if a.conn != nil {
		a.mu.Unlock()
		http.Error(w, "an external routing adapter is already connected", http.StatusConflict)
		return
	}

	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.mu.Unlock()
		log.WithError(err).Warn("external routing adapter upgrade failed")
		return
	}

	conn := &externalAdapterConn{ws: ws, pending: make(map[string]chan senderResponse)}
	a.conn = conn
	a.mu.Unlock()

	if err := conn.push(a.peerState()); err != nil {
		log.WithError(err).Warn("failed to push initial peer state")
	}
	if err := conn.push(a.serviceState()); err != nil {
		log.WithError(err).Warn("failed to push initial service state")
	}

	conn.readLoop(func() {
		a.mu.Lock()
		if a.conn == conn {
			a.conn = nil
		}
		a.mu.Unlock()
		_ = ws.Close()
	})
}

func (a *ExternalRoutingAdapter) peerState() []PeerState {
	peers := a.c.peers.Iterate()
	out := make([]PeerState, 0, len(peers))
	for _, p := range peers {
		clas := make([]string, 0, len(p.CLAs))
		for _, cl := range p.CLAs {
			clas = append(clas, cl.Name)
		}
		out = append(out, PeerState{
			NodeName: nodeName(p.Eid),
			Address:  p.Address,
			Kind:     p.Kind.String(),
			CLAs:     clas,
		})
	}
	return out
}

func (a *ExternalRoutingAdapter) serviceState() ServiceState {
	return ServiceState{NodeId: a.c.NodeId.String()}
}

// notify pushes a tagged event to the current adapter connection, if any is
// attached. Events are best-effort; there is no policy engine to notify
// when none is connected.
func (a *ExternalRoutingAdapter) notify(event ExternalEvent) {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.push(event); err != nil {
		log.WithError(err).Debug("failed to push event to external routing adapter")
	}
}

// requestSenders asks the attached policy engine for a routing decision,
// falling back to an empty route if no adapter is attached or it does not
// answer within externalDecisionTimeout.
func (a *ExternalRoutingAdapter) requestSenders(bp BundlePack) (peers []string, deleteAfterSend bool) {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()

	if conn == nil {
		return nil, false
	}

	reqId := fmt.Sprintf("%s-%d", bp.ID(), time.Now().UnixNano())
	replyCh := conn.await(reqId)

	req := senderRequest{Kind: "sender_for_bundle", RequestId: reqId, BundleId: bp.ID()}
	if err := conn.push(req); err != nil {
		log.WithError(err).Warn("failed to push sender_for_bundle request")
		return nil, false
	}

	select {
	case resp := <-replyCh:
		return resp.Peers, resp.DeleteAfterSend
	case <-time.After(externalDecisionTimeout):
		log.WithField("bundle", bp.ID()).Info("external routing adapter timed out")
		return nil, false
	}
}

// ExternalRouting delegates every routing decision to an out-of-process
// policy engine reachable through an ExternalRoutingAdapter.
type ExternalRouting struct {
	c       *Core
	adapter *ExternalRoutingAdapter
}

// NewExternalRouting creates an ExternalRouting strategy and its adapter.
// Mount adapter.ServeHTTP on a webserver route to let a policy engine attach.
func NewExternalRouting(c *Core) (*ExternalRouting, *ExternalRoutingAdapter) {
	adapter := NewExternalRoutingAdapter(c)
	return &ExternalRouting{c: c, adapter: adapter}, adapter
}

func (er *ExternalRouting) NotifyIncoming(bp BundlePack) {
	bndl := bp.MustBundle()

	if pnBlock, err := bndl.ExtensionBlock(bundle.ExtBlockTypePreviousNodeBlock); err == nil {
		prev := pnBlock.Value.(*bundle.PreviousNodeBlock).Endpoint()
		er.adapter.notify(ExternalEvent{Kind: "incoming_bundle", Bundle: bp.ID(), Peer: nodeName(prev)})
	} else {
		er.adapter.notify(ExternalEvent{Kind: "incoming_bundle_without_previous_node", Bundle: bp.ID()})
	}
}

func (er *ExternalRouting) DispatchingAllowed(_ BundlePack) bool {
	return true
}

func (er *ExternalRouting) SenderForBundle(bp BundlePack) (css []cla.ConvergenceSender, del bool) {
	peerNames, deleteAfterSend := er.adapter.requestSenders(bp)

	for _, name := range peerNames {
		for _, cs := range er.c.claManager.Sender() {
			if nodeName(cs.GetPeerEndpointID()) == name {
				css = append(css, cs)
			}
		}
	}

	return css, deleteAfterSend
}

func (er *ExternalRouting) ReportFailure(bp BundlePack, sender cla.ConvergenceSender) {
	er.adapter.notify(ExternalEvent{Kind: "sending_failed", Bundle: bp.ID(), Peer: nodeName(sender.GetPeerEndpointID())})
}

func (er *ExternalRouting) ReportPeerAppeared(peer cla.Convergence) {
	if cs, ok := peer.(cla.ConvergenceSender); ok {
		er.adapter.notify(ExternalEvent{Kind: "encountered_peer", Peer: nodeName(cs.GetPeerEndpointID())})
	}
}

func (er *ExternalRouting) ReportPeerDisappeared(peer cla.Convergence) {
	if cs, ok := peer.(cla.ConvergenceSender); ok {
		er.adapter.notify(ExternalEvent{Kind: "dropped_peer", Peer: nodeName(cs.GetPeerEndpointID())})
	}
}

func (_ *ExternalRouting) String() string {
	return "external"
}
