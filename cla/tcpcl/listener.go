// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/n7proto/dtnd/bundle"
	"github.com/n7proto/dtnd/cla"
)

// Listener is a TCPCL server bound to a TCP port to accept incoming TCPCL connections.
// This type implements the cla.ConvergenceProvider and should be supervised by a cla.Manager.
type Listener struct {
	listenAddress string
	endpointID    bundle.EndpointID
	manager       *cla.Manager
	clas          []cla.Convergence

	stopSyn chan struct{}
	stopAck chan struct{}
}

// NewListener creates a new Listener which should be bound to the given address and advertises the endpoint ID as
// its own node identifier.
func NewListener(listenAddress string, endpointID bundle.EndpointID) *Listener {
	return &Listener{
		listenAddress: listenAddress,
		endpointID:    endpointID,

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}
}

func (listener *Listener) RegisterManager(manager *cla.Manager) {
	listener.manager = manager
}

// Start binds the listening socket and spawns the accept loop. The returned
// boolean reports whether a later retry is worthwhile on failure; a bad
// listen address is not.
func (listener *Listener) Start() (error, bool) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", listener.listenAddress)
	if err != nil {
		return err, false
	}

	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return err, true
	}

	go func(ln *net.TCPListener) {
		for {
			select {
			case <-listener.stopSyn:
				ln.Close()
				close(listener.stopAck)

				return

			default:
				if err := ln.SetDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
					log.WithError(err).WithField("cla", listener).Warn(
						"Listener failed to set deadline on TCP socket")

					listener.Close()
				} else if conn, err := ln.Accept(); err == nil {
					client := NewClient(conn, listener.endpointID)
					listener.clas = append(listener.clas, client)
					listener.manager.Register(client)
				}
			}
		}
	}(ln)

	return nil, true
}

func (listener *Listener) Close() {
	close(listener.stopSyn)
	<-listener.stopAck
}

func (listener Listener) String() string {
	return fmt.Sprintf("tcpcl://%s", listener.listenAddress)
}

func (listener Listener) Address() string {
	return listener.String()
}

// IsPermanent is always true: a bound listening socket should not be torn
// down just because an individual accepted connection misbehaved.
func (listener Listener) IsPermanent() bool {
	return true
}

func (listener Listener) Name() string {
	return "tcpcl"
}

func (listener Listener) Port() uint16 {
	return cla.PortFromAddress(listener.listenAddress)
}

func (listener Listener) LocalSettings() map[string]string {
	return map[string]string{"address": listener.listenAddress, "node_id": listener.endpointID.String()}
}

func (listener Listener) Accepting() bool {
	return true
}
