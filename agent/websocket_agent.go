// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/n7proto/dtnd/bundle"
	"github.com/gorilla/websocket"
)

// WebSocketAgent is a websocket-based ApplicationAgent. Each connecting
// client becomes its own webAgentClient, multiplexed behind a MuxAgent.
// ServeHTTP must be bound to a route by the caller; WebSocketAgent owns no
// HTTP server of its own, so several agents can share one listener.
type WebSocketAgent struct {
	receiver  chan Message
	clientMux *MuxAgent

	upgrader websocket.Upgrader
}

// NewWebSocketAgent starts a WebSocketAgent. ServeHTTP must still be mounted
// on an http.Server or http.ServeMux by the caller.
func NewWebSocketAgent() *WebSocketAgent {
	w := &WebSocketAgent{
		receiver:  make(chan Message),
		clientMux: NewMuxAgent(),

		upgrader: websocket.Upgrader{},
	}

	go w.handler()

	return w
}

func (w *WebSocketAgent) handler() {
	for msg := range w.receiver {
		w.clientMux.MessageReceiver() <- msg

		if _, isShutdown := msg.(ShutdownMessage); isShutdown {
			log.Debug("websocket agent: shutting down")
			return
		}
	}
}

// ServeHTTP upgrades the request to a websocket connection and registers it
// as a new client of this agent.
func (w *WebSocketAgent) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket agent: upgrading HTTP request errored")
		return
	}

	client := newWebAgentClient(conn)
	w.clientMux.Register(client)

	client.start()
}

// Endpoints of every currently connected client.
func (w *WebSocketAgent) Endpoints() []bundle.EndpointID {
	return w.clientMux.Endpoints()
}

func (w *WebSocketAgent) MessageReceiver() chan Message {
	return w.receiver
}

func (w *WebSocketAgent) MessageSender() chan Message {
	return w.clientMux.MessageSender()
}
