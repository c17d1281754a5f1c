// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"fmt"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/n7proto/dtnd/bundle"
	"github.com/gorilla/websocket"
)

// webAgentClient is the server-side ApplicationAgent for one websocket
// connection, registered as a child of a WebSocketAgent's MuxAgent.
type webAgentClient struct {
	sync.Mutex

	conn     *websocket.Conn
	endpoint bundle.EndpointID
	receiver chan Message
	sender   chan Message

	shutdownOnce sync.Once
}

func newWebAgentClient(conn *websocket.Conn) *webAgentClient {
	return &webAgentClient{
		conn:     conn,
		endpoint: bundle.EndpointID{},
		receiver: make(chan Message),
		sender:   make(chan Message),
	}
}

func (client *webAgentClient) logger() *log.Entry {
	return log.WithField("web agent client", client.conn.RemoteAddr().String())
}

func (client *webAgentClient) start() {
	go client.handleReceiver()
	client.handleConn()
}

// shutdown closes the outgoing channel and the connection exactly once,
// whichever of handleReceiver or handleConn notices the failure first.
func (client *webAgentClient) shutdown() {
	client.shutdownOnce.Do(func() {
		client.logger().Debug("web agent client: shutting down")

		close(client.sender)
		_ = client.conn.Close()
	})
}

// handleReceiver relays Messages addressed to this client out over its
// websocket connection.
func (client *webAgentClient) handleReceiver() {
	defer client.shutdown()

	for msg := range client.receiver {
		switch msg := msg.(type) {
		case ShutdownMessage:
			client.logger().Debug("web agent client: received shutdown")
			return

		case BundleMessage:
			if err := client.writeMessage(newBundleMessage(msg.Bundle)); err != nil {
				client.logger().WithError(err).Warn("web agent client: sending outgoing bundle errored")
				return
			}

		case SyscallResponseMessage:
			if err := client.writeMessage(newSyscallResponseMessage(msg.Request, msg.Response)); err != nil {
				client.logger().WithError(err).Warn("web agent client: sending syscall response errored")
				return
			}

		default:
			client.logger().WithField("message", msg).Info("web agent client: ignoring unsupported message")
		}
	}
}

// handleConn reads wire messages off the websocket connection until it
// closes or a framing error occurs.
func (client *webAgentClient) handleConn() {
	defer client.shutdown()

	for {
		messageType, reader, err := client.conn.NextReader()
		if err != nil {
			if netErr, ok := err.(*net.OpError); ok && netErr.Err.Error() == "use of closed network connection" {
				client.logger().Debug("web agent client: reader closed")
			} else {
				client.logger().WithError(err).Warn("web agent client: opening next websocket reader errored")
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			client.logger().WithField("message type", messageType).Warn("web agent client: non-binary frame")
			return
		}

		message, err := unmarshalCbor(reader)
		if err != nil {
			client.logger().WithError(err).Warn("web agent client: unmarshalling CBOR errored")
			return
		}

		switch message := message.(type) {
		case *wamRegister:
			regErr := client.handleIncomingRegister(message)
			if ackErr := client.writeMessage(newStatusMessage(regErr)); ackErr != nil {
				client.logger().WithError(ackErr).Warn("web agent client: acknowledging registration errored")
				return
			}

		case *wamBundle:
			client.logger().WithField("bundle", message.b).Debug("web agent client: received bundle")
			client.sender <- BundleMessage{Bundle: message.b}

		case *wamSyscallRequest:
			client.logger().WithField("syscall", message.request).Debug("web agent client: received syscall request")
			client.sender <- SyscallRequestMessage{
				Sender:  client.endpoint,
				Request: message.request,
			}

		default:
			client.logger().WithField("message", message).Info("web agent client: ignoring unsupported message")
		}
	}
}

func (client *webAgentClient) handleIncomingRegister(m *wamRegister) error {
	client.Lock()
	defer client.Unlock()

	if client.endpoint != (bundle.EndpointID{}) {
		err := fmt.Errorf("register errored, an endpoint ID is already present")
		client.logger().WithField("message", m).Warn(err.Error())
		return err
	}

	eid, err := bundle.NewEndpointID(m.endpoint)
	if err != nil {
		client.logger().WithError(err).Warn("web agent client: parsing endpoint ID errored")
		return err
	}

	client.logger().WithField("endpoint", eid).Debug("web agent client: registered endpoint")
	client.endpoint = eid
	return nil
}

func (client *webAgentClient) writeMessage(msg webAgentMessage) error {
	client.Lock()
	defer client.Unlock()

	wc, err := client.conn.NextWriter(websocket.BinaryMessage)
	if err != nil {
		return err
	}

	if err := marshalCbor(msg, wc); err != nil {
		return err
	}

	return wc.Close()
}

// Endpoints this client has registered, at most one.
func (client *webAgentClient) Endpoints() []bundle.EndpointID {
	client.Lock()
	defer client.Unlock()

	if client.endpoint == (bundle.EndpointID{}) {
		return nil
	}
	return []bundle.EndpointID{client.endpoint}
}

func (client *webAgentClient) MessageReceiver() chan Message {
	return client.receiver
}

func (client *webAgentClient) MessageSender() chan Message {
	return client.sender
}
