// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"sync"

	"github.com/n7proto/dtnd/bundle"
)

// MuxAgent multiplexes a set of child ApplicationAgents behind a single
// ApplicationAgent, e.g. one webAgentClient per connected websocket, or the
// whole agent package behind the core package's AgentManager.
type MuxAgent struct {
	sync.Mutex

	receiver chan Message
	sender   chan Message

	children []ApplicationAgent
}

// NewMuxAgent starts a MuxAgent with no children registered yet.
func NewMuxAgent() *MuxAgent {
	mux := &MuxAgent{
		receiver: make(chan Message),
		sender:   make(chan Message),
	}

	go mux.relay()

	return mux
}

// relay fans an incoming Message out to every child whose endpoint set
// matches the message's recipients, or to all children for a broadcast
// (nil Recipients).
func (mux *MuxAgent) relay() {
	defer close(mux.sender)

	for msg := range mux.receiver {
		mux.Lock()
		for _, child := range mux.children {
			if rec := msg.Recipients(); rec == nil || AppAgentContainsEndpoint(child, rec) {
				child.MessageReceiver() <- msg
			}
		}
		mux.Unlock()

		if _, isShutdown := msg.(ShutdownMessage); isShutdown {
			return
		}
	}
}

// Register adds a child ApplicationAgent. It is automatically removed once
// its MessageSender channel closes or it broadcasts a ShutdownMessage.
func (mux *MuxAgent) Register(child ApplicationAgent) {
	mux.Lock()
	defer mux.Unlock()

	mux.children = append(mux.children, child)
	go mux.drainChild(child)
}

func (mux *MuxAgent) drainChild(child ApplicationAgent) {
	for msg := range child.MessageSender() {
		if _, isShutdown := msg.(ShutdownMessage); isShutdown {
			break
		}

		mux.sender <- msg
	}

	mux.unregister(child)
}

func (mux *MuxAgent) unregister(child ApplicationAgent) {
	mux.Lock()
	defer mux.Unlock()

	close(child.MessageReceiver())

	for i, c := range mux.children {
		if c == child {
			mux.children = append(mux.children[:i], mux.children[i+1:]...)
			break
		}
	}
}

// Endpoints of every currently registered child.
func (mux *MuxAgent) Endpoints() (endpoints []bundle.EndpointID) {
	mux.Lock()
	defer mux.Unlock()

	for _, child := range mux.children {
		endpoints = append(endpoints, child.Endpoints()...)
	}
	return
}

func (mux *MuxAgent) MessageReceiver() chan Message {
	return mux.receiver
}

func (mux *MuxAgent) MessageSender() chan Message {
	return mux.sender
}
