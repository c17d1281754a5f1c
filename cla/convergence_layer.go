// Package cla defines two interfaces for convergence layers.
//
// The ConvergenceReceiver specifies a type which receives bundles and forwards
// those to an exposed channel.
//
// The ConvergenceSender specifies a type which sends bundles to a remote
// endpoint.
//
// An implemented convergence layer can be a ConvergenceReceiver,
// ConvergenceSender or even both. This depends on the convergence layer's
// specification and is an implemention matter.
package cla

import (
	"net"
	"strconv"

	"github.com/n7proto/dtnd/bundle"
)

// PortFromAddress extracts the numeric port from a "host:port" address
// string, returning 0 if the address carries none or is malformed. CLAs
// whose Address() is not a socket address (e.g. bbc) should not use this.
func PortFromAddress(address string) uint16 {
	_, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return 0
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return 0
	}

	return uint16(port)
}

// RecBundle is a tuple struct to attach the receiving CLA's node ID  to an
// incoming bundle. Each ConvergenceReceiver returns its received bundles as
// a channel of RecBundles.
type RecBundle struct {
	Bundle   *bundle.Bundle
	Receiver bundle.EndpointID
}

// NewRecBundle returns a new RecBundle for the given bundle and CLA.
func NewRecBundle(b *bundle.Bundle, rec bundle.EndpointID) RecBundle {
	return RecBundle{
		Bundle:   b,
		Receiver: rec,
	}
}

// Convergence is an interface to describe all kinds of Convergence Layer
// Adapters. There should not be a direct implemention of this interface. One
// must implement ConvergenceReceiver and/or ConvergenceSender, which are both
// extending this interface.
// A type can be both a ConvergenceReceiver and ConvergenceSender.
type Convergence interface {
	// Start starts this Convergence{Receiver,Sender} and might return an error
	// and a boolean indicating if another Start should be tried later.
	Start() (error, bool)

	// Close signals this Convergence{Receiver,Send} to shut down.
	Close()

	// Address should return a unique address string to both identify this
	// Convergence{Receiver,Sender} and ensure it will not opened twice.
	Address() string

	// IsPermanent returns true, if this CLA should not be removed after failures.
	IsPermanent() bool

	// Name returns the CLA scheme this adapter implements, e.g. "tcpcl" or
	// "mtcp". It is the human-readable counterpart to CLAType.
	Name() string

	// Port returns the TCP/UDP port this CLA listens on or dials, or 0 if the
	// concept does not apply (e.g. a broadcast-medium CLA).
	Port() uint16

	// LocalSettings returns the configuration this CLA instance was created
	// with, as a flat string map suitable for logging or for advertising in
	// a discovery beacon's service block.
	LocalSettings() map[string]string

	// Accepting reports whether this CLA currently accepts new work: a false
	// result excludes it from beacon advertisements and from the set of
	// ConvergenceSenders considered by a routing algorithm. Pull-mode CLAs,
	// which never accept a push, are the prototypical case.
	Accepting() bool
}

// ConvergenceReceiver is an interface for types which are able to receive
// bundles and write them to a channel. This channel can be accessed through
// the Channel method.
type ConvergenceReceiver interface {
	Convergence

	// Channel returns a channel of received bundles.
	Channel() chan RecBundle

	// GetEndpointID returns the endpoint ID assigned to this CLA.
	GetEndpointID() bundle.EndpointID
}

// ConvergenceSender is an interface for types which are able to transmit
// bundles to another node.
type ConvergenceSender interface {
	Convergence

	// Send transmits a bundle to this ConvergenceSender's endpoint. This method
	// should be thread safe and finish transmitting one bundle, before acting
	// on the next. This could be achieved by using a mutex or the like.
	Send(bndl *bundle.Bundle) error

	// GetPeerEndpointID returns the endpoint ID assigned to this CLA's peer,
	// if it's known. Otherwise the zero endpoint will be returned.
	GetPeerEndpointID() bundle.EndpointID
}

// Convergable is anything which can be registered at a Manager, i.e., a
// Convergence Layer Adapter implementing Convergence.
type Convergable = Convergence
