// Package udp implements a datagram-oriented Convergence Layer Adaptor. One
// UDP datagram carries exactly one bundle, bounded by the 65535 byte
// datagram limit; there is no segmentation, acknowledgement or session
// state, unlike tcpcl or mtcp.
package udp

import (
	"bytes"
	"fmt"
	"net"
	"sync"

	"github.com/n7proto/dtnd/bundle"
	"github.com/n7proto/dtnd/cla"
)

// maxDatagramSize is the largest bundle payload a single UDP datagram can
// carry, per the IPv4/IPv6 UDP datagram size limit.
const maxDatagramSize = 65535

// Client is an implementation of a UDP Convergence Layer client which sends
// bundles as single datagrams to a remote UDP CLA.
type Client struct {
	conn  net.Conn
	peer  bundle.EndpointID
	mutex sync.Mutex

	permanent bool
	address   string
}

// NewClient creates a new udp.Client, connected to the given address for the
// registered endpoint ID. The permanent flag indicates if this Client should
// never be removed from the core.
func NewClient(address string, peer bundle.EndpointID, permanent bool) *Client {
	return &Client{
		peer:      peer,
		permanent: permanent,
		address:   address,
	}
}

// Start starts this Client and might return an error and a boolean
// indicating if another Start should be tried later.
func (client *Client) Start() (error, bool) {
	conn, err := net.Dial("udp", client.address)
	if err == nil {
		client.conn = conn
	}

	return err, true
}

// Send transmits a bundle to this Client's endpoint as a single datagram.
func (client *Client) Send(bndl *bundle.Bundle) error {
	client.mutex.Lock()
	defer client.mutex.Unlock()

	buff := new(bytes.Buffer)
	if err := bndl.WriteCbor(buff); err != nil {
		return err
	}

	if buff.Len() > maxDatagramSize {
		return fmt.Errorf("udp: encoded bundle of %d bytes exceeds the %d byte datagram limit", buff.Len(), maxDatagramSize)
	}

	_, err := client.conn.Write(buff.Bytes())
	return err
}

// Close closes the Client's connection.
func (client *Client) Close() {
	client.mutex.Lock()
	defer client.mutex.Unlock()

	if client.conn != nil {
		_ = client.conn.Close()
	}
}

// GetPeerEndpointID returns the endpoint ID assigned to this CLA's peer, if
// it's known. Otherwise the zero endpoint will be returned.
func (client *Client) GetPeerEndpointID() bundle.EndpointID {
	return client.peer
}

// Address should return a unique address string to both identify this
// ConvergenceSender and ensure it will not opened twice.
func (client *Client) Address() string {
	return client.address
}

// IsPermanent returns true, if this CLA should not be removed after failures.
func (client *Client) IsPermanent() bool {
	return client.permanent
}

func (client *Client) Name() string {
	return "udp"
}

func (client *Client) Port() uint16 {
	return cla.PortFromAddress(client.address)
}

func (client *Client) LocalSettings() map[string]string {
	return map[string]string{"address": client.address, "peer": client.peer.String()}
}

func (client *Client) Accepting() bool {
	return true
}

func (client *Client) String() string {
	return fmt.Sprintf("udp://%s", client.address)
}
