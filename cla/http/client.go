// Package http implements two uniform Convergence Layer Adaptors built on
// top of net/http: a push-mode CLA that POSTs raw bundle bytes to a peer's
// /push endpoint, and a pull-mode CLA that periodically polls a peer's
// bundle digest and fetches whatever is missing locally.
package http

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/n7proto/dtnd/bundle"
	"github.com/n7proto/dtnd/cla"
)

// pushTimeout bounds how long a single bundle transfer may take, per the
// uniform CLA contract's 5 second HTTP timeout.
const pushTimeout = 5 * time.Second

// PushClient is a push-mode HTTP Convergence Layer client. Each Send POSTs
// the CBOR-encoded bundle to the peer's /push endpoint.
type PushClient struct {
	peer      bundle.EndpointID
	address   string
	permanent bool

	httpClient *http.Client
}

// NewPushClient creates a new PushClient addressing the given peer.
func NewPushClient(address string, peer bundle.EndpointID, permanent bool) *PushClient {
	return &PushClient{
		peer:      peer,
		address:   address,
		permanent: permanent,
		httpClient: &http.Client{
			Timeout: pushTimeout,
		},
	}
}

// Start starts this PushClient and might return an error and a boolean
// indicating if another Start should be tried later.
func (client *PushClient) Start() (error, bool) {
	return nil, true
}

// Send transmits a bundle to this PushClient's endpoint.
func (client *PushClient) Send(bndl *bundle.Bundle) error {
	buff := new(bytes.Buffer)
	if err := bndl.WriteCbor(buff); err != nil {
		return err
	}

	resp, err := client.httpClient.Post(fmt.Sprintf("http://%s/push", client.address), "application/cbor", buff)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http push: peer responded with status %s", resp.Status)
	}
	return nil
}

// Close closes this PushClient. There is no persistent connection to tear
// down; each Send uses its own short-lived HTTP request.
func (client *PushClient) Close() {}

// GetPeerEndpointID returns the endpoint ID assigned to this CLA's peer, if
// it's known. Otherwise the zero endpoint will be returned.
func (client *PushClient) GetPeerEndpointID() bundle.EndpointID {
	return client.peer
}

// Address should return a unique address string to both identify this
// ConvergenceSender and ensure it will not opened twice.
func (client *PushClient) Address() string {
	return client.address
}

// IsPermanent returns true, if this CLA should not be removed after failures.
func (client *PushClient) IsPermanent() bool {
	return client.permanent
}

func (client *PushClient) Name() string {
	return "http"
}

func (client *PushClient) Port() uint16 {
	return cla.PortFromAddress(client.address)
}

func (client *PushClient) LocalSettings() map[string]string {
	return map[string]string{"address": client.address, "peer": client.peer.String()}
}

func (client *PushClient) Accepting() bool {
	return true
}

func (client *PushClient) String() string {
	return fmt.Sprintf("http://%s", client.address)
}
