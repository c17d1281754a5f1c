package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/n7proto/dtnd/bundle"
	"github.com/n7proto/dtnd/cla"
	"github.com/n7proto/dtnd/storage"
)

// pullInterval is how often a PullClient polls its peer's digest.
const pullInterval = 30 * time.Second

// PullClient is a pull-mode HTTP Convergence Layer client. It periodically
// fetches its peer's bundle digest; on a change it fetches the peer's known
// IDs and retrieves whatever bundles are missing from the local store.
type PullClient struct {
	address    string
	peer       bundle.EndpointID
	permanent  bool
	store      *storage.Store
	reportChan chan cla.RecBundle

	httpClient *http.Client
	lastDigest string
	stopSyn    chan struct{}
	stopAck    chan struct{}
}

// NewPullClient creates a new PullClient polling the given peer address. The
// store is consulted to avoid re-fetching bundles already held locally.
func NewPullClient(address string, peer bundle.EndpointID, permanent bool, store *storage.Store) *PullClient {
	return &PullClient{
		address:    address,
		peer:       peer,
		permanent:  permanent,
		store:      store,
		reportChan: make(chan cla.RecBundle),
		httpClient: &http.Client{Timeout: pushTimeout},
		stopSyn:    make(chan struct{}),
		stopAck:    make(chan struct{}),
	}
}

// Start starts this PullClient's polling loop.
func (client *PullClient) Start() (error, bool) {
	go client.loop()
	return nil, true
}

func (client *PullClient) loop() {
	ticker := time.NewTicker(pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-client.stopSyn:
			close(client.reportChan)
			close(client.stopAck)
			return

		case <-ticker.C:
			client.poll()
		}
	}
}

func (client *PullClient) poll() {
	digest, err := client.fetchDigest()
	if err != nil {
		log.WithFields(log.Fields{
			"cla":   client,
			"error": err,
		}).Warn("httppull failed to fetch peer digest")
		return
	}

	if digest == client.lastDigest {
		return
	}
	client.lastDigest = digest

	ids, err := client.fetchIds()
	if err != nil {
		log.WithFields(log.Fields{
			"cla":   client,
			"error": err,
		}).Warn("httppull failed to fetch peer bundle IDs")
		return
	}

	for _, id := range ids {
		if client.store != nil {
			if _, err := client.store.QueryByItemId(id); err == nil {
				continue
			}
		}

		bndl, err := client.fetchBundle(id)
		if err != nil {
			log.WithFields(log.Fields{
				"cla":   client,
				"id":    id,
				"error": err,
			}).Warn("httppull failed to fetch bundle")
			continue
		}

		client.reportChan <- cla.NewRecBundle(&bndl, client.peer)
	}
}

func (client *PullClient) fetchDigest() (digest string, err error) {
	resp, err := client.httpClient.Get(fmt.Sprintf("http://%s/digest", client.address))
	if err != nil {
		return
	}
	defer resp.Body.Close()

	var body struct {
		Digest string `json:"digest"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return
	}
	digest = body.Digest
	return
}

func (client *PullClient) fetchIds() (ids []string, err error) {
	resp, err := client.httpClient.Get(fmt.Sprintf("http://%s/bundles", client.address))
	if err != nil {
		return
	}
	defer resp.Body.Close()

	err = json.NewDecoder(resp.Body).Decode(&ids)
	return
}

func (client *PullClient) fetchBundle(id string) (b bundle.Bundle, err error) {
	resp, err := client.httpClient.Get(fmt.Sprintf("http://%s/bundle/%s", client.address, id))
	if err != nil {
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("httppull: peer responded with status %s for bundle %s", resp.Status, id)
		return
	}

	return bundle.NewBundleFromCborReader(resp.Body)
}

// Channel returns a channel of received bundles.
func (client *PullClient) Channel() chan cla.RecBundle {
	return client.reportChan
}

// Close stops this PullClient's polling loop.
func (client *PullClient) Close() {
	close(client.stopSyn)
	<-client.stopAck
}

// GetEndpointID returns the endpoint ID assigned to this CLA.
func (client *PullClient) GetEndpointID() bundle.EndpointID {
	return client.peer
}

// Address should return a unique address string to both identify this
// ConvergenceReceiver and ensure it will not opened twice.
func (client *PullClient) Address() string {
	return fmt.Sprintf("httppull://%s", client.address)
}

// IsPermanent returns true, if this CLA should not be removed after failures.
func (client *PullClient) IsPermanent() bool {
	return client.permanent
}

func (client *PullClient) Name() string {
	return "httppull"
}

func (client *PullClient) Port() uint16 {
	return cla.PortFromAddress(client.address)
}

func (client *PullClient) LocalSettings() map[string]string {
	return map[string]string{"address": client.address, "peer": client.peer.String()}
}

// Accepting is false: a PullClient only ever initiates outbound polls, so it
// must be excluded from beacon advertisements and never chosen as a sender.
func (client *PullClient) Accepting() bool {
	return false
}

func (client *PullClient) String() string {
	return client.Address()
}
