package http

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/n7proto/dtnd/bundle"
	"github.com/n7proto/dtnd/cla"
	"github.com/n7proto/dtnd/storage"
)

// PushServer is a push-mode HTTP Convergence Layer receiver. It exposes a
// POST /push endpoint accepting a CBOR-encoded bundle, and GET /digest,
// /bundles and /bundle/{id} endpoints so a remote httppull CLA can discover
// and fetch what this node is holding.
type PushServer struct {
	listenAddress string
	endpointID    bundle.EndpointID
	permanent     bool
	store         *storage.Store

	reportChan chan cla.RecBundle
	httpServer *http.Server
}

// NewPushServer creates a new PushServer for the given listen address. The
// store, if non-nil, backs the pull-mode digest/bundles/bundle endpoints.
func NewPushServer(listenAddress string, endpointID bundle.EndpointID, permanent bool, store *storage.Store) *PushServer {
	return &PushServer{
		listenAddress: listenAddress,
		endpointID:    endpointID,
		permanent:     permanent,
		store:         store,
		reportChan:    make(chan cla.RecBundle),
	}
}

// Start starts this PushServer and might return an error and a boolean
// indicating if another Start should be tried later.
func (serv *PushServer) Start() (error, bool) {
	router := mux.NewRouter()
	router.HandleFunc("/push", serv.handlePush).Methods(http.MethodPost)
	router.HandleFunc("/digest", serv.handleDigest).Methods(http.MethodGet)
	router.HandleFunc("/bundles", serv.handleBundles).Methods(http.MethodGet)
	router.HandleFunc("/bundle/{id}", serv.handleBundle).Methods(http.MethodGet)

	serv.httpServer = &http.Server{
		Addr:    serv.listenAddress,
		Handler: router,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- serv.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err, true
	default:
		return nil, true
	}
}

func (serv *PushServer) handlePush(w http.ResponseWriter, r *http.Request) {
	data, err := ioutil.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	bndl, err := bundle.NewBundleFromCborBytes(data)
	if err != nil {
		log.WithError(err).Warn("HTTP push server failed to parse incoming bundle")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	serv.reportChan <- cla.NewRecBundle(&bndl, serv.endpointID)
	w.WriteHeader(http.StatusOK)
}

func (serv *PushServer) handleDigest(w http.ResponseWriter, _ *http.Request) {
	if serv.store == nil {
		http.Error(w, "no store available", http.StatusServiceUnavailable)
		return
	}

	digest, err := serv.store.Digest()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"digest": digest})
}

func (serv *PushServer) handleBundles(w http.ResponseWriter, _ *http.Request) {
	if serv.store == nil {
		http.Error(w, "no store available", http.StatusServiceUnavailable)
		return
	}

	ids, err := serv.store.KnownIds()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ids)
}

func (serv *PushServer) handleBundle(w http.ResponseWriter, r *http.Request) {
	if serv.store == nil {
		http.Error(w, "no store available", http.StatusServiceUnavailable)
		return
	}

	id := mux.Vars(r)["id"]

	bi, err := serv.store.QueryByItemId(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	bndl, err := bi.Load()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/cbor")
	if err := bndl.WriteCbor(w); err != nil {
		log.WithError(err).Warn("HTTP server failed to write requested bundle")
	}
}

// Channel returns a channel of received bundles.
func (serv *PushServer) Channel() chan cla.RecBundle {
	return serv.reportChan
}

// Close shuts this PushServer down.
func (serv *PushServer) Close() {
	if serv.httpServer != nil {
		_ = serv.httpServer.Shutdown(context.Background())
	}
	close(serv.reportChan)
}

// GetEndpointID returns the endpoint ID assigned to this CLA.
func (serv *PushServer) GetEndpointID() bundle.EndpointID {
	return serv.endpointID
}

// Address should return a unique address string to both identify this
// ConvergenceReceiver and ensure it will not opened twice.
func (serv *PushServer) Address() string {
	return "http://" + serv.listenAddress
}

// IsPermanent returns true, if this CLA should not be removed after failures.
func (serv *PushServer) IsPermanent() bool {
	return serv.permanent
}

func (serv *PushServer) Name() string {
	return "http"
}

func (serv *PushServer) Port() uint16 {
	return cla.PortFromAddress(serv.listenAddress)
}

func (serv *PushServer) LocalSettings() map[string]string {
	return map[string]string{"address": serv.listenAddress, "node_id": serv.endpointID.String()}
}

func (serv *PushServer) Accepting() bool {
	return true
}

func (serv *PushServer) String() string {
	return serv.Address()
}
