package udp

import (
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/n7proto/dtnd/bundle"
	"github.com/n7proto/dtnd/cla"
)

// Server is an implementation of a UDP Convergence Layer server which
// accepts single-datagram bundles and forwards them to the given channel.
type Server struct {
	listenAddress string
	reportChan    chan cla.RecBundle
	endpointID    bundle.EndpointID
	permanent     bool

	stopSyn chan struct{}
	stopAck chan struct{}
}

// NewServer creates a new udp.Server for the given listen address. The
// permanent flag indicates if this Server should never be removed from the
// core.
func NewServer(listenAddress string, endpointID bundle.EndpointID, permanent bool) *Server {
	return &Server{
		listenAddress: listenAddress,
		reportChan:    make(chan cla.RecBundle),
		endpointID:    endpointID,
		permanent:     permanent,
		stopSyn:       make(chan struct{}),
		stopAck:       make(chan struct{}),
	}
}

// Start starts this Server and might return an error and a boolean
// indicating if another Start should be tried later.
func (serv *Server) Start() (error, bool) {
	udpAddr, err := net.ResolveUDPAddr("udp", serv.listenAddress)
	if err != nil {
		return err, false
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err, true
	}

	go serv.handler(conn)

	return nil, true
}

func (serv *Server) handler(conn *net.UDPConn) {
	buff := make([]byte, maxDatagramSize)

	for {
		select {
		case <-serv.stopSyn:
			_ = conn.Close()
			close(serv.reportChan)
			close(serv.stopAck)
			return

		default:
			_ = conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
			n, _, err := conn.ReadFromUDP(buff)
			if err != nil {
				continue
			}

			bndl, bErr := bundle.NewBundleFromCborBytes(buff[:n])
			if bErr != nil {
				log.WithFields(log.Fields{
					"cla":   serv,
					"error": bErr,
				}).Warn("UDP server failed to parse incoming datagram")
				continue
			}

			serv.reportChan <- cla.NewRecBundle(&bndl, serv.endpointID)
		}
	}
}

// Channel returns a channel of received bundles.
func (serv *Server) Channel() chan cla.RecBundle {
	return serv.reportChan
}

// Close shuts this Server down.
func (serv *Server) Close() {
	close(serv.stopSyn)
	<-serv.stopAck
}

// GetEndpointID returns the endpoint ID assigned to this CLA.
func (serv Server) GetEndpointID() bundle.EndpointID {
	return serv.endpointID
}

// Address should return a unique address string to both identify this
// ConvergenceReceiver and ensure it will not opened twice.
func (serv Server) Address() string {
	return "udp://" + serv.listenAddress
}

// IsPermanent returns true, if this CLA should not be removed after failures.
func (serv Server) IsPermanent() bool {
	return serv.permanent
}

func (serv Server) Name() string {
	return "udp"
}

func (serv Server) Port() uint16 {
	return cla.PortFromAddress(serv.listenAddress)
}

func (serv Server) LocalSettings() map[string]string {
	return map[string]string{"address": serv.listenAddress, "node_id": serv.endpointID.String()}
}

func (serv Server) Accepting() bool {
	return true
}

func (serv Server) String() string {
	return serv.Address()
}
