package discovery

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/schollz/peerdiscovery"

	"github.com/n7proto/dtnd/bundle"
	"github.com/n7proto/dtnd/cla"
	"github.com/n7proto/dtnd/cla/http"
	"github.com/n7proto/dtnd/cla/mtcp"
	"github.com/n7proto/dtnd/cla/tcpcl"
	"github.com/n7proto/dtnd/cla/udp"
)

// Manager publishes and receives Beacons over UDP multicast, registering
// discovered peers as new Convergence Layer Adaptors through RegisterFunc.
type Manager struct {
	NodeId       bundle.EndpointID
	RegisterFunc func(cla.Convergable)

	stopChan4 chan struct{}
	stopChan6 chan struct{}
}

// NewManager creates and starts a Manager broadcasting the given Beacons at
// the requested interval, and listening for Beacons from other nodes.
func NewManager(
	nodeId bundle.EndpointID, registerFunc func(cla.Convergable),
	beacons []Beacon, beaconInterval time.Duration,
	ipv4, ipv6 bool) (*Manager, error) {

	manager := &Manager{
		NodeId:       nodeId,
		RegisterFunc: registerFunc,
	}
	if ipv4 {
		manager.stopChan4 = make(chan struct{})
	}
	if ipv6 {
		manager.stopChan6 = make(chan struct{})
	}

	log.WithFields(log.Fields{
		"interval": beaconInterval,
		"IPv4":     ipv4,
		"IPv6":     ipv6,
		"beacons":  beacons,
	}).Info("Starting discovery Manager")

	msg, err := MarshalBeacons(beacons)
	if err != nil {
		return nil, err
	}

	sets := []struct {
		active           bool
		multicastAddress string
		stopChan         chan struct{}
		ipVersion        peerdiscovery.IPVersion
		notify           func(discovered peerdiscovery.Discovered)
	}{
		{ipv4, beaconAddress4, manager.stopChan4, peerdiscovery.IPv4, manager.notify},
		{ipv6, beaconAddress6, manager.stopChan6, peerdiscovery.IPv6, manager.notify6},
	}

	for _, set := range sets {
		if !set.active {
			continue
		}

		settings := peerdiscovery.Settings{
			Limit:            -1,
			Port:             fmt.Sprintf("%d", beaconPort),
			MulticastAddress: set.multicastAddress,
			Payload:          msg,
			Delay:            beaconInterval,
			TimeLimit:        -1,
			StopChan:         set.stopChan,
			AllowSelf:        true,
			IPVersion:        set.ipVersion,
			Notify:           set.notify,
		}

		discoverErrChan := make(chan error)
		go func() {
			_, discoverErr := peerdiscovery.Discover(settings)
			discoverErrChan <- discoverErr
		}()

		select {
		case discoverErr := <-discoverErrChan:
			if discoverErr != nil {
				return nil, discoverErr
			}

		case <-time.After(time.Second):
			break
		}
	}

	return manager, nil
}

func (manager *Manager) notify6(discovered peerdiscovery.Discovered) {
	discovered.Address = fmt.Sprintf("[%s]", discovered.Address)
	manager.notify(discovered)
}

func (manager *Manager) notify(discovered peerdiscovery.Discovered) {
	beacons, err := UnmarshalBeacons(discovered.Payload)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"discovery": manager,
			"peer":      discovered.Address,
		}).Warn("Discovery failed to parse incoming beacon")

		return
	}

	for _, beacon := range beacons {
		go manager.handleBeacon(beacon, discovered.Address)
	}
}

func (manager *Manager) handleBeacon(beacon Beacon, addr string) {
	log.WithFields(log.Fields{
		"discovery": manager,
		"peer":      addr,
		"beacon":    beacon,
	}).Debug("Discovery received a beacon")

	if manager.NodeId.SameNode(beacon.Endpoint) {
		return
	}

	var convergable cla.Convergable
	switch beacon.Type {
	case cla.MTCP:
		convergable = mtcp.NewMTCPClient(fmt.Sprintf("%s:%d", addr, beacon.Port), beacon.Endpoint, false)

	case cla.TCPCL:
		convergable = tcpcl.DialTCP(fmt.Sprintf("%s:%d", addr, beacon.Port), beacon.Endpoint, false)

	case cla.UDP:
		convergable = udp.NewClient(fmt.Sprintf("%s:%d", addr, beacon.Port), beacon.Endpoint, false)

	case cla.HTTP:
		convergable = http.NewPushClient(fmt.Sprintf("%s:%d", addr, beacon.Port), beacon.Endpoint, false)

	default:
		log.WithFields(log.Fields{
			"discovery": manager,
			"peer":      addr,
			"type":      beacon.Type,
		}).Warn("Beacon's CLA type is unknown or unsupported for auto-registration")
		return
	}

	manager.RegisterFunc(convergable)
}

// Close this Manager.
func (manager *Manager) Close() {
	for _, c := range []chan struct{}{manager.stopChan4, manager.stopChan6} {
		if c != nil {
			c <- struct{}{}
		}
	}
}
