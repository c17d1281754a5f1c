// Package discovery contains code for peer/neighbor discovery of other DTN
// nodes through UDP multicast beacons. mDNS is not used: no service is
// registered or browsed.
package discovery

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dtn7/cboring"

	"github.com/n7proto/dtnd/bundle"
	"github.com/n7proto/dtnd/cla"
)

const (
	// beaconAddress4 is the default multicast IPv4 address used for beaconing.
	beaconAddress4 = "224.23.23.23"

	// beaconAddress6 is the default multicast IPv6 address used for beaconing.
	beaconAddress6 = "ff02::23"

	// beaconPort is the default multicast UDP port used for beaconing.
	beaconPort = 35039

	// mdnsServiceType is an mDNS service type name; the Manager does not
	// register beacons under it.
	mdnsServiceType = "_dtn._udp"
)

// Beacon advertises a single CLA a node is reachable through.
type Beacon struct {
	Type     cla.CLAType
	Endpoint bundle.EndpointID
	Port     uint
}

// UnmarshalBeacons creates a new array of Beacon from a CBOR byte string.
func UnmarshalBeacons(data []byte) (beacons []Beacon, err error) {
	buff := bytes.NewBuffer(data)

	if l, cErr := cboring.ReadArrayLength(buff); cErr != nil {
		err = cErr
		return
	} else {
		beacons = make([]Beacon, l)
	}

	for i := 0; i < len(beacons); i++ {
		if cErr := cboring.Unmarshal(&beacons[i], buff); cErr != nil {
			err = fmt.Errorf("unmarshalling Beacon %d failed: %v", i, cErr)
			return
		}
	}

	return
}

// MarshalBeacons into a CBOR byte string.
func MarshalBeacons(beacons []Beacon) (data []byte, err error) {
	buff := new(bytes.Buffer)

	if cErr := cboring.WriteArrayLength(uint64(len(beacons)), buff); cErr != nil {
		err = cErr
		return
	}

	for i := range beacons {
		beacon := beacons[i]
		if cErr := cboring.Marshal(&beacon, buff); cErr != nil {
			err = fmt.Errorf("marshalling Beacon %d (%v) failed: %v", i, beacon, cErr)
			return
		}
	}

	data = buff.Bytes()
	return
}

func (beacon *Beacon) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(uint64(beacon.Type), w); err != nil {
		return err
	}
	if err := cboring.Marshal(&beacon.Endpoint, w); err != nil {
		return fmt.Errorf("marshalling endpoint failed: %v", err)
	}
	if err := cboring.WriteUInt(uint64(beacon.Port), w); err != nil {
		return err
	}

	return nil
}

func (beacon *Beacon) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 3 {
		return fmt.Errorf("wrong array length: %d instead of 3", l)
	}

	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		beacon.Type = cla.CLAType(n)
	}
	if err := cboring.Unmarshal(&beacon.Endpoint, r); err != nil {
		return fmt.Errorf("unmarshalling endpoint failed: %v", err)
	}
	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		beacon.Port = uint(n)
	}

	return nil
}

func (beacon Beacon) String() string {
	var builder strings.Builder

	fmt.Fprintf(&builder, "Beacon(")

	switch beacon.Type {
	case cla.TCPCL:
		fmt.Fprintf(&builder, "TCPCL")
	case cla.MTCP:
		fmt.Fprintf(&builder, "MTCP")
	case cla.BBC:
		fmt.Fprintf(&builder, "BBC")
	case cla.UDP:
		fmt.Fprintf(&builder, "UDP")
	case cla.HTTP:
		fmt.Fprintf(&builder, "HTTP")
	case cla.HTTPPull:
		fmt.Fprintf(&builder, "HTTPPull")
	default:
		fmt.Fprintf(&builder, "Unknown CLA")
	}

	fmt.Fprintf(&builder, ",%v,%d)", beacon.Endpoint, beacon.Port)

	return builder.String()
}
