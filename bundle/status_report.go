package bundle

import (
	"fmt"
	"io"
	"strings"

	"github.com/dtn7/cboring"
)

// ARTypeStatusReport is the AdministrativeRecord type code for a StatusReport,
// as defined in section 6.1.1.
const ARTypeStatusReport uint64 = 1

// BundleStatusItem is a single entry in a StatusReport's bundle status
// information array.
type BundleStatusItem struct {
	Asserted        bool
	Time            DtnTime
	StatusRequested bool
}

// NewBundleStatusItem returns a new BundleStatusItem, indicating an optional
// assertion, but no status time request.
func NewBundleStatusItem(asserted bool) BundleStatusItem {
	return BundleStatusItem{
		Asserted:        asserted,
		Time:            DtnTimeEpoch,
		StatusRequested: false,
	}
}

// NewTimeReportingBundleStatusItem returns a new BundleStatusItem, indicating
// both a positive assertion and a requested status time report.
func NewTimeReportingBundleStatusItem(time DtnTime) BundleStatusItem {
	return BundleStatusItem{
		Asserted:        true,
		Time:            time,
		StatusRequested: true,
	}
}

func (bsi *BundleStatusItem) MarshalCbor(w io.Writer) error {
	var arrLen uint64 = 1
	if bsi.Asserted && bsi.StatusRequested {
		arrLen = 2
	}

	if err := cboring.WriteArrayLength(arrLen, w); err != nil {
		return err
	}

	if err := cboring.WriteBoolean(bsi.Asserted, w); err != nil {
		return err
	}

	if arrLen == 2 {
		if err := cboring.WriteUInt(uint64(bsi.Time), w); err != nil {
			return err
		}
	}

	return nil
}

func (bsi *BundleStatusItem) UnmarshalCbor(r io.Reader) error {
	var arrLen uint64
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 1 && n != 2 {
		return fmt.Errorf("BundleStatusItem: array's length is %d, not 1 or 2", n)
	} else {
		arrLen = n
	}

	if b, err := cboring.ReadBoolean(r); err != nil {
		return err
	} else {
		bsi.Asserted = b
	}

	if arrLen == 2 {
		if n, err := cboring.ReadUInt(r); err != nil {
			return err
		} else {
			bsi.Time = DtnTime(n)
		}

		bsi.StatusRequested = true
	} else {
		bsi.StatusRequested = false
	}

	return nil
}

func (bsi BundleStatusItem) String() string {
	if !bsi.Asserted {
		return fmt.Sprintf("BundleStatusItem(%t)", bsi.Asserted)
	}
	return fmt.Sprintf("BundleStatusItem(%t, %v)", bsi.Asserted, bsi.Time)
}

// StatusReportReason is the bundle status report reason code, carried as the
// report's reason field.
type StatusReportReason uint64

const (
	// NoInformation: no additional information.
	NoInformation StatusReportReason = 0

	// LifetimeExpired: lifetime expired.
	LifetimeExpired StatusReportReason = 1

	// ForwardUnidirectionalLink: forwarded over unidirectional link.
	ForwardUnidirectionalLink StatusReportReason = 2

	// TransmissionCanceled: transmission canceled.
	TransmissionCanceled StatusReportReason = 3

	// DepletedStorage: depleted storage.
	DepletedStorage StatusReportReason = 4

	// DestEndpointUnintelligible: destination endpoint ID unintelligible.
	DestEndpointUnintelligible StatusReportReason = 5

	// NoRouteToDestination: no known route to destination from here.
	NoRouteToDestination StatusReportReason = 6

	// NoNextNodeContact: no timely contact with next node on route.
	NoNextNodeContact StatusReportReason = 7

	// BlockUnintelligible: block unintelligible.
	BlockUnintelligible StatusReportReason = 8

	// HopLimitExceeded: hop limit exceeded.
	HopLimitExceeded StatusReportReason = 9

	// TrafficPared: traffic pared, e.g. status reports.
	TrafficPared StatusReportReason = 10

	// BlockUnsupported: block unsupported.
	BlockUnsupported StatusReportReason = 11
)

func (srr StatusReportReason) String() string {
	switch srr {
	case NoInformation:
		return "No additional information"
	case LifetimeExpired:
		return "Lifetime expired"
	case ForwardUnidirectionalLink:
		return "Forward over unidirectional link"
	case TransmissionCanceled:
		return "Transmission canceled"
	case DepletedStorage:
		return "Depleted storage"
	case DestEndpointUnintelligible:
		return "Destination endpoint ID unintelligible"
	case NoRouteToDestination:
		return "No known route to destination from here"
	case NoNextNodeContact:
		return "No timely contact with next node on route"
	case BlockUnintelligible:
		return "Block unintelligible"
	case HopLimitExceeded:
		return "Hop limit exceeded"
	case TrafficPared:
		return "Traffic pared"
	case BlockUnsupported:
		return "Block unsupported"
	default:
		return "unknown"
	}
}

// StatusInformationPos describes the different bundle status information
// entries. Each bundle status report must contain at least these.
type StatusInformationPos int

const (
	// maxStatusInformationPos is the amount of different StatusInformationPos.
	maxStatusInformationPos int = 4

	// ReceivedBundle: the reporting node received this bundle.
	ReceivedBundle StatusInformationPos = 0

	// ForwardedBundle: the reporting node forwarded this bundle.
	ForwardedBundle StatusInformationPos = 1

	// DeliveredBundle: the reporting node delivered this bundle.
	DeliveredBundle StatusInformationPos = 2

	// DeletedBundle: the reporting node deleted this bundle.
	DeletedBundle StatusInformationPos = 3
)

func (sip StatusInformationPos) String() string {
	switch sip {
	case ReceivedBundle:
		return "received bundle"
	case ForwardedBundle:
		return "forwarded bundle"
	case DeliveredBundle:
		return "delivered bundle"
	case DeletedBundle:
		return "deleted bundle"
	default:
		return "unknown"
	}
}

// StatusReport is the bundle status report, carried as the content of an
// administrative record.
type StatusReport struct {
	StatusInformation []BundleStatusItem
	ReportReason      StatusReportReason
	RefBundle         BundleID
}

// NewStatusReport creates a bundle status report for the given bundle and
// StatusInformationPos, setting the matching bundle status item and, if
// requested by the bundle's control flags, a reporting timestamp.
func NewStatusReport(bndl Bundle, statusItem StatusInformationPos, reason StatusReportReason, time DtnTime) (report *StatusReport) {
	report = &StatusReport{
		StatusInformation: make([]BundleStatusItem, maxStatusInformationPos),
		ReportReason:      reason,
		RefBundle:         bndl.ID(),
	}

	for i := 0; i < maxStatusInformationPos; i++ {
		sip := StatusInformationPos(i)

		switch {
		case sip == statusItem && bndl.PrimaryBlock.BundleControlFlags.Has(RequestStatusTime):
			report.StatusInformation[i] = NewTimeReportingBundleStatusItem(time)
		case sip == statusItem:
			report.StatusInformation[i] = NewBundleStatusItem(true)
		default:
			report.StatusInformation[i] = NewBundleStatusItem(false)
		}
	}
	return
}

// StatusInformations returns the asserted StatusInformationPos entries.
func (sr StatusReport) StatusInformations() (sips []StatusInformationPos) {
	for i := 0; i < len(sr.StatusInformation); i++ {
		if sr.StatusInformation[i].Asserted {
			sips = append(sips, StatusInformationPos(i))
		}
	}
	return
}

func (sr *StatusReport) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2+sr.RefBundle.Len(), w); err != nil {
		return err
	}

	if err := cboring.WriteArrayLength(uint64(len(sr.StatusInformation)), w); err != nil {
		return err
	}
	for _, si := range sr.StatusInformation {
		statusInformation := si
		if err := cboring.Marshal(&statusInformation, w); err != nil {
			return fmt.Errorf("Marshalling BundleStatusItem failed: %v", err)
		}
	}

	if err := cboring.WriteUInt(uint64(sr.ReportReason), w); err != nil {
		return err
	}

	if err := cboring.Marshal(&sr.RefBundle, w); err != nil {
		return fmt.Errorf("Marshalling BundleID failed: %v", err)
	}

	return nil
}

func (sr *StatusReport) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n == 5 {
		sr.RefBundle.IsFragment = false
	} else if n == 7 {
		sr.RefBundle.IsFragment = true
	} else {
		return fmt.Errorf("StatusReport: expected array of length 5 or 7, got %d", n)
	}

	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else {
		sr.StatusInformation = make([]BundleStatusItem, int(n))
	}
	for i := 0; i < len(sr.StatusInformation); i++ {
		if err := cboring.Unmarshal(&sr.StatusInformation[i], r); err != nil {
			return fmt.Errorf("Unmarshalling BundleStatusItem failed: %v", err)
		}
	}

	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		sr.ReportReason = StatusReportReason(n)
	}

	if err := cboring.Unmarshal(&sr.RefBundle, r); err != nil {
		return fmt.Errorf("Unmarshalling BundleID failed: %v", err)
	}

	return nil
}

// RecordTypeCode returns the AdministrativeRecord type code for a StatusReport.
func (sr *StatusReport) RecordTypeCode() uint64 {
	return ARTypeStatusReport
}

func (sr StatusReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "StatusReport([")

	for i := 0; i < len(sr.StatusInformation); i++ {
		si := sr.StatusInformation[i]
		sip := StatusInformationPos(i)

		if !si.Asserted {
			continue
		}

		if si.Time == DtnTimeEpoch {
			fmt.Fprintf(&b, "%v,", sip)
		} else {
			fmt.Fprintf(&b, "%v %v,", sip, si.Time)
		}
	}
	fmt.Fprintf(&b, "], ")
	fmt.Fprintf(&b, "%v, %v", sr.ReportReason, sr.RefBundle)

	return b.String()
}
