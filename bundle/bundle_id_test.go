package bundle

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/dtn7/cboring"
)

func TestBundleIDCbor(t *testing.T) {
	tests := []struct {
		from BundleID
		to   BundleID
		l    uint64
	}{
		{
			from: BundleID{
				SourceNode:  MustNewEndpointID("dtn://foo/bar"),
				Destination: MustNewEndpointID("dtn://baz/"),
				Timestamp:   NewCreationTimestamp(23, 0),
				IsFragment:  false,
			},
			to: BundleID{IsFragment: false},
			l:  3,
		},
		{
			from: BundleID{
				SourceNode:      MustNewEndpointID("dtn://foo/bar"),
				Destination:     MustNewEndpointID("dtn://baz/"),
				Timestamp:       NewCreationTimestamp(23, 0),
				IsFragment:      true,
				FragmentOffset:  23,
				TotalDataLength: 42,
			},
			to: BundleID{IsFragment: true},
			l:  5,
		},
	}

	for _, test := range tests {
		if l := test.from.Len(); l != test.l {
			t.Fatalf("Len mismatches: %d != %d", l, test.l)
		}

		buff := new(bytes.Buffer)
		if err := cboring.Marshal(&test.from, buff); err != nil {
			t.Fatal(err)
		}
		if err := cboring.Unmarshal(&test.to, buff); err != nil {
			t.Fatal(err)
		}

		if !reflect.DeepEqual(test.to, test.from) {
			t.Fatalf("%v != %v", test.to, test.from)
		}
	}
}

func TestBundleIDString(t *testing.T) {
	bid := BundleID{
		SourceNode:  MustNewEndpointID("dtn://src/"),
		Destination: MustNewEndpointID("dtn://dst/"),
		Timestamp:   NewCreationTimestamp(100, 1),
	}

	want := bid.SourceNode.String() + "-100-1-" + bid.Destination.String()
	if got := bid.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}

	bid.IsFragment = true
	bid.FragmentOffset = 42
	if got := bid.String(); got != want+"-42" {
		t.Fatalf("fragment String() = %q, want %q", got, want+"-42")
	}
}

func TestBundleIDScrub(t *testing.T) {
	bid := BundleID{
		SourceNode:      MustNewEndpointID("dtn://src/"),
		Destination:     MustNewEndpointID("dtn://dst/"),
		Timestamp:       NewCreationTimestamp(100, 1),
		IsFragment:      true,
		FragmentOffset:  10,
		TotalDataLength: 100,
	}

	scrubbed := bid.Scrub()
	if scrubbed.IsFragment || scrubbed.FragmentOffset != 0 || scrubbed.TotalDataLength != 0 {
		t.Fatalf("Scrub() did not clear fragmentation fields: %v", scrubbed)
	}
	if scrubbed.SourceNode != bid.SourceNode || scrubbed.Destination != bid.Destination {
		t.Fatalf("Scrub() altered identity fields: %v", scrubbed)
	}
}
