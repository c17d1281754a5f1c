// Package bundle provides a library for interaction with Bundles as defined
// in the Bundle Protocol Version 7 (draft-ietf-dtn-bpbis-12.txt). This includes
// Bundle creation, modification, serialization and deserialization.
//
// New Bundles can be created by a combination of the NewBundle function with
// the NewPrimaryBlock and different New* functions for canonical blocks.
//
//   var bndl, err = NewBundle(
//     NewPrimaryBlock(
//       MustNotFragmented,
//       MustNewEndpointID("dtn://dest/"), MustNewEndpointID("dtn://src/"),
//       NewCreationTimestamp(DtnTimeEpoch, 0), 24 * 60 * 60),
//     []CanonicalBlock{
//       NewCanonicalBlock(2, DeleteBundle, NewBundleAgeBlock(0)),
//       NewCanonicalBlock(1, 0, NewPayloadBlock([]byte("hello world!"))),
//   })
//
// It's also possible to parse a serialized CBOR byte string into a new Bundle.
//
//   var bndl, err = bundle.NewBundleFromCborBytes(byteString)
//
// This package is still new and may be changed any time.
package bundle
