// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"fmt"
	"io"
	"reflect"

	"github.com/dtn7/cboring"
)

// webAgentMessage describes a message exchanged between a WebSocketAgent and
// a WebSocketAgentConnector. Implementations live in ws_agent_msg_impl.go.
type webAgentMessage interface {
	// typeCode is a unique identifier for each message type, carried ahead of
	// the message's own CBOR encoding so a reader can look up its Go type.
	typeCode() uint64

	cboring.CborMarshaler
}

const (
	wamStatusCode          uint64 = 0
	wamRegisterCode        uint64 = 1
	wamBundleCode          uint64 = 2
	wamSyscallRequestCode  uint64 = 3
	wamSyscallResponseCode uint64 = 4
)

// wamMapping resolves a typeCode back to its Go type for unmarshalCbor.
var wamMapping = map[uint64]reflect.Type{
	wamStatusCode:          reflect.TypeOf(wamStatus{}),
	wamRegisterCode:        reflect.TypeOf(wamRegister{}),
	wamBundleCode:          reflect.TypeOf(wamBundle{}),
	wamSyscallRequestCode:  reflect.TypeOf(wamSyscallRequest{}),
	wamSyscallResponseCode: reflect.TypeOf(wamSyscallResponse{}),
}

// marshalCbor writes a webAgentMessage as a 2-element CBOR array of its
// typeCode and its own encoding.
func marshalCbor(wam webAgentMessage, w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(wam.typeCode(), w); err != nil {
		return err
	}

	return cboring.Marshal(wam, w)
}

// unmarshalCbor reads a webAgentMessage previously written by marshalCbor.
func unmarshalCbor(r io.Reader) (wam webAgentMessage, err error) {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return
	} else if n != 2 {
		err = fmt.Errorf("expected array of two elements, got %d", n)
		return
	}

	code, err := cboring.ReadUInt(r)
	if err != nil {
		return
	}

	t, ok := wamMapping[code]
	if !ok {
		err = fmt.Errorf("no known web agent message type code %d", code)
		return
	}
	wam = reflect.New(t).Interface().(webAgentMessage)

	err = cboring.Unmarshal(wam, r)
	return
}
