package bundle

import "testing"

func TestExtensionBlockManager(t *testing.T) {
	var ebm = NewExtensionBlockManager()

	payloadBlock := NewPayloadBlock(nil)
	if err := ebm.Register(payloadBlock); err != nil {
		t.Fatal(err)
	}
	if err := ebm.Register(payloadBlock); err == nil {
		t.Fatal("Registering the PayloadBlock twice did not errored")
	}

	extBlock := ebm.createBlock(payloadBlock.BlockTypeCode())
	if _, ok := extBlock.(*PayloadBlock); !ok {
		t.Fatalf("createBlock for a registered number returned %T", extBlock)
	}

	if extBlock.BlockTypeCode() != payloadBlock.BlockTypeCode() {
		t.Fatalf("Block type code differs: %d != %d",
			extBlock.BlockTypeCode(), payloadBlock.BlockTypeCode())
	}

	if _, ok := ebm.createBlock(9001).(*GenericExtensionBlock); !ok {
		t.Fatal("createBlock for an unknown number did not result in a GenericExtensionBlock")
	}

	ebm.Unregister(payloadBlock)
	if _, ok := ebm.createBlock(payloadBlock.BlockTypeCode()).(*GenericExtensionBlock); !ok {
		t.Fatal("createBlock for an unregistered number did not result in a GenericExtensionBlock")
	}
}

func TestExtensionBlockManagerSingleton(t *testing.T) {
	var ebm = GetExtensionBlockManager()

	tests := []uint64{
		ExtBlockTypePayloadBlock,
		ExtBlockTypePreviousNodeBlock,
		ExtBlockTypeBundleAgeBlock,
		ExtBlockTypeHopCountBlock}

	for _, test := range tests {
		if _, isGeneric := ebm.createBlock(test).(*GenericExtensionBlock); isGeneric {
			t.Fatalf("createBlock returned a GenericExtensionBlock for %d", test)
		}
	}
}
