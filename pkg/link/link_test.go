package link

import (
	"testing"
)

func TestDuplicateBytesRepeatsEachByte(t *testing.T) {
	got := duplicateBytes([]byte{1, 2, 3})
	want := []byte{1, 1, 2, 2, 3, 3}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestDuplicateBytesEmpty(t *testing.T) {
	if got := duplicateBytes(nil); len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestTermiosBaudKnownRates(t *testing.T) {
	for _, baud := range []int{9600, 19200, 38400, 57600, 115200} {
		if _, ok := termiosBaud(baud); !ok {
			t.Fatalf("baud %d should be supported", baud)
		}
	}
}

func TestTermiosBaudUnknownRate(t *testing.T) {
	if _, ok := termiosBaud(1234); ok {
		t.Fatal("baud 1234 should not be supported")
	}
}

func TestLinkErrorFormatting(t *testing.T) {
	err := newError(StatusNotFound, "opening /dev/ttyUSB0", nil)
	if err.Error() != "opening /dev/ttyUSB0: port not found" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestScanPortsReturnsNoErrorOnEmptySystem(t *testing.T) {
	if _, err := ScanPorts(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
