package memzero

import (
	"bytes"
	"testing"
)

func TestZero(t *testing.T) {
	a := []byte{1, 2, 3}
	b := bytes.Repeat([]byte{0xff}, 64)
	ZeroAll(a, nil, b)
	if !bytes.Equal(a, make([]byte, 3)) || !bytes.Equal(b, make([]byte, 64)) {
		t.Fatalf("not cleared: %x %x", a, b)
	}
}
