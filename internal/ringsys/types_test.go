//go:build linux

package ringsys

import (
	"testing"
	"unsafe"
)

// TestSQESize guards the wire layout: a submission queue entry must stay at
// exactly 64 bytes (128 when CQE128/SQE128 is negotiated, which this
// runtime never requests), or every offset computed against a raw SQE
// array is silently wrong.
func TestSQESize(t *testing.T) {
	if got := unsafe.Sizeof(SQE{}); got != 64 {
		t.Fatalf("sizeof(SQE) = %d, want 64", got)
	}
}

func TestCQESize(t *testing.T) {
	if got := unsafe.Sizeof(CQE{}); got != 16 {
		t.Fatalf("sizeof(CQE) = %d, want 16", got)
	}
}
