package sevenzip

import (
	"bytes"
	"testing"
)

func TestBCJ2DecompressMultiNoBranch(t *testing.T) {
	// An all-zero rc stream decodes every probability bit to 0 (see
	// internal/rangecoder's adaptation math: code stays below bound
	// forever), so every E8/E9/Jcc candidate is rejected and main passes
	// through unchanged with call/jump left untouched.
	main := []byte{0x10, 0xE8, 0x20, 0xE9, 0x30}
	call := []byte{}
	jump := []byte{}
	rc := make([]byte, 16)

	dst := make([]byte, len(main))
	c := bcj2Codec{}
	n, err := c.DecompressMulti(dst, [][]byte{main, call, jump, rc})
	if err != nil {
		t.Fatalf("DecompressMulti: %v", err)
	}
	if n != len(main) {
		t.Fatalf("n = %d, want %d", n, len(main))
	}
	if !bytes.Equal(dst, main) {
		t.Fatalf("dst = %v, want %v (verbatim passthrough)", dst, main)
	}
}

func TestBCJ2DecompressMultiBranchTaken(t *testing.T) {
	// rc = [0, 0xFF,0xFF,0xFF,0xFF]: after the mandatory lead zero byte,
	// code = 0xFFFFFFFF. bound = (rng>>11)*ProbInit with rng = 0xFFFFFFFF
	// and ProbInit = 1024 is 2147482624, and code >= bound, so the first
	// DecodeBit call returns bit=1 (branch taken) without needing to
	// normalize a 6th byte (rng stays above 1<<24).
	main := []byte{0x10, 0xE8}
	call := []byte{0x00, 0x00, 0x00, 0x69} // absolute = 0x69 = 105
	jump := []byte{}
	rc := []byte{0, 0xFF, 0xFF, 0xFF, 0xFF}

	dst := make([]byte, 6)
	c := bcj2Codec{}
	n, err := c.DecompressMulti(dst, [][]byte{main, call, jump, rc})
	if err != nil {
		t.Fatalf("DecompressMulti: %v", err)
	}
	if n != 6 {
		t.Fatalf("n = %d, want 6", n)
	}
	// ip = address of the E8 byte = 1; absolute - (ip+5) = 105 - 6 = 99 = 0x63.
	want := []byte{0x10, 0xE8, 0x63, 0x00, 0x00, 0x00}
	if !bytes.Equal(dst, want) {
		t.Fatalf("dst = %v, want %v", dst, want)
	}
}

func TestBCJ2RejectsWrongStreamCount(t *testing.T) {
	c := bcj2Codec{}
	_, err := c.DecompressMulti(make([]byte, 4), [][]byte{{1}, {2}, {3}})
	if err == nil {
		t.Fatal("expected error for wrong input stream count")
	}
}

func TestNewBCJ2CodecRejectsWrongStreamCount(t *testing.T) {
	if _, err := newBCJ2Codec(nil, CoderOptions{NumInStreams: 3}); err == nil {
		t.Fatal("expected error for NumInStreams != 4")
	}
	if _, err := newBCJ2Codec(nil, CoderOptions{NumInStreams: 4}); err != nil {
		t.Fatalf("newBCJ2Codec: %v", err)
	}
}
