package filter

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestDeltaRoundTrip(t *testing.T) {
	for _, distance := range []int{1, 2, 4, 16, 256} {
		src := make([]byte, 200)
		rnd := rand.New(rand.NewSource(int64(distance)))
		rnd.Read(src)

		encoded := make([]byte, len(src))
		if err := DeltaEncode(encoded, src, distance); err != nil {
			t.Fatalf("distance=%d: DeltaEncode: %v", distance, err)
		}
		decoded := make([]byte, len(src))
		if err := DeltaDecode(decoded, encoded, distance); err != nil {
			t.Fatalf("distance=%d: DeltaDecode: %v", distance, err)
		}
		if !bytes.Equal(decoded, src) {
			t.Fatalf("distance=%d: round trip mismatch", distance)
		}
	}
}

func TestDeltaRejectsOutOfRangeDistance(t *testing.T) {
	buf := make([]byte, 4)
	if err := DeltaDecode(buf, buf, 0); err == nil {
		t.Fatal("expected error for distance 0")
	}
	if err := DeltaDecode(buf, buf, 257); err == nil {
		t.Fatal("expected error for distance 257")
	}
}

func TestDeltaChannelSeparation(t *testing.T) {
	// With distance 2 interleaving two channels, a constant-per-channel
	// input encodes to all zero bytes after the first pair.
	src := []byte{10, 20, 10, 20, 10, 20, 10, 20}
	encoded := make([]byte, len(src))
	if err := DeltaEncode(encoded, src, 2); err != nil {
		t.Fatalf("DeltaEncode: %v", err)
	}
	want := []byte{10, 20, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(encoded, want) {
		t.Fatalf("DeltaEncode = %v, want %v", encoded, want)
	}
}
