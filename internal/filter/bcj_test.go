package filter

import (
	"bytes"
	"math/rand"
	"testing"
)

// bcjFilter is the common shape shared by every per-architecture BCJ
// converter in this package, letting the round-trip property
// (F.decode(F.encode(B, p)) == B) be checked once for all of them.
type bcjFilter func(data []byte, position uint32, decode bool)

func TestBCJRoundTrip(t *testing.T) {
	filters := map[string]bcjFilter{
		"x86":   BCJX86,
		"arm":   BCJARM,
		"armt":  BCJARMT,
		"arm64": BCJARM64,
		"ppc":   BCJPPC,
		"sparc": BCJSPARC,
		"ia64":  BCJIA64,
	}
	positions := []uint32{0, 100, 1 << 20}

	for name, f := range filters {
		t.Run(name, func(t *testing.T) {
			for _, pos := range positions {
				src := make([]byte, 256)
				rnd := rand.New(rand.NewSource(int64(pos) + 1))
				rnd.Read(src)

				buf := append([]byte(nil), src...)
				f(buf, pos, false)
				f(buf, pos, true)
				if !bytes.Equal(buf, src) {
					t.Fatalf("position=%d: round trip mismatch", pos)
				}
			}
		})
	}
}

func TestBCJShortBufferPassthrough(t *testing.T) {
	filters := []bcjFilter{BCJX86, BCJARM, BCJARMT, BCJPPC, BCJSPARC, BCJIA64}
	for _, f := range filters {
		buf := []byte{1, 2, 3}
		want := append([]byte(nil), buf...)
		f(buf, 0, false)
		if !bytes.Equal(buf, want) {
			t.Fatalf("filter modified a buffer shorter than its instruction width: got %v, want %v", buf, want)
		}
	}
}

// TestBCJX86CallFixture exercises the x86 filter against an E8 (CALL)
// instruction with a zero relative displacement at offset 100 of a
// 200-byte buffer.
func TestBCJX86CallFixture(t *testing.T) {
	data := make([]byte, 200)
	data[100] = 0xE8
	original := append([]byte(nil), data...)

	BCJX86(data, 0, false)
	if data[100] != 0xE8 {
		t.Fatalf("opcode byte changed: got 0x%02x", data[100])
	}
	// absolute = delta(0) + position(0) + ip(100) + 5 = 105
	if !(data[101] == 105 && data[102] == 0 && data[103] == 0) {
		t.Fatalf("unexpected encoded operand: % x", data[101:105])
	}

	BCJX86(data, 0, true)
	if !bytes.Equal(data, original) {
		t.Fatalf("decode did not restore original bytes: got % x, want % x", data, original)
	}
}
