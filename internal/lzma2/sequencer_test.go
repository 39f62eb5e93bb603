package lzma2

import "testing"

func TestDictSizeFormula(t *testing.T) {
	cases := []struct {
		p    byte
		want uint32
	}{
		{0, 2 << 11},
		{1, 3 << 11},
		{2, 2 << 12},
		{40, 0xFFFFFFFF},
	}
	for _, c := range cases {
		got, err := DictSize(c.p)
		if err != nil {
			t.Fatalf("DictSize(%d): %v", c.p, err)
		}
		if got != c.want {
			t.Errorf("DictSize(%d) = %#x, want %#x", c.p, got, c.want)
		}
	}
}

func TestDictSizeRejectsOutOfRange(t *testing.T) {
	if _, err := DictSize(41); err == nil {
		t.Fatal("expected error for property byte > 40")
	}
}

// buildUncompressedChunk returns an LZMA2 chunk envelope containing a single
// uncompressed, dictionary-reset chunk followed by end-of-stream, letting us
// exercise the sequencer's framing without needing a real LZMA bitstream.
func buildUncompressedChunk(payload []byte) []byte {
	size := len(payload) - 1
	out := []byte{ctrlUncompressedReset, byte(size >> 8), byte(size)}
	out = append(out, payload...)
	out = append(out, ctrlEOS)
	return out
}

func TestDecodeUncompressedChunkRoundTrip(t *testing.T) {
	payload := []byte("Hello, 7z!")
	src := buildUncompressedChunk(payload)

	got, err := Decode(src, int64(len(payload)), 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("Decode = %q, want %q", got, payload)
	}
}

func TestDecodeRejectsReservedControlByte(t *testing.T) {
	src := []byte{0x10, 0x00, 0x00, 0x00}
	if _, err := Decode(src, 0, 0); err == nil {
		t.Fatal("expected error for reserved control byte")
	}
}

func TestDecodeRejectsNonResetFirstChunk(t *testing.T) {
	src := []byte{ctrlUncompressedKeep, 0x00, 0x00, 'a'}
	if _, err := Decode(src, 1, 0); err == nil {
		t.Fatal("expected error: first chunk must reset dictionary")
	}
}

// TestDecodeMode0ContinuesPriorChunkState feeds two real compressed chunks
// (lc=lp=pb=0, literals only) through Decode: the first resets state,
// properties and the dictionary (mode 3); the second carries mode bits 00,
// meaning no reset at all, so its literals must decode using the adaptive
// probabilities exactly as chunk 1 left them.
//
// Both chunks' compressed bytes were produced by a standalone range-coder
// encoder mirroring package rangecoder/lzma's adaptation exactly, run
// first over "AB" from fresh state, then continued (without resetting its
// probability tables) over "CD" — the same sequencing mode 0 requires here.
// Decoding chunk 2 against freshly-reset probabilities instead (the bug
// this test guards against) yields different, wrong bytes, confirmed by
// running the same arithmetic both ways outside this package.
func TestDecodeMode0ContinuesPriorChunkState(t *testing.T) {
	src := []byte{
		// Chunk 1: mode 3 (properties + dictionary reset), unpack size 2,
		// pack size 7, properties byte 0 (lc=lp=pb=0).
		0xE0, 0x00, 0x01, 0x00, 0x06, 0x00,
		0x00, 0x20, 0x91, 0x1b, 0x96, 0x00, 0x00,
		// Chunk 2: mode 0 (no reset), unpack size 2, pack size 7, no
		// properties byte.
		0x80, 0x00, 0x01, 0x00, 0x06,
		0x00, 0x24, 0x40, 0x5a, 0xc8, 0xb5, 0x00,
		ctrlEOS,
	}

	got, err := Decode(src, 4, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(got) != "ABCD" {
		t.Fatalf("Decode = %q, want %q", got, "ABCD")
	}
}
