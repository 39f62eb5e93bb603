// Package lzma2 implements the LZMA2 chunk envelope: a sequence of
// compressed, uncompressed, and reset-only chunks multiplexed over a single
// dictionary.
package lzma2

import (
	"errors"
	"fmt"

	"github.com/omnizip/sevenzip-go/internal/lzma"
)

// ErrReservedControl indicates a control byte in the reserved 0x03-0x7F
// range.
var ErrReservedControl = errors.New("lzma2: reserved control byte")

// ErrInvalidDictSizeProp indicates an LZMA2 dictionary-size property byte
// greater than 40.
var ErrInvalidDictSizeProp = errors.New("lzma2: invalid dictionary size property")

// DictSize decodes the 1-byte LZMA2 dictionary-size property:
// dict_size = (2 | (p&1)) << (p/2 + 11), p in [0, 40].
func DictSize(p byte) (uint32, error) {
	if p > 40 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidDictSizeProp, p)
	}
	if p == 40 {
		return 0xFFFFFFFF, nil
	}
	return uint32(2|(int(p)&1)) << uint(int(p)/2+11), nil
}

const (
	ctrlEOS              = 0x00
	ctrlUncompressedReset = 0x01
	ctrlUncompressedKeep  = 0x02
	ctrlCompressedMin     = 0x80
)

// Decode decompresses one complete LZMA2 stream into a buffer of exactly
// unpackSize bytes. propByte is the folder coder's 1-byte LZMA2 property;
// it sizes the dictionary window but does not by itself seed (lc, lp, pb)
// — those arrive per-chunk via the "properties reset" control form, and the
// first chunk must take that form (mode 3, dictionary reset included).
func Decode(src []byte, unpackSize int64, propByte byte) ([]byte, error) {
	dictSize, err := DictSize(propByte)
	if err != nil {
		return nil, err
	}

	dec := lzma.NewDecoder(dictSize)
	out := make([]byte, unpackSize)
	outPos := 0
	srcPos := 0
	first := true

	for {
		if srcPos >= len(src) {
			return nil, fmt.Errorf("lzma2: truncated stream before end-of-stream control byte")
		}
		ctrl := src[srcPos]
		srcPos++

		if ctrl == ctrlEOS {
			if outPos != len(out) {
				return nil, fmt.Errorf("lzma2: end of stream at %d bytes, expected %d", outPos, len(out))
			}
			return out, nil
		}

		if ctrl == ctrlUncompressedReset || ctrl == ctrlUncompressedKeep {
			if first && ctrl != ctrlUncompressedReset {
				return nil, fmt.Errorf("lzma2: first chunk must reset dictionary")
			}
			if srcPos+2 > len(src) {
				return nil, fmt.Errorf("lzma2: truncated uncompressed chunk header")
			}
			size := int(src[srcPos])<<8 | int(src[srcPos+1]) + 1
			srcPos += 2
			if srcPos+size > len(src) {
				return nil, fmt.Errorf("lzma2: truncated uncompressed chunk body")
			}
			if ctrl == ctrlUncompressedReset {
				dec.ResetDict()
			}
			if outPos+size > len(out) {
				return nil, fmt.Errorf("lzma2: uncompressed chunk overruns declared size")
			}
			copy(out[outPos:outPos+size], src[srcPos:srcPos+size])
			// Keep the LZMA dictionary window in sync with bytes that
			// bypassed the range coder, so later compressed chunks can
			// still reference them as match distances.
			dec.Absorb(out, outPos, size)
			outPos += size
			srcPos += size
			first = false
			continue
		}

		if ctrl < ctrlCompressedMin {
			return nil, fmt.Errorf("%w: 0x%02x", ErrReservedControl, ctrl)
		}

		if srcPos+4 > len(src) {
			return nil, fmt.Errorf("lzma2: truncated compressed chunk header")
		}
		unpackSizeField := (int(ctrl&0x1F) << 16) | (int(src[srcPos]) << 8) | int(src[srcPos+1])
		unpackChunkSize := unpackSizeField + 1
		packChunkSize := (int(src[srcPos+2])<<8 | int(src[srcPos+3])) + 1
		srcPos += 4

		mode := (ctrl >> 5) & 0x3
		if first && mode != 3 {
			return nil, fmt.Errorf("lzma2: first chunk must reset properties and dictionary")
		}

		switch mode {
		case 0: // no reset: continue the prior chunk's state/probabilities/rep-distances
		case 1: // state reset only
			dec.ResetState()
		case 2: // state + new properties
			if srcPos >= len(src) {
				return nil, fmt.Errorf("lzma2: truncated properties byte")
			}
			if err := setPropsByte(dec, src[srcPos]); err != nil {
				return nil, err
			}
			srcPos++
			dec.ResetState()
		case 3: // state + properties + dictionary reset
			if srcPos >= len(src) {
				return nil, fmt.Errorf("lzma2: truncated properties byte")
			}
			if err := setPropsByte(dec, src[srcPos]); err != nil {
				return nil, err
			}
			srcPos++
			dec.ResetState()
			dec.ResetDict()
		}

		if srcPos+packChunkSize > len(src) {
			return nil, fmt.Errorf("lzma2: truncated compressed chunk body")
		}
		if outPos+unpackChunkSize > len(out) {
			return nil, fmt.Errorf("lzma2: compressed chunk overruns declared size")
		}

		chunk := src[srcPos : srcPos+packChunkSize]
		consumed, err := dec.Decompress(out, outPos, int64(unpackChunkSize), chunk, false)
		if err != nil {
			return nil, fmt.Errorf("lzma2: chunk at output offset %d: %w", outPos, err)
		}
		_ = consumed

		outPos += unpackChunkSize
		srcPos += packChunkSize
		first = false
	}
}

func setPropsByte(dec *lzma.Decoder, b byte) error {
	if int(b) >= 9*5*5 {
		return fmt.Errorf("lzma2: invalid properties byte 0x%02x", b)
	}
	d := int(b)
	lc := d % 9
	d /= 9
	lp := d % 5
	pb := d / 5
	return dec.SetProps(lc, lp, pb)
}
